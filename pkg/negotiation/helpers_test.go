package negotiation

import (
	"context"
	"errors"
	"sync"
)

// pingMsg is a minimal tagged payload used to exercise the engine without a real instance.
type pingMsg struct {
	Kind string `json:"_tag"`
	Body string `json:"body,omitempty"`
}

func (m pingMsg) Tag() string { return m.Kind }

type pingRole string

const (
	roleCaller    pingRole = "caller"
	roleResponder pingRole = "responder"
)

// pingProtocol: callers open with an initial ping, responders answer pings with pongs,
// anyone may hang up.
func pingProtocol() *Protocol[pingMsg, pingRole] {
	initialPing := Initial("ping")
	return &Protocol[pingMsg, pingRole]{
		Name:  "ping",
		Roles: []pingRole{roleCaller, roleResponder},
		Tags:  []string{"ping", "pong", "hangup"},
		Start: []StartRule[pingRole]{
			{Name: "caller opens", Roles: []pingRole{roleCaller}, Init: &initialPing, Action: ActionSubscribeSend},
			{Name: "responder listens", Roles: []pingRole{roleResponder}, Action: ActionSubscribe},
		},
		Rules: []Rule[pingRole]{
			{Name: "hang up", Input: Any(), Output: Tagged("hangup"), Action: ActionUnsubscribeSend},
			{Name: "answer opening", Roles: []pingRole{roleResponder}, Input: Initial("ping"), Output: Tagged("pong"), Action: ActionSubscribeSend},
			{Name: "answer ping", Roles: []pingRole{roleResponder}, Input: Tagged("ping"), Output: Tagged("pong"), Action: ActionSend},
			{Name: "ping again", Roles: []pingRole{roleCaller}, Input: Tagged("pong"), Output: Tagged("ping"), Action: ActionSend},
		},
	}
}

func env(offerID, tag string, initial bool) Envelope[pingMsg] {
	return Envelope[pingMsg]{
		OriginatorKey: "0xabc",
		OfferID:       offerID,
		Initial:       initial,
		Data:          pingMsg{Kind: tag},
	}
}

type transportCall struct {
	Op      string
	Channel string
	Payload string
}

// recordingTransport records every primitive call and can be told to fail any of them.
type recordingTransport struct {
	mu             sync.Mutex
	calls          []transportCall
	handlers       map[string]Handler
	connectErr     error
	subscribeErr   error
	unsubscribeErr error
	publishErr     error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{handlers: make(map[string]Handler)}
}

func (t *recordingTransport) record(op, channel, payload string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, transportCall{Op: op, Channel: channel, Payload: payload})
}

func (t *recordingTransport) Connect(ctx context.Context) error {
	t.record("connect", "", "")
	return t.connectErr
}

func (t *recordingTransport) Subscribe(ctx context.Context, channel string, h Handler) error {
	t.record("subscribe", channel, "")
	if t.subscribeErr != nil {
		return t.subscribeErr
	}
	t.mu.Lock()
	t.handlers[channel] = h
	t.mu.Unlock()
	return nil
}

func (t *recordingTransport) Unsubscribe(ctx context.Context, channel string) error {
	t.record("unsubscribe", channel, "")
	if t.unsubscribeErr != nil {
		return t.unsubscribeErr
	}
	t.mu.Lock()
	delete(t.handlers, channel)
	t.mu.Unlock()
	return nil
}

func (t *recordingTransport) Publish(ctx context.Context, channel string, payload string) error {
	t.record("publish", channel, payload)
	return t.publishErr
}

// ops returns the recorded calls excluding connect, as "op:channel" strings.
func (t *recordingTransport) ops() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, c := range t.calls {
		if c.Op == "connect" {
			continue
		}
		out = append(out, c.Op+":"+c.Channel)
	}
	return out
}

func (t *recordingTransport) published() []transportCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []transportCall
	for _, c := range t.calls {
		if c.Op == "publish" {
			out = append(out, c)
		}
	}
	return out
}

func (t *recordingTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

var errBoom = errors.New("boom")
