package negotiation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAgent returns a fixed response and counts calls.
type scriptedAgent struct {
	calls    atomic.Int32
	response string
	err      error
	lastReq  []byte
}

func (a *scriptedAgent) Decide(ctx context.Context, request []byte) ([]byte, error) {
	a.calls.Add(1)
	a.lastReq = request
	if a.err != nil {
		return nil, a.err
	}
	return []byte(a.response), nil
}

func mustEncode(t *testing.T, e Envelope[pingMsg]) string {
	t.Helper()
	raw, err := e.Encode()
	require.NoError(t, err)
	return raw
}

func TestDriver_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("responder starts on the default channel", func(t *testing.T) {
		tr := newRecordingTransport()
		d := NewDriver(pingProtocol(), tr, &scriptedAgent{response: `"noop"`})

		require.NoError(t, d.Start(ctx, "responder", nil))
		assert.Equal(t, roleResponder, d.Role())
		assert.Equal(t, []string{"subscribe:initial_offers"}, tr.ops())
	})

	t.Run("unknown role is a startup rejection", func(t *testing.T) {
		tr := newRecordingTransport()
		d := NewDriver(pingProtocol(), tr, &scriptedAgent{})

		err := d.Start(ctx, "spectator", nil)
		assert.ErrorIs(t, err, ErrStartupRejected)
		assert.Empty(t, tr.ops())
	})

	t.Run("illegal init is a startup rejection", func(t *testing.T) {
		tr := newRecordingTransport()
		d := NewDriver(pingProtocol(), tr, &scriptedAgent{})

		err := d.Start(ctx, "caller", nil)
		assert.ErrorIs(t, err, ErrStartupRejected)
	})

	t.Run("connect failure is returned", func(t *testing.T) {
		tr := newRecordingTransport()
		tr.connectErr = errBoom
		d := NewDriver(pingProtocol(), tr, &scriptedAgent{})

		err := d.Start(ctx, "responder", nil)
		assert.ErrorIs(t, err, errBoom)
		assert.False(t, errors.Is(err, ErrStartupRejected))
	})

	t.Run("custom default channel", func(t *testing.T) {
		tr := newRecordingTransport()
		d := NewDriver(pingProtocol(), tr, &scriptedAgent{}, WithDefaultChannel("lobby"))

		require.NoError(t, d.Start(ctx, "responder", nil))
		assert.Equal(t, []string{"subscribe:lobby"}, tr.ops())
	})
}

func TestDriver_SpamFilter(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		channel   string
		offerID   string
		initial   bool
		wantAgent bool
	}{
		{name: "own negotiation channel", channel: "o1", offerID: "o1", wantAgent: true},
		{name: "own negotiation channel, initial flag set", channel: "o1", offerID: "o1", initial: true, wantAgent: true},
		{name: "initial broadcast on default channel", channel: "initial_offers", offerID: "o1", initial: true, wantAgent: true},
		{name: "non-initial on default channel", channel: "initial_offers", offerID: "o1"},
		{name: "message for another negotiation", channel: "o2", offerID: "o1"},
		{name: "initial message on a negotiation channel it does not name", channel: "o2", offerID: "o1", initial: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := &scriptedAgent{response: `"noop"`}
			d := NewDriver(pingProtocol(), newRecordingTransport(), agent)

			d.HandleMessage(ctx, mustEncode(t, env(tt.offerID, "ping", tt.initial)), tt.channel)

			if tt.wantAgent {
				assert.Equal(t, int32(1), agent.calls.Load())
				assert.Equal(t, uint64(0), d.Stats().Filtered)
			} else {
				assert.Equal(t, int32(0), agent.calls.Load())
				assert.Equal(t, uint64(1), d.Stats().Filtered)
			}
		})
	}
}

func TestDriver_HandleMessage(t *testing.T) {
	ctx := context.Background()
	opening := mustEncode(t, env("o1", "ping", true))

	startResponder := func(t *testing.T, agent Agent) (*Driver[pingMsg, pingRole], *recordingTransport) {
		tr := newRecordingTransport()
		d := NewDriver(pingProtocol(), tr, agent)
		require.NoError(t, d.Start(ctx, "responder", nil))
		tr.reset()
		return d, tr
	}

	t.Run("legal reply is acted upon", func(t *testing.T) {
		agent := &scriptedAgent{response: mustEncode(t, env("o1", "pong", false))}
		d, tr := startResponder(t, agent)

		d.HandleMessage(ctx, opening, "initial_offers")

		assert.Equal(t, []string{"subscribe:o1", "publish:o1"}, tr.ops())
		assert.Equal(t, uint64(1), d.Stats().Accepted)
		assert.JSONEq(t, opening, string(agent.lastReq))
	})

	t.Run("noop produces no action", func(t *testing.T) {
		agent := &scriptedAgent{response: `"noop"`}
		d, tr := startResponder(t, agent)

		d.HandleMessage(ctx, opening, "initial_offers")

		assert.Empty(t, tr.ops())
		assert.Equal(t, uint64(1), d.Stats().Noops)
	})

	t.Run("illegal reply is rejected without side effects", func(t *testing.T) {
		agent := &scriptedAgent{response: mustEncode(t, env("o1", "ping", false))}
		d, tr := startResponder(t, agent)

		d.HandleMessage(ctx, opening, "initial_offers")

		assert.Empty(t, tr.ops())
		assert.Equal(t, uint64(1), d.Stats().Rejected)
	})

	t.Run("reply to a different negotiation is rejected", func(t *testing.T) {
		agent := &scriptedAgent{response: mustEncode(t, env("o2", "pong", false))}
		d, tr := startResponder(t, agent)

		d.HandleMessage(ctx, opening, "initial_offers")

		assert.Empty(t, tr.ops())
		assert.Equal(t, uint64(1), d.Stats().Rejected)
	})

	t.Run("malformed agent response is a protocol error and the session continues", func(t *testing.T) {
		agent := &scriptedAgent{response: `"sure thing"`}
		d, tr := startResponder(t, agent)

		d.HandleMessage(ctx, opening, "initial_offers")
		d.HandleMessage(ctx, opening, "initial_offers")

		assert.Empty(t, tr.ops())
		assert.Equal(t, uint64(2), d.Stats().ProtocolErrors)
		assert.Equal(t, int32(2), agent.calls.Load())
	})

	t.Run("transport failure on a legal reply is not a rejection", func(t *testing.T) {
		agent := &scriptedAgent{response: mustEncode(t, env("o1", "pong", false))}
		d, tr := startResponder(t, agent)
		tr.publishErr = errBoom

		d.HandleMessage(ctx, opening, "initial_offers")

		stats := d.Stats()
		assert.Equal(t, uint64(1), stats.ActionFailures)
		assert.Zero(t, stats.Rejected)
		assert.Zero(t, stats.Accepted)
		assert.Equal(t, []string{"subscribe:o1", "publish:o1"}, tr.ops())
	})

	t.Run("illegal reply does not count as an action failure", func(t *testing.T) {
		tr := newRecordingTransport()
		tr.publishErr = errBoom
		agent := &scriptedAgent{response: mustEncode(t, env("o1", "ping", false))}
		d := NewDriver(pingProtocol(), tr, agent)
		require.NoError(t, d.Start(ctx, "responder", nil))

		d.HandleMessage(ctx, opening, "initial_offers")

		assert.Equal(t, uint64(1), d.Stats().Rejected)
		assert.Zero(t, d.Stats().ActionFailures)
	})

	t.Run("agent failure is counted", func(t *testing.T) {
		agent := &scriptedAgent{err: errBoom}
		d, tr := startResponder(t, agent)

		d.HandleMessage(ctx, opening, "initial_offers")

		assert.Empty(t, tr.ops())
		assert.Equal(t, uint64(1), d.Stats().AgentFailures)
	})

	t.Run("undecodable message never reaches the agent", func(t *testing.T) {
		agent := &scriptedAgent{response: `"noop"`}
		d, _ := startResponder(t, agent)

		d.HandleMessage(ctx, `not json`, "initial_offers")
		d.HandleMessage(ctx, `{"offerId":"o1"}`, "o1")

		assert.Equal(t, int32(0), agent.calls.Load())
		assert.Equal(t, uint64(2), d.Stats().Malformed)
	})

	t.Run("duplicate delivery is not deduplicated", func(t *testing.T) {
		agent := &scriptedAgent{response: mustEncode(t, env("o1", "pong", false))}
		d, tr := startResponder(t, agent)

		d.HandleMessage(ctx, opening, "initial_offers")
		d.HandleMessage(ctx, opening, "initial_offers")

		assert.Equal(t, int32(2), agent.calls.Load())
		assert.Len(t, tr.published(), 2)
		assert.Equal(t, uint64(2), d.Stats().Accepted)
	})
}

func TestDriver_RoutesInboundThroughTransportHandler(t *testing.T) {
	ctx := context.Background()
	agent := &scriptedAgent{response: mustEncode(t, env("o1", "pong", false))}
	tr := newRecordingTransport()
	d := NewDriver(pingProtocol(), tr, agent)
	require.NoError(t, d.Start(ctx, "responder", nil))

	tr.mu.Lock()
	h := tr.handlers["initial_offers"]
	tr.mu.Unlock()
	require.NotNil(t, h)

	h(ctx, mustEncode(t, env("o1", "ping", true)), "initial_offers")

	assert.Equal(t, uint64(1), d.Stats().Accepted)
	tr.mu.Lock()
	_, joined := tr.handlers["o1"]
	tr.mu.Unlock()
	assert.True(t, joined)
}
