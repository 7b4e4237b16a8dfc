package negotiation

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Agent is the external decision maker. It receives the accepted input envelope as
// JSON and returns either an output envelope or the JSON string "noop".
// Calls are synchronous; the driver waits for the answer before handling the next
// message on the same channel.
type Agent interface {
	Decide(ctx context.Context, request []byte) ([]byte, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, request []byte) ([]byte, error)

// Decide calls f.
func (f AgentFunc) Decide(ctx context.Context, request []byte) ([]byte, error) {
	return f(ctx, request)
}

// Stats is a snapshot of a driver's message counters.
type Stats struct {
	Received       uint64 `json:"received"`
	Malformed      uint64 `json:"malformed"`
	Filtered       uint64 `json:"filtered"`
	AgentCalls     uint64 `json:"agent_calls"`
	AgentFailures  uint64 `json:"agent_failures"`
	ProtocolErrors uint64 `json:"protocol_errors"`
	Noops          uint64 `json:"noops"`
	Accepted       uint64 `json:"accepted"`
	Rejected       uint64 `json:"rejected"`
	ActionFailures uint64 `json:"action_failures"`
}

type counters struct {
	received       atomic.Uint64
	malformed      atomic.Uint64
	filtered       atomic.Uint64
	agentCalls     atomic.Uint64
	agentFailures  atomic.Uint64
	protocolErrors atomic.Uint64
	noops          atomic.Uint64
	accepted       atomic.Uint64
	rejected       atomic.Uint64
	actionFailures atomic.Uint64
}

// DriverOption configures a Driver.
type DriverOption func(*driverOptions)

type driverOptions struct {
	defaultChannel string
	logger         zerolog.Logger
}

// WithDefaultChannel overrides the channel used for initial broadcasts.
func WithDefaultChannel(name string) DriverOption {
	return func(o *driverOptions) {
		o.defaultChannel = name
	}
}

// WithLogger sets the logger used by the driver and by the protocol it runs.
func WithLogger(l zerolog.Logger) DriverOption {
	return func(o *driverOptions) {
		o.logger = l
	}
}

// Driver runs one party's side of a negotiation protocol. It owns the receive path:
// spam filtering, the decision-agent call, and submitting the agent's reply to the
// protocol.
//
// The driver holds no locks. Messages on one channel are handled one at a time by the
// transport's receive loop; messages on different channels may be handled concurrently
// if the transport delivers them that way.
type Driver[P Payload, R ~string] struct {
	protocol  *Protocol[P, R]
	transport Transport
	router    *Router[P]
	agent     Agent
	log       zerolog.Logger
	role      R
	stats     counters
}

// NewDriver creates a driver for protocol over transport, consulting agent for every
// accepted message. The driver does nothing until Start is called.
func NewDriver[P Payload, R ~string](protocol *Protocol[P, R], transport Transport, agent Agent, opts ...DriverOption) *Driver[P, R] {
	o := driverOptions{
		defaultChannel: DefaultChannel,
		logger:         zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(&o)
	}

	d := &Driver[P, R]{
		protocol:  protocol,
		transport: transport,
		agent:     agent,
		log:       o.logger.With().Str("component", "driver").Str("protocol", protocol.Name).Logger(),
	}
	d.router = NewRouter[P](transport, o.defaultChannel, d.HandleMessage)
	return d
}

// Router returns the router the driver's protocol acts through.
func (d *Driver[P, R]) Router() *Router[P] {
	return d.router
}

// Role returns the role the driver was started with.
func (d *Driver[P, R]) Role() R {
	return d.role
}

// Start connects the transport and asks the protocol whether role may join with init.
// A refusal is reported as ErrStartupRejected and must be treated as fatal.
func (d *Driver[P, R]) Start(ctx context.Context, role string, init *Envelope[P]) error {
	r, err := d.protocol.ParseRole(role)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStartupRejected, err)
	}
	d.role = r

	if err := d.transport.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect transport: %w", err)
	}

	if !d.protocol.OnStart(d.log.WithContext(ctx), d.router, role, init) {
		return fmt.Errorf("%w: role=%s has_init=%t", ErrStartupRejected, role, init != nil)
	}

	d.log.Info().Str("role", role).Str("default_channel", d.router.DefaultChannel()).Msg("Driver started")
	return nil
}

// Accepts reports whether env, received on channel, should reach the decision agent.
// A message is accepted on its own negotiation channel, or on the default channel
// when it is an initial broadcast. Everything else is cross-talk or spoofed targeting.
func (d *Driver[P, R]) Accepts(env Envelope[P], channel string) bool {
	if channel == env.OfferID {
		return true
	}
	return channel == d.router.DefaultChannel() && env.Initial
}

// HandleMessage processes one inbound wire message. It is the Handler the driver
// registers for every channel it subscribes to.
// Failures are logged and counted; the session always continues.
func (d *Driver[P, R]) HandleMessage(ctx context.Context, payload string, channel string) {
	d.stats.received.Add(1)
	ctx = d.log.WithContext(ctx)

	input, err := Decode[P]([]byte(payload))
	if err != nil {
		d.stats.malformed.Add(1)
		d.log.Debug().Err(err).Str("channel", channel).Msg("Dropping undecodable message")
		return
	}

	if !d.Accepts(input, channel) {
		d.stats.filtered.Add(1)
		d.log.Debug().
			Str("channel", channel).
			Str("offer_id", input.OfferID).
			Bool("initial", input.Initial).
			Msg("Dropping mis-targeted message")
		return
	}

	request, err := input.Encode()
	if err != nil {
		d.stats.malformed.Add(1)
		d.log.Error().Err(err).Str("offer_id", input.OfferID).Msg("Failed to encode agent request")
		return
	}

	d.stats.agentCalls.Add(1)
	body, err := d.agent.Decide(ctx, []byte(request))
	if err != nil {
		d.stats.agentFailures.Add(1)
		d.log.Error().Err(err).
			Str("role", string(d.role)).
			Str("offer_id", input.OfferID).
			Msg("Decision agent call failed")
		return
	}

	reply, err := ParseReply[P](body)
	if err != nil {
		d.stats.protocolErrors.Add(1)
		d.log.Error().Err(err).
			Str("role", string(d.role)).
			Str("offer_id", input.OfferID).
			Str("response", truncate(string(body), 200)).
			Msg("Invalid decision agent response")
		return
	}

	if reply.Noop {
		d.stats.noops.Add(1)
		d.log.Debug().Str("offer_id", input.OfferID).Str("tag", input.Tag()).Msg("Agent returned noop")
		return
	}

	if decision := d.protocol.Decide(d.role, input, reply.Output); !decision.Allowed() {
		d.stats.rejected.Add(1)
		d.log.Error().Err(ErrInvalidTransition).
			Str("role", string(d.role)).
			Str("channel", channel).
			Str("reason", decision.Reason).
			Interface("input", input).
			Interface("output", reply.Output).
			Msg("Invalid agent response")
		return
	}

	// The reply is legal here, so a false result means the rule's transport action failed.
	if !d.protocol.OnAgent(ctx, d.router, d.role, input, reply.Output) {
		d.stats.actionFailures.Add(1)
		d.log.Error().
			Str("role", string(d.role)).
			Str("channel", channel).
			Str("offer_id", reply.Output.OfferID).
			Str("tag", reply.Output.Tag()).
			Msg("Failed to perform agent response")
		return
	}

	d.stats.accepted.Add(1)
}

// Stats returns a snapshot of the driver's counters.
func (d *Driver[P, R]) Stats() Stats {
	return Stats{
		Received:       d.stats.received.Load(),
		Malformed:      d.stats.malformed.Load(),
		Filtered:       d.stats.filtered.Load(),
		AgentCalls:     d.stats.agentCalls.Load(),
		AgentFailures:  d.stats.agentFailures.Load(),
		ProtocolErrors: d.stats.protocolErrors.Load(),
		Noops:          d.stats.noops.Load(),
		Accepted:       d.stats.accepted.Load(),
		Rejected:       d.stats.rejected.Load(),
		ActionFailures: d.stats.actionFailures.Load(),
	}
}

// truncate shortens s to at most n bytes for logging.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
