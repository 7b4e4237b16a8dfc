package negotiation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocol_Validate(t *testing.T) {
	t.Run("well formed protocol", func(t *testing.T) {
		assert.NoError(t, pingProtocol().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(p *Protocol[pingMsg, pingRole])
		wantErr string
	}{
		{
			name:    "missing name",
			mutate:  func(p *Protocol[pingMsg, pingRole]) { p.Name = "" },
			wantErr: "name cannot be empty",
		},
		{
			name:    "no roles",
			mutate:  func(p *Protocol[pingMsg, pingRole]) { p.Roles = nil },
			wantErr: "no roles defined",
		},
		{
			name:    "duplicate role",
			mutate:  func(p *Protocol[pingMsg, pingRole]) { p.Roles = append(p.Roles, roleCaller) },
			wantErr: "duplicate role",
		},
		{
			name: "undeclared role in rule",
			mutate: func(p *Protocol[pingMsg, pingRole]) {
				p.Rules[0].Roles = []pingRole{"spectator"}
			},
			wantErr: "undeclared role",
		},
		{
			name: "undeclared tag in rule",
			mutate: func(p *Protocol[pingMsg, pingRole]) {
				p.Rules[0].Output = Tagged("ring")
			},
			wantErr: "undeclared tag",
		},
		{
			name: "reject action in rule",
			mutate: func(p *Protocol[pingMsg, pingRole]) {
				p.Rules[0].Action = ActionReject
			},
			wantErr: "unknown action",
		},
		{
			name: "start rule sends without init",
			mutate: func(p *Protocol[pingMsg, pingRole]) {
				p.Start[1].Action = ActionSubscribeSend
			},
			wantErr: "sends without an initial envelope",
		},
		{
			name: "start rule leaves",
			mutate: func(p *Protocol[pingMsg, pingRole]) {
				p.Start[0].Action = ActionUnsubscribeSend
			},
			wantErr: "invalid action",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pingProtocol()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProtocol_ParseRole(t *testing.T) {
	p := pingProtocol()

	role, err := p.ParseRole("caller")
	require.NoError(t, err)
	assert.Equal(t, roleCaller, role)

	for _, bad := range []string{"", "Caller", "admin", "caller "} {
		_, err := p.ParseRole(bad)
		assert.Error(t, err, "role %q should be rejected", bad)
	}
}

func TestProtocol_Decide(t *testing.T) {
	p := pingProtocol()

	tests := []struct {
		name       string
		role       pingRole
		input      Envelope[pingMsg]
		output     Envelope[pingMsg]
		wantAction Action
		wantRule   string
	}{
		{
			name:       "anyone may hang up",
			role:       roleCaller,
			input:      env("o1", "pong", false),
			output:     env("o1", "hangup", false),
			wantAction: ActionUnsubscribeSend,
			wantRule:   "hang up",
		},
		{
			name:       "first match wins over later rules",
			role:       roleResponder,
			input:      env("o1", "ping", true),
			output:     env("o1", "pong", false),
			wantAction: ActionSubscribeSend,
			wantRule:   "answer opening",
		},
		{
			name:       "non-initial ping falls through to the plain answer",
			role:       roleResponder,
			input:      env("o1", "ping", false),
			output:     env("o1", "pong", false),
			wantAction: ActionSend,
			wantRule:   "answer ping",
		},
		{
			name:       "role restriction applies",
			role:       roleCaller,
			input:      env("o1", "ping", false),
			output:     env("o1", "pong", false),
			wantAction: ActionReject,
		},
		{
			name:       "unmatched tag pair",
			role:       roleCaller,
			input:      env("o1", "ping", false),
			output:     env("o1", "ping", false),
			wantAction: ActionReject,
		},
		{
			name:       "causal check rejects a reply to another negotiation",
			role:       roleCaller,
			input:      env("o1", "pong", false),
			output:     env("o2", "hangup", false),
			wantAction: ActionReject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(tt.role, tt.input, tt.output)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantRule, d.Rule)
			assert.Equal(t, tt.wantAction != ActionReject, d.Allowed())
			if !d.Allowed() {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestProtocol_DecideIsDeterministic(t *testing.T) {
	p := pingProtocol()
	tags := []string{"ping", "pong", "hangup"}

	for _, role := range p.Roles {
		for _, in := range tags {
			for _, out := range tags {
				for _, initial := range []bool{false, true} {
					input := env("o1", in, initial)
					output := env("o1", out, false)
					first := p.Decide(role, input, output)

					// Different payload bodies and originators must not change the outcome.
					input.Data.Body = "something else"
					input.OriginatorKey = "0xdef"
					output.Data.Body = "more"
					for i := 0; i < 3; i++ {
						assert.Equal(t, first, p.Decide(role, input, output))
					}
				}
			}
		}
	}
}

func TestProtocol_Reinitiate(t *testing.T) {
	p := pingProtocol()
	p.Rules = append(p.Rules, Rule[pingRole]{
		Name: "re-open", Roles: []pingRole{roleCaller}, Input: Tagged("hangup"), Output: Initial("ping"), Action: ActionSubscribeSend,
	})

	input := env("o1", "hangup", false)
	output := env("o2", "ping", true)

	t.Run("without a policy the causal check holds", func(t *testing.T) {
		assert.False(t, p.Decide(roleCaller, input, output).Allowed())
	})

	t.Run("policy admits a fresh initial broadcast", func(t *testing.T) {
		p.Reinitiate = func(role pingRole, in, out Envelope[pingMsg]) bool { return role == roleCaller }
		d := p.Decide(roleCaller, input, output)
		assert.True(t, d.Allowed())
		assert.Equal(t, "re-open", d.Rule)
	})

	t.Run("policy never admits a non-initial output", func(t *testing.T) {
		p.Reinitiate = func(role pingRole, in, out Envelope[pingMsg]) bool { return true }
		assert.False(t, p.Decide(roleCaller, input, env("o2", "ping", false)).Allowed())
	})
}

func TestProtocol_OnAgent(t *testing.T) {
	ctx := context.Background()
	p := pingProtocol()

	t.Run("legal reply performs the rule action", func(t *testing.T) {
		tr := newRecordingTransport()
		r := newTestRouter(tr)

		ok := p.OnAgent(ctx, r, roleResponder, env("o1", "ping", true), env("o1", "pong", false))
		assert.True(t, ok)
		assert.Equal(t, []string{"subscribe:o1", "publish:o1"}, tr.ops())
	})

	t.Run("illegal reply has no side effect", func(t *testing.T) {
		tr := newRecordingTransport()
		r := newTestRouter(tr)

		ok := p.OnAgent(ctx, r, roleCaller, env("o1", "ping", false), env("o1", "pong", false))
		assert.False(t, ok)
		assert.Empty(t, tr.ops())
	})

	t.Run("causal check failure has no side effect", func(t *testing.T) {
		tr := newRecordingTransport()
		r := newTestRouter(tr)

		ok := p.OnAgent(ctx, r, roleCaller, env("o1", "pong", false), env("o2", "hangup", false))
		assert.False(t, ok)
		assert.Empty(t, tr.ops())
	})

	t.Run("failed action is reported as false", func(t *testing.T) {
		tr := newRecordingTransport()
		tr.unsubscribeErr = errBoom
		r := newTestRouter(tr)

		ok := p.OnAgent(ctx, r, roleCaller, env("o1", "pong", false), env("o1", "hangup", false))
		assert.False(t, ok)
		assert.Empty(t, tr.published())
	})
}

func TestProtocol_OnStart(t *testing.T) {
	ctx := context.Background()
	p := pingProtocol()
	opening := env("o1", "ping", true)

	tests := []struct {
		name    string
		role    string
		init    *Envelope[pingMsg]
		wantOK  bool
		wantOps []string
	}{
		{
			name:    "caller opens with an initial ping",
			role:    "caller",
			init:    &opening,
			wantOK:  true,
			wantOps: []string{"subscribe:o1", "publish:initial_offers"},
		},
		{
			name:    "responder listens on the default channel",
			role:    "responder",
			wantOK:  true,
			wantOps: []string{"subscribe:initial_offers"},
		},
		{name: "caller without init", role: "caller"},
		{name: "responder with init", role: "responder", init: &opening},
		{name: "unknown role", role: "spectator"},
		{name: "unknown role with init", role: "spectator", init: &opening},
		{name: "empty role", role: ""},
		{
			name: "caller with a non-initial ping",
			role: "caller",
			init: func() *Envelope[pingMsg] { e := env("o1", "ping", false); return &e }(),
		},
		{
			name: "caller with an invalid envelope",
			role: "caller",
			init: func() *Envelope[pingMsg] { e := env("", "ping", true); return &e }(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newRecordingTransport()
			r := newTestRouter(tr)

			ok := p.OnStart(ctx, r, tt.role, tt.init)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOps, tr.ops())
		})
	}

	t.Run("transport failure rejects start", func(t *testing.T) {
		tr := newRecordingTransport()
		tr.subscribeErr = errBoom
		r := newTestRouter(tr)

		assert.False(t, p.OnStart(ctx, r, "responder", nil))
	})
}
