package negotiation

import "errors"

var (
	// ErrStartupRejected is returned when OnStart declines the role or initial envelope.
	// It is fatal: the process must not proceed.
	ErrStartupRejected = errors.New("startup rejected")

	// ErrAgentProtocol marks a decision-agent response that is neither an envelope nor
	// the no-op sentinel.
	ErrAgentProtocol = errors.New("agent protocol error")

	// ErrInvalidTransition marks an agent reply that failed the causal check or matched
	// no rule.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidEnvelope marks an envelope that could not be decoded or lacks routing
	// metadata.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)
