package negotiation

import "fmt"

// Action is the channel operation a matched rule performs.
type Action int

const (
	// ActionReject is the zero value; a decision carrying it performs nothing.
	ActionReject Action = iota

	// ActionSend publishes the envelope.
	ActionSend

	// ActionSubscribe joins a channel without sending. For start rules it joins the
	// default channel; for agent rules it joins the output's negotiation channel.
	ActionSubscribe

	// ActionSubscribeSend joins the envelope's negotiation channel, then publishes it.
	ActionSubscribeSend

	// ActionUnsubscribeSend leaves the envelope's negotiation channel, then publishes it.
	ActionUnsubscribeSend
)

// String returns the action name used in logs.
func (a Action) String() string {
	switch a {
	case ActionReject:
		return "reject"
	case ActionSend:
		return "send"
	case ActionSubscribe:
		return "subscribe"
	case ActionSubscribeSend:
		return "subscribeSend"
	case ActionUnsubscribeSend:
		return "unsubscribeSend"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Validate checks that a is a known, non-reject action.
func (a Action) Validate() error {
	switch a {
	case ActionSend, ActionSubscribe, ActionSubscribeSend, ActionUnsubscribeSend:
		return nil
	default:
		return fmt.Errorf("unknown action: %s", a)
	}
}

// AnyTag matches every payload tag in a Pattern.
const AnyTag = ""

// Pattern matches one side of a transition by payload tag and, optionally, the
// initial flag.
type Pattern struct {
	Tag         string // Payload tag to match; AnyTag matches all
	InitialOnly bool   // Only match envelopes with initial=true
}

// Any returns a pattern matching every envelope.
func Any() Pattern {
	return Pattern{Tag: AnyTag}
}

// Tagged returns a pattern matching envelopes whose payload carries tag.
func Tagged(tag string) Pattern {
	return Pattern{Tag: tag}
}

// Initial returns a pattern matching initial envelopes whose payload carries tag.
func Initial(tag string) Pattern {
	return Pattern{Tag: tag, InitialOnly: true}
}

// Matches reports whether an envelope with the given tag and initial flag fits the pattern.
func (p Pattern) Matches(tag string, initial bool) bool {
	if p.InitialOnly && !initial {
		return false
	}
	return p.Tag == AnyTag || p.Tag == tag
}

// String renders the pattern for logs and error messages.
func (p Pattern) String() string {
	tag := p.Tag
	if tag == AnyTag {
		tag = "*"
	}
	if p.InitialOnly {
		return tag + "(initial)"
	}
	return tag
}

// Rule binds a (role, input, output) triple to an action.
type Rule[R ~string] struct {
	Name   string  // Short description, reported in logs
	Roles  []R     // Roles the rule applies to; empty means every role
	Input  Pattern // Message being replied to
	Output Pattern // Agent's reply
	Action Action
}

// StartRule decides whether a party may join with or without an initial envelope.
type StartRule[R ~string] struct {
	Name  string
	Roles []R
	// Init is nil when the rule requires joining without an initial envelope, otherwise
	// the pattern the initial envelope must match.
	Init   *Pattern
	Action Action
}

func roleMatches[R ~string](roles []R, role R) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (r Rule[R]) matches(role R, inTag string, inInitial bool, outTag string, outInitial bool) bool {
	return roleMatches(r.Roles, role) &&
		r.Input.Matches(inTag, inInitial) &&
		r.Output.Matches(outTag, outInitial)
}

func (r StartRule[R]) matches(role R, hasInit bool, tag string, initial bool) bool {
	if !roleMatches(r.Roles, role) {
		return false
	}
	if r.Init == nil {
		return !hasInit
	}
	return hasInit && r.Init.Matches(tag, initial)
}
