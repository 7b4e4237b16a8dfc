package negotiation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Protocol is a negotiation instance: a closed role set, a closed tag set and the
// ordered rule tables that decide which moves are legal.
//
// Rules are evaluated in declaration order and the first match wins. The engine does
// not check that rules are disjoint; authors order them so that exactly one rule
// matches any intended-legal triple. Anything unmatched is rejected.
type Protocol[P Payload, R ~string] struct {
	Name  string
	Roles []R
	Tags  []string
	Start []StartRule[R]
	Rules []Rule[R]

	// Reinitiate decides whether an output carrying a different offer ID may still be
	// accepted as a fresh initial broadcast on the default channel. Nil means never:
	// every reply must carry its input's offer ID.
	Reinitiate func(role R, input, output Envelope[P]) bool
}

// Decision is the outcome of evaluating one agent reply against the rule table.
type Decision struct {
	Action Action // ActionReject when the reply is illegal
	Rule   string // Name of the matching rule, empty when rejected
	Reason string // Why the reply was rejected, empty when accepted
}

// Allowed reports whether the decision carries an action to perform.
func (d Decision) Allowed() bool {
	return d.Action != ActionReject
}

// ParseRole converts an untrusted role string into a member of the closed role set.
func (p *Protocol[P, R]) ParseRole(role string) (R, error) {
	for _, r := range p.Roles {
		if string(r) == role {
			return r, nil
		}
	}
	var zero R
	return zero, fmt.Errorf("unknown role %q for protocol %s", role, p.Name)
}

// Validate checks that the rule tables only reference declared roles, tags and actions.
func (p *Protocol[P, R]) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("protocol name cannot be empty")
	}
	if len(p.Roles) == 0 {
		return fmt.Errorf("protocol %s: no roles defined", p.Name)
	}

	roles := make(map[R]bool, len(p.Roles))
	for _, r := range p.Roles {
		if roles[r] {
			return fmt.Errorf("protocol %s: duplicate role %q", p.Name, r)
		}
		roles[r] = true
	}

	tags := make(map[string]bool, len(p.Tags))
	for _, t := range p.Tags {
		tags[t] = true
	}
	checkPattern := func(rule string, pat Pattern) error {
		if pat.Tag != AnyTag && len(tags) > 0 && !tags[pat.Tag] {
			return fmt.Errorf("protocol %s: rule %q references undeclared tag %q", p.Name, rule, pat.Tag)
		}
		return nil
	}
	checkRoles := func(rule string, rs []R) error {
		for _, r := range rs {
			if !roles[r] {
				return fmt.Errorf("protocol %s: rule %q references undeclared role %q", p.Name, rule, r)
			}
		}
		return nil
	}

	for _, rule := range p.Start {
		if err := checkRoles(rule.Name, rule.Roles); err != nil {
			return err
		}
		switch rule.Action {
		case ActionSubscribe:
		case ActionSubscribeSend, ActionSend:
			if rule.Init == nil {
				return fmt.Errorf("protocol %s: start rule %q sends without an initial envelope", p.Name, rule.Name)
			}
		default:
			return fmt.Errorf("protocol %s: start rule %q has invalid action %s", p.Name, rule.Name, rule.Action)
		}
		if rule.Init != nil {
			if err := checkPattern(rule.Name, *rule.Init); err != nil {
				return err
			}
		}
	}

	for _, rule := range p.Rules {
		if err := checkRoles(rule.Name, rule.Roles); err != nil {
			return err
		}
		if err := rule.Action.Validate(); err != nil {
			return fmt.Errorf("protocol %s: rule %q: %w", p.Name, rule.Name, err)
		}
		if err := checkPattern(rule.Name, rule.Input); err != nil {
			return err
		}
		if err := checkPattern(rule.Name, rule.Output); err != nil {
			return err
		}
	}

	return nil
}

// Decide evaluates output as a reply to input for role without performing anything.
// The result depends only on the role, both tags and initial flags, and the causal check.
func (p *Protocol[P, R]) Decide(role R, input, output Envelope[P]) Decision {
	if output.OfferID != input.OfferID && !p.reinitiates(role, input, output) {
		return Decision{
			Reason: fmt.Sprintf("causal check failed: output offerId %q does not match input offerId %q",
				output.OfferID, input.OfferID),
		}
	}

	inTag, outTag := input.Tag(), output.Tag()
	for _, rule := range p.Rules {
		if rule.matches(role, inTag, input.Initial, outTag, output.Initial) {
			return Decision{Action: rule.Action, Rule: rule.Name}
		}
	}

	return Decision{
		Reason: fmt.Sprintf("no rule matches role=%s input=%s output=%s", role, inTag, outTag),
	}
}

func (p *Protocol[P, R]) reinitiates(role R, input, output Envelope[P]) bool {
	return output.Initial && p.Reinitiate != nil && p.Reinitiate(role, input, output)
}

// OnAgent decides whether output is a legal reply to input for role and, if it is,
// performs the action bound to the first matching rule.
// It returns false without side effects when the reply is illegal, and false when the
// action itself fails.
func (p *Protocol[P, R]) OnAgent(ctx context.Context, ch Channels[P], role R, input, output Envelope[P]) bool {
	log := zerolog.Ctx(ctx)

	d := p.Decide(role, input, output)
	if !d.Allowed() {
		log.Debug().
			Str("protocol", p.Name).
			Str("role", string(role)).
			Str("offer_id", input.OfferID).
			Str("reason", d.Reason).
			Msg("Agent reply rejected")
		return false
	}

	if err := perform(ctx, ch, d.Action, &output); err != nil {
		log.Error().Err(err).
			Str("protocol", p.Name).
			Str("rule", d.Rule).
			Str("action", d.Action.String()).
			Str("offer_id", output.OfferID).
			Msg("Rule action failed")
		return false
	}

	log.Debug().
		Str("protocol", p.Name).
		Str("rule", d.Rule).
		Str("action", d.Action.String()).
		Str("offer_id", output.OfferID).
		Str("tag", output.Tag()).
		Msg("Agent reply accepted")
	return true
}

// OnStart decides whether a party may join as role, with or without init, and performs
// the matching start action. role is untrusted input and is validated here.
func (p *Protocol[P, R]) OnStart(ctx context.Context, ch Channels[P], role string, init *Envelope[P]) bool {
	log := zerolog.Ctx(ctx)

	r, err := p.ParseRole(role)
	if err != nil {
		log.Error().Err(err).Msg("Start rejected")
		return false
	}

	var tag string
	var initial bool
	if init != nil {
		if err := init.Validate(); err != nil {
			log.Error().Err(err).Str("role", role).Msg("Start rejected: invalid initial envelope")
			return false
		}
		tag, initial = init.Tag(), init.Initial
	}

	for _, rule := range p.Start {
		if !rule.matches(r, init != nil, tag, initial) {
			continue
		}
		if err := perform(ctx, ch, rule.Action, init); err != nil {
			log.Error().Err(err).
				Str("protocol", p.Name).
				Str("rule", rule.Name).
				Str("action", rule.Action.String()).
				Msg("Start action failed")
			return false
		}
		log.Info().
			Str("protocol", p.Name).
			Str("role", role).
			Str("rule", rule.Name).
			Msg("Session started")
		return true
	}

	log.Error().
		Str("protocol", p.Name).
		Str("role", role).
		Bool("has_init", init != nil).
		Str("init_tag", tag).
		Msg("Start rejected: no start rule matches")
	return false
}

// perform runs action against ch. env may be nil only for ActionSubscribe, which then
// joins the default channel.
func perform[P Payload](ctx context.Context, ch Channels[P], action Action, env *Envelope[P]) error {
	if env == nil && action != ActionSubscribe {
		return fmt.Errorf("action %s requires an envelope", action)
	}

	switch action {
	case ActionSend:
		return ch.Send(ctx, *env)
	case ActionSubscribe:
		offerID := ""
		if env != nil {
			offerID = env.OfferID
		}
		return ch.Subscribe(ctx, offerID)
	case ActionSubscribeSend:
		return ch.SubscribeSend(ctx, *env)
	case ActionUnsubscribeSend:
		return ch.UnsubscribeSend(ctx, *env)
	default:
		return fmt.Errorf("unknown action: %s", action)
	}
}
