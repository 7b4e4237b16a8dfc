package negotiation

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Noop is the reply a decision agent returns when it has nothing to say.
// On the wire it is the bare JSON string "noop", which can never be mistaken for an
// envelope because envelopes are always JSON objects.
const Noop = "noop"

// Payload is a closed tagged variant. Tag returns the discriminant that rule tables
// match on.
type Payload interface {
	Tag() string
}

// Envelope wraps a payload with the routing metadata every negotiation message carries.
type Envelope[P Payload] struct {
	OriginatorKey string `json:"pubkey"`            // Identity of the party that produced this envelope
	OfferID       string `json:"offerId"`           // Negotiation identifier, fixed by the originator
	Initial       bool   `json:"initial,omitempty"` // True only for opening broadcasts on the default channel
	Data          P      `json:"data"`              // Tagged payload
}

// Tag returns the discriminant of the envelope's payload.
func (e Envelope[P]) Tag() string {
	return e.Data.Tag()
}

// Validate checks the routing metadata. Payload validity is the instance's concern and
// is enforced when the payload is decoded.
func (e Envelope[P]) Validate() error {
	if e.OfferID == "" {
		return fmt.Errorf("%w: offerId cannot be empty", ErrInvalidEnvelope)
	}
	if e.Data.Tag() == "" {
		return fmt.Errorf("%w: payload has no tag", ErrInvalidEnvelope)
	}
	return nil
}

// Encode serializes the envelope to its wire form.
func (e Envelope[P]) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return string(b), nil
}

// Decode parses and validates a wire envelope.
func Decode[P Payload](raw []byte) (Envelope[P], error) {
	var env Envelope[P]
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope[P]{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope[P]{}, err
	}
	return env, nil
}

// Reply is a parsed decision-agent response: either the no-op sentinel or an envelope.
type Reply[P Payload] struct {
	Noop   bool
	Output Envelope[P]
}

// ParseReply classifies a decision-agent response body.
// The JSON string "noop" yields a no-op reply, a JSON object is decoded as an envelope,
// and anything else is an ErrAgentProtocol.
func ParseReply[P Payload](body []byte) (Reply[P], error) {
	if !gjson.ValidBytes(body) {
		return Reply[P]{}, fmt.Errorf("%w: response is not valid JSON", ErrAgentProtocol)
	}

	res := gjson.ParseBytes(body)
	switch {
	case res.Type == gjson.String && res.Str == Noop:
		return Reply[P]{Noop: true}, nil
	case res.IsObject():
		env, err := Decode[P](body)
		if err != nil {
			return Reply[P]{}, fmt.Errorf("%w: %v", ErrAgentProtocol, err)
		}
		return Reply[P]{Output: env}, nil
	default:
		return Reply[P]{}, fmt.Errorf("%w: response is neither an envelope nor %q", ErrAgentProtocol, Noop)
	}
}
