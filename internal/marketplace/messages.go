// Package marketplace defines the compute-marketplace negotiation: a buyer broadcasts
// an offer for compute, sellers counter, the buyer pays and the seller delivers.
//
// The payload set is closed. Every message carries a "_tag" discriminant on the wire and
// decoding an unknown tag is an error.
package marketplace

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dyluth/parley/pkg/negotiation"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Payload tags.
const (
	TagOffer      = "offer"
	TagCancel     = "cancel"
	TagBuyAttest  = "buyAttest"
	TagSellAttest = "sellAttest"
)

// Tags returns the closed tag set in declaration order.
func Tags() []string {
	return []string{TagOffer, TagCancel, TagBuyAttest, TagSellAttest}
}

// Envelope is a negotiation envelope carrying a marketplace message.
type Envelope = negotiation.Envelope[Message]

// Variant is one member of the closed marketplace payload set.
type Variant interface {
	Tag() string
	Validate() error
	variant()
}

// TokenStandard identifies how a token amount is expressed.
type TokenStandard string

const (
	// ERC20 tokens are fungible and carry an amount.
	ERC20 TokenStandard = "ERC20"

	// ERC721 tokens are unique and carry a token id.
	ERC721 TokenStandard = "ERC721"
)

// Token is one asset offered in exchange for compute.
type Token struct {
	Standard TokenStandard `json:"tokenStandard"`
	Address  string        `json:"address"` // Hex contract address
	Amount   uint64        `json:"amt"`     // ERC20 only
	ID       uint64        `json:"id"`      // ERC721 only
}

// Validate checks the token standard and contract address.
func (t Token) Validate() error {
	switch t.Standard {
	case ERC20, ERC721:
	default:
		return fmt.Errorf("unknown token standard %q", t.Standard)
	}
	if !isHex(t.Address) {
		return fmt.Errorf("invalid %s address %q: must be 0x-prefixed hex", t.Standard, t.Address)
	}
	return nil
}

// MarshalJSON writes only the field that belongs to the token's standard.
func (t Token) MarshalJSON() ([]byte, error) {
	switch t.Standard {
	case ERC20:
		return json.Marshal(struct {
			Standard TokenStandard `json:"tokenStandard"`
			Address  string        `json:"address"`
			Amount   uint64        `json:"amt"`
		}{t.Standard, t.Address, t.Amount})
	case ERC721:
		return json.Marshal(struct {
			Standard TokenStandard `json:"tokenStandard"`
			Address  string        `json:"address"`
			ID       uint64        `json:"id"`
		}{t.Standard, t.Address, t.ID})
	default:
		return nil, fmt.Errorf("unknown token standard %q", t.Standard)
	}
}

// UnmarshalJSON decodes a token, requiring the field its standard calls for.
func (t *Token) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return fmt.Errorf("token must be a JSON object")
	}

	tok := Token{
		Standard: TokenStandard(res.Get("tokenStandard").String()),
		Address:  res.Get("address").String(),
	}

	switch tok.Standard {
	case ERC20:
		amt, err := uintField(res, "amt")
		if err != nil {
			return fmt.Errorf("ERC20 token: %w", err)
		}
		tok.Amount = amt
	case ERC721:
		id, err := uintField(res, "id")
		if err != nil {
			return fmt.Errorf("ERC721 token: %w", err)
		}
		tok.ID = id
	}

	if err := tok.Validate(); err != nil {
		return err
	}
	*t = tok
	return nil
}

// uintField reads a JSON number that must be a non-negative integer within uint64.
// Fractions, negatives and exponent forms are errors rather than truncated.
func uintField(res gjson.Result, name string) (uint64, error) {
	v := res.Get(name)
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("requires a numeric %s", name)
	}
	n, err := strconv.ParseUint(v.Raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("numeric %s must be a non-negative integer, got %s", name, v.Raw)
	}
	return n, nil
}

// Offer proposes compute (described by Query) in exchange for Tokens.
type Offer struct {
	Query  string  `json:"query"`
	Tokens []Token `json:"tokens"`
}

func (Offer) Tag() string { return TagOffer }
func (Offer) variant()    {}

// Validate checks every token in the offer.
func (o Offer) Validate() error {
	for i, tok := range o.Tokens {
		if err := tok.Validate(); err != nil {
			return fmt.Errorf("invalid token at index %d: %w", i, err)
		}
	}
	return nil
}

// Cancel ends a negotiation, optionally explaining why.
type Cancel struct {
	Error string `json:"error,omitempty"`
}

func (Cancel) Tag() string     { return TagCancel }
func (Cancel) variant()        {}
func (Cancel) Validate() error { return nil }

// BuyAttest is the buyer's payment attestation.
type BuyAttest struct {
	Attestation string `json:"attestation"`
}

func (BuyAttest) Tag() string { return TagBuyAttest }
func (BuyAttest) variant()    {}

// Validate checks the attestation is hex.
func (b BuyAttest) Validate() error {
	if !isHex(b.Attestation) {
		return fmt.Errorf("invalid attestation %q: must be 0x-prefixed hex", b.Attestation)
	}
	return nil
}

// SellAttest is the seller's delivery attestation together with the compute result.
type SellAttest struct {
	Attestation string `json:"attestation"`
	Result      string `json:"result"`
}

func (SellAttest) Tag() string { return TagSellAttest }
func (SellAttest) variant()    {}

// Validate checks the attestation is hex.
func (s SellAttest) Validate() error {
	if !isHex(s.Attestation) {
		return fmt.Errorf("invalid attestation %q: must be 0x-prefixed hex", s.Attestation)
	}
	return nil
}

// Message is the envelope payload: exactly one Variant, serialized with its "_tag".
type Message struct {
	Variant
}

// Tag returns the variant's tag, or "" for an empty message.
func (m Message) Tag() string {
	if m.Variant == nil {
		return ""
	}
	return m.Variant.Tag()
}

// MarshalJSON encodes the variant and injects its "_tag".
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Variant == nil {
		return nil, fmt.Errorf("marketplace message has no variant")
	}
	b, err := json.Marshal(m.Variant)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", m.Variant.Tag(), err)
	}
	return sjson.SetBytes(b, "_tag", m.Variant.Tag())
}

// UnmarshalJSON selects the variant from "_tag". A JSON null leaves the message empty.
func (m *Message) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		return nil
	}
	if !res.IsObject() {
		return fmt.Errorf("marketplace message must be a JSON object")
	}

	tag := res.Get("_tag")
	if tag.Type != gjson.String || tag.Str == "" {
		return fmt.Errorf("marketplace message is missing _tag")
	}

	var (
		v   Variant
		err error
	)
	switch tag.Str {
	case TagOffer:
		v, err = decodeVariant[Offer](data)
	case TagCancel:
		v, err = decodeVariant[Cancel](data)
	case TagBuyAttest:
		v, err = decodeVariant[BuyAttest](data)
	case TagSellAttest:
		v, err = decodeVariant[SellAttest](data)
	default:
		return fmt.Errorf("unknown marketplace message tag %q", tag.Str)
	}
	if err != nil {
		return err
	}

	m.Variant = v
	return nil
}

func decodeVariant[V Variant](data []byte) (Variant, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", v.Tag(), err)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", v.Tag(), err)
	}
	return v, nil
}

func isHex(s string) bool {
	digits, ok := strings.CutPrefix(s, "0x")
	if !ok || digits == "" {
		return false
	}
	for _, c := range digits {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
