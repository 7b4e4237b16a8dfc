package marketplace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewOffer builds the initial broadcast that opens a negotiation, with a fresh offer ID.
func NewOffer(pubkey, query string, tokens ...Token) (Envelope, error) {
	offer := Offer{Query: query, Tokens: tokens}
	if offer.Tokens == nil {
		offer.Tokens = []Token{}
	}
	if err := offer.Validate(); err != nil {
		return Envelope{}, err
	}

	return Envelope{
		OriginatorKey: pubkey,
		OfferID:       uuid.NewString(),
		Initial:       true,
		Data:          Message{Variant: offer},
	}, nil
}

// ParseToken parses a token from "erc20:ADDRESS:AMOUNT" or "erc721:ADDRESS:ID".
// The standard is case-insensitive.
func ParseToken(s string) (Token, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Token{}, fmt.Errorf("invalid token %q: expected STANDARD:ADDRESS:VALUE", s)
	}

	value, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("invalid token %q: value must be a non-negative integer", s)
	}

	tok := Token{Standard: TokenStandard(strings.ToUpper(parts[0])), Address: parts[1]}
	switch tok.Standard {
	case ERC20:
		tok.Amount = value
	case ERC721:
		tok.ID = value
	}

	if err := tok.Validate(); err != nil {
		return Token{}, fmt.Errorf("invalid token %q: %w", s, err)
	}
	return tok, nil
}
