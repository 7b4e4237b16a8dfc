package marketplace

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOffer(t *testing.T) {
	tok := Token{Standard: ERC20, Address: "0xa0b8", Amount: 10}

	env, err := NewOffer("0xb0b", "render frames 1-100", tok)
	require.NoError(t, err)

	assert.True(t, env.Initial)
	assert.Equal(t, "0xb0b", env.OriginatorKey)
	_, err = uuid.Parse(env.OfferID)
	assert.NoError(t, err, "offer ID should be a UUID")
	assert.Equal(t, Offer{Query: "render frames 1-100", Tokens: []Token{tok}}, env.Data.Variant)

	other, err := NewOffer("0xb0b", "render frames 1-100", tok)
	require.NoError(t, err)
	assert.NotEqual(t, env.OfferID, other.OfferID)

	assert.True(t, Protocol().Start[0].Init.Matches(env.Tag(), env.Initial))
}

func TestNewOffer_NoTokensEncodesEmptyList(t *testing.T) {
	env, err := NewOffer("0xb0b", "q")
	require.NoError(t, err)

	raw, err := env.Encode()
	require.NoError(t, err)
	assert.Contains(t, raw, `"tokens":[]`)
}

func TestNewOffer_InvalidToken(t *testing.T) {
	_, err := NewOffer("0xb0b", "q", Token{Standard: ERC20, Address: "nope"})
	assert.Error(t, err)
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		in      string
		want    Token
		wantErr bool
	}{
		{in: "erc20:0xa0b8:250", want: Token{Standard: ERC20, Address: "0xa0b8", Amount: 250}},
		{in: "ERC721:0xbc4c:7", want: Token{Standard: ERC721, Address: "0xbc4c", ID: 7}},
		{in: "erc20:0xa0b8", wantErr: true},
		{in: "erc20:0xa0b8:-1", wantErr: true},
		{in: "erc20:0xa0b8:1.5", wantErr: true},
		{in: "erc1155:0xa0b8:1", wantErr: true},
		{in: "erc20:a0b8:1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseToken(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
