package marketplace

import "github.com/dyluth/parley/pkg/negotiation"

// Role is a marketplace participant.
type Role string

const (
	Buyer  Role = "buyer"
	Seller Role = "seller"
)

// Roles returns the closed role set.
func Roles() []Role {
	return []Role{Buyer, Seller}
}

// ProtocolName identifies the marketplace protocol in logs and config.
const ProtocolName = "compute-marketplace"

// Protocol returns the marketplace rule tables. Each call returns a fresh value.
//
// There is no re-initiation policy: every reply must carry the offer ID of the message
// it answers.
func Protocol() *negotiation.Protocol[Message, Role] {
	initialOffer := negotiation.Initial(TagOffer)

	return &negotiation.Protocol[Message, Role]{
		Name:  ProtocolName,
		Roles: Roles(),
		Tags:  Tags(),
		Start: []negotiation.StartRule[Role]{
			{
				Name:   "buyer opens with an initial offer",
				Roles:  []Role{Buyer},
				Init:   &initialOffer,
				Action: negotiation.ActionSubscribeSend,
			},
			{
				Name:   "seller listens for offers",
				Roles:  []Role{Seller},
				Action: negotiation.ActionSubscribe,
			},
		},
		Rules: []negotiation.Rule[Role]{
			{
				Name:   "cancel",
				Input:  negotiation.Any(),
				Output: negotiation.Tagged(TagCancel),
				Action: negotiation.ActionUnsubscribeSend,
			},
			{
				Name:   "seller delivers after payment",
				Roles:  []Role{Seller},
				Input:  negotiation.Tagged(TagBuyAttest),
				Output: negotiation.Tagged(TagSellAttest),
				Action: negotiation.ActionUnsubscribeSend,
			},
			{
				Name:   "seller counters an initial offer",
				Roles:  []Role{Seller},
				Input:  negotiation.Initial(TagOffer),
				Output: negotiation.Tagged(TagOffer),
				Action: negotiation.ActionSubscribeSend,
			},
			{
				Name:   "counteroffer",
				Input:  negotiation.Tagged(TagOffer),
				Output: negotiation.Tagged(TagOffer),
				Action: negotiation.ActionSend,
			},
			{
				Name:   "buyer pays",
				Roles:  []Role{Buyer},
				Input:  negotiation.Tagged(TagOffer),
				Output: negotiation.Tagged(TagBuyAttest),
				Action: negotiation.ActionSend,
			},
		},
	}
}
