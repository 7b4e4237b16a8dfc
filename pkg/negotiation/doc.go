// Package negotiation provides the generic protocol engine for Parley negotiations.
//
// # Overview
//
// Parties negotiate over a publish/subscribe bus. Every party runs a Driver that
// listens on its subscribed channels, hands each accepted message to an external
// decision agent, and submits the agent's reply to a Protocol. The Protocol is the
// only place protocol safety is enforced: the agent may emit any reply, and the
// Protocol accepts or rejects it from its rule table without knowing what the
// payloads mean.
//
// # Core Concepts
//
// Envelopes wrap a closed tagged-variant payload with routing metadata. The offer ID
// is chosen by the party that opens a negotiation and every later envelope of that
// negotiation carries the same offer ID.
//
// Channels are either the shared default channel, used only for initial broadcasts,
// or a per-negotiation channel named after the offer ID.
//
// A Protocol is an ordered rule table plus a closed role set. Rules are evaluated in
// declaration order and the first match wins; no match means reject.
//
// # Channel Layout
//
// Default channel: initial_offers (configurable)
// Negotiation channel: {offer_id}
//
// # Usage Example
//
//	bus := redisbus.New(&redis.Options{Addr: "localhost:6379"})
//	driver := negotiation.NewDriver(marketplace.Protocol(), bus, agent.NewHTTP(url))
//	if err := driver.Start(ctx, "seller", nil); err != nil {
//		log.Fatal(err)
//	}
//
// # Limitations
//
// Redelivered messages are not deduplicated, and a decision agent that never answers
// blocks the receive loop of that channel. Both are left to the transport and the
// agent.
package negotiation
