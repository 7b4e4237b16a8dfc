package negotiation

import (
	"context"
	"fmt"
)

// DefaultChannel is the well-known channel used for opening broadcasts.
const DefaultChannel = "initial_offers"

// Handler receives one wire message and the channel it arrived on.
type Handler func(ctx context.Context, payload string, channel string)

// Transport is the pub/sub collaborator the Router drives.
// Implementations deliver messages for one channel sequentially to the handler given
// at subscription time.
type Transport interface {
	// Connect establishes (or verifies) the connection to the bus.
	Connect(ctx context.Context) error

	// Subscribe starts delivering messages published on channel to h.
	// Subscribing to a channel that is already subscribed is a no-op.
	Subscribe(ctx context.Context, channel string, h Handler) error

	// Unsubscribe stops delivery for channel.
	Unsubscribe(ctx context.Context, channel string) error

	// Publish sends payload to every subscriber of channel.
	Publish(ctx context.Context, channel string, payload string) error
}

// Channels is the set of actions a Protocol may trigger. Router is the implementation
// used at runtime.
type Channels[P Payload] interface {
	Subscribe(ctx context.Context, offerID string) error
	Unsubscribe(ctx context.Context, offerID string) error
	Send(ctx context.Context, msg Envelope[P]) error
	SubscribeSend(ctx context.Context, msg Envelope[P]) error
	UnsubscribeSend(ctx context.Context, msg Envelope[P]) error
}

// Router maps offer IDs onto transport channels and provides the composite
// join-and-announce and announce-and-leave operations on top of any Transport.
type Router[P Payload] struct {
	transport      Transport
	defaultChannel string
	handler        Handler
}

// NewRouter creates a router that subscribes handler to every channel it joins.
// An empty defaultChannel falls back to DefaultChannel.
func NewRouter[P Payload](transport Transport, defaultChannel string, handler Handler) *Router[P] {
	if defaultChannel == "" {
		defaultChannel = DefaultChannel
	}
	return &Router[P]{
		transport:      transport,
		defaultChannel: defaultChannel,
		handler:        handler,
	}
}

// DefaultChannel returns the name of the channel used for initial broadcasts.
func (r *Router[P]) DefaultChannel() string {
	return r.defaultChannel
}

// ChannelFor returns the channel for offerID, or the default channel when offerID is empty.
func (r *Router[P]) ChannelFor(offerID string) string {
	if offerID == "" {
		return r.defaultChannel
	}
	return offerID
}

// Subscribe joins the channel for offerID (the default channel when empty).
func (r *Router[P]) Subscribe(ctx context.Context, offerID string) error {
	channel := r.ChannelFor(offerID)
	if err := r.transport.Subscribe(ctx, channel, r.handler); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	return nil
}

// Unsubscribe leaves the channel for offerID (the default channel when empty).
func (r *Router[P]) Unsubscribe(ctx context.Context, offerID string) error {
	channel := r.ChannelFor(offerID)
	if err := r.transport.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", channel, err)
	}
	return nil
}

// Send publishes msg on the default channel if it is initial, otherwise on its
// negotiation channel.
func (r *Router[P]) Send(ctx context.Context, msg Envelope[P]) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	channel := msg.OfferID
	if msg.Initial {
		channel = r.defaultChannel
	}

	if err := r.transport.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// SubscribeSend joins msg's negotiation channel and then sends msg.
// If the subscription fails the message is not sent.
func (r *Router[P]) SubscribeSend(ctx context.Context, msg Envelope[P]) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := r.Subscribe(ctx, msg.OfferID); err != nil {
		return err
	}
	return r.Send(ctx, msg)
}

// UnsubscribeSend leaves msg's negotiation channel and then sends msg.
// If leaving fails the message is not sent.
func (r *Router[P]) UnsubscribeSend(ctx context.Context, msg Envelope[P]) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := r.Unsubscribe(ctx, msg.OfferID); err != nil {
		return err
	}
	return r.Send(ctx, msg)
}
