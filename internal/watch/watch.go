// Package watch streams negotiation traffic from the broker in human-readable or
// line-delimited JSON form.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/parley/internal/filter"
	"github.com/dyluth/parley/internal/marketplace"
	"github.com/dyluth/parley/pkg/negotiation"
)

// OutputFormat specifies how observed messages are written.
type OutputFormat string

const (
	// OutputFormatDefault prints one timestamped, emoji-tagged line per message
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON prints one JSON object per message
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (valid formats: default, json)", s)
	}
}

// Subscriber is the part of the broker client Stream needs.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, h negotiation.Handler) error
}

// Event is one observed message.
type Event struct {
	Time     time.Time             `json:"time"`
	Channel  string                `json:"channel"`
	Envelope *marketplace.Envelope `json:"envelope,omitempty"`
	Raw      string                `json:"raw,omitempty"`   // Set only when the payload could not be decoded
	Error    string                `json:"error,omitempty"` // Decode error
}

// NewEvent decodes payload as a marketplace envelope. Undecodable payloads still yield
// an event carrying the raw text and the error.
func NewEvent(at time.Time, channel, payload string) Event {
	ev := Event{Time: at, Channel: channel}
	env, err := negotiation.Decode[marketplace.Message]([]byte(payload))
	if err != nil {
		ev.Raw = payload
		ev.Error = err.Error()
		return ev
	}
	ev.Envelope = &env
	return ev
}

// Formatter writes events.
type Formatter interface {
	Format(ev Event) error
}

// NewFormatter returns the formatter for format writing to w.
func NewFormatter(format OutputFormat, w io.Writer) (Formatter, error) {
	switch format {
	case OutputFormatDefault:
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{encoder: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// Stream subscribes to every channel and writes each message that passes criteria
// (nil passes everything) through the formatter for format, until ctx is cancelled.
// Events are written one at a time.
func Stream(ctx context.Context, sub Subscriber, channels []string, criteria *filter.Criteria, format OutputFormat, w io.Writer) error {
	formatter, err := NewFormatter(format, w)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	handler := func(_ context.Context, payload, channel string) {
		ev := NewEvent(time.Now(), channel, payload)
		if !criteria.Matches(ev.Envelope) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		formatter.Format(ev)
	}

	for _, ch := range channels {
		if err := sub.Subscribe(ctx, ch, handler); err != nil {
			return fmt.Errorf("failed to watch channel %s: %w", ch, err)
		}
	}

	<-ctx.Done()
	return nil
}

type jsonFormatter struct {
	encoder *json.Encoder
}

func (f *jsonFormatter) Format(ev Event) error {
	return f.encoder.Encode(ev)
}

type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) Format(ev Event) error {
	ts := ev.Time.Format("15:04:05")
	if ev.Envelope == nil {
		_, err := fmt.Fprintf(f.writer, "[%s] ⚠️  Malformed message on %s: %s\n", ts, ev.Channel, ev.Error)
		return err
	}

	env := ev.Envelope
	initial := ""
	if env.Initial {
		initial = " (initial)"
	}
	_, err := fmt.Fprintf(f.writer, "[%s] %s %s: offer=%s, from=%s, channel=%s%s\n",
		ts, emoji(env.Tag()), describe(env.Data), env.OfferID, env.OriginatorKey, ev.Channel, initial)
	return err
}

func emoji(tag string) string {
	switch tag {
	case marketplace.TagOffer:
		return "📨"
	case marketplace.TagCancel:
		return "❌"
	case marketplace.TagBuyAttest:
		return "💰"
	case marketplace.TagSellAttest:
		return "✅"
	default:
		return "•"
	}
}

func describe(m marketplace.Message) string {
	switch v := m.Variant.(type) {
	case marketplace.Offer:
		tokens := make([]string, 0, len(v.Tokens))
		for _, t := range v.Tokens {
			tokens = append(tokens, describeToken(t))
		}
		return fmt.Sprintf("Offer %q [%s]", v.Query, strings.Join(tokens, ", "))
	case marketplace.Cancel:
		if v.Error == "" {
			return "Cancel"
		}
		return fmt.Sprintf("Cancel (%s)", v.Error)
	case marketplace.BuyAttest:
		return fmt.Sprintf("Payment attested %s", v.Attestation)
	case marketplace.SellAttest:
		return fmt.Sprintf("Delivery attested %s, result=%q", v.Attestation, v.Result)
	default:
		return m.Tag()
	}
}

func describeToken(t marketplace.Token) string {
	if t.Standard == marketplace.ERC721 {
		return fmt.Sprintf("ERC721 %s #%d", t.Address, t.ID)
	}
	return fmt.Sprintf("%d ERC20 %s", t.Amount, t.Address)
}
