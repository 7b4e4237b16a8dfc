package agent

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt instructs a language model to act as a negotiation party.
// %s is replaced with the party's role.
const DefaultSystemPrompt = `You are the %s in a compute marketplace negotiation.

You receive one JSON message envelope with fields "pubkey", "offerId", "initial" and
"data". "data" carries a "_tag" of "offer", "cancel", "buyAttest" or "sellAttest".

Reply with exactly one of:
- the JSON string "noop" when you do not want to respond, or when the envelope's
  "pubkey" is your own key;
- one JSON envelope answering the message. Keep the same "offerId", set "pubkey" to
  your own key and omit "initial".

Buyers may counter an offer or pay for it with a buyAttest. Sellers may counter an
offer, and answer a buyAttest with a sellAttest carrying the result. Anyone may cancel.
Reply with JSON only, no commentary.`

// LLMOptions configures the language-model agents.
type LLMOptions struct {
	Model        string
	APIKey       string // Empty uses the SDK's environment lookup
	BaseURL      string // Empty uses the provider default
	Role         string
	SystemPrompt string // Empty uses DefaultSystemPrompt
	MaxTokens    int64
	Temperature  float64
}

func (o LLMOptions) systemPrompt() string {
	if o.SystemPrompt != "" {
		return o.SystemPrompt
	}
	role := o.Role
	if role == "" {
		role = "participant"
	}
	return fmt.Sprintf(DefaultSystemPrompt, role)
}

func (o LLMOptions) maxTokens() int64 {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return 1024
}

func userPrompt(request []byte) string {
	return "Incoming message:\n" + string(request)
}

// extractReply pulls the JSON answer out of model text, tolerating a surrounding
// markdown code fence.
func extractReply(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// Drop the info string, e.g. ```json
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil, fmt.Errorf("model returned an empty reply")
	}
	return []byte(s), nil
}
