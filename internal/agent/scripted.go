package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

// Policy is a scripted agent's behaviour, loaded from YAML:
//
//	pubkey: "0x5e11e4"
//	rules:
//	  - when: offer
//	    initial: true
//	    reply:
//	      _tag: offer
//	      query: "gpu-hours"
//	      tokens: [{tokenStandard: ERC20, address: "0xa0b8", amt: 120}]
//	  - when: buyAttest
//	    reply: {_tag: sellAttest, attestation: "0xd0e5", result: "done"}
//
// The first rule whose trigger matches the incoming message wins. Messages that match no
// rule, and messages the agent itself originated, are answered with "noop".
type Policy struct {
	PubKey string       `yaml:"pubkey"`
	Rules  []PolicyRule `yaml:"rules"`
}

// PolicyRule maps an incoming message to a reply payload.
type PolicyRule struct {
	When    string         `yaml:"when"`    // Incoming payload tag
	Initial *bool          `yaml:"initial"` // When set, the incoming initial flag must equal it
	Reply   map[string]any `yaml:"reply"`   // Outgoing payload; nil answers "noop"
}

// Validate checks the policy is usable.
func (p *Policy) Validate() error {
	if p.PubKey == "" {
		return fmt.Errorf("policy pubkey cannot be empty")
	}
	for i, r := range p.Rules {
		if r.When == "" {
			return fmt.Errorf("rule %d: 'when' cannot be empty", i)
		}
		if r.Reply != nil {
			if tag, _ := r.Reply["_tag"].(string); tag == "" {
				return fmt.Errorf("rule %d: reply must carry a string _tag", i)
			}
		}
	}
	return nil
}

// LoadPolicy reads and validates a policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy %s: %w", path, err)
	}
	return &p, nil
}

// Scripted answers from a fixed Policy. It is deterministic and needs no network,
// which makes it useful for demos and end-to-end tests.
type Scripted struct {
	policy Policy
}

// NewScripted creates a scripted agent.
func NewScripted(p Policy) (*Scripted, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Scripted{policy: p}, nil
}

var noop = []byte(`"noop"`)

// Decide answers request according to the policy. The reply keeps the request's offer
// ID and carries the policy's pubkey.
func (s *Scripted) Decide(ctx context.Context, request []byte) ([]byte, error) {
	if !gjson.ValidBytes(request) {
		return nil, fmt.Errorf("request is not valid JSON")
	}
	in := gjson.ParseBytes(request)

	if in.Get("pubkey").String() == s.policy.PubKey {
		return noop, nil
	}

	tag := in.Get("data._tag").String()
	initial := in.Get("initial").Bool()

	for _, r := range s.policy.Rules {
		if r.When != tag || (r.Initial != nil && *r.Initial != initial) {
			continue
		}
		if r.Reply == nil {
			return noop, nil
		}
		return s.reply(in.Get("offerId").String(), r.Reply)
	}

	return noop, nil
}

func (s *Scripted) reply(offerID string, data map[string]any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reply payload: %w", err)
	}

	out := []byte(`{}`)
	out, err = sjson.SetBytes(out, "pubkey", s.policy.PubKey)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "offerId", offerID)
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(out, "data", payload)
}
