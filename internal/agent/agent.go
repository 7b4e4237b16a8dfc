// Package agent provides decision agents: the external deciders a negotiation driver
// consults for every accepted message.
//
// Every agent receives the input envelope as JSON and returns either an output
// envelope or the JSON string "noop". Agents do not validate their answers; the
// negotiation engine does.
package agent

import (
	"fmt"
	"time"

	"github.com/dyluth/parley/pkg/negotiation"
)

// Kind selects an agent implementation.
type Kind string

const (
	KindHTTP     Kind = "http"
	KindClaude   Kind = "claude"
	KindOpenAI   Kind = "openai"
	KindScripted Kind = "scripted"
)

// Kinds returns every supported agent kind.
func Kinds() []Kind {
	return []Kind{KindHTTP, KindClaude, KindOpenAI, KindScripted}
}

// Validate checks k is a supported kind.
func (k Kind) Validate() error {
	for _, known := range Kinds() {
		if k == known {
			return nil
		}
	}
	return fmt.Errorf("unknown agent kind %q (must be one of http, claude, openai, scripted)", k)
}

// Config selects and configures an agent.
type Config struct {
	Kind    Kind
	URL     string        // http
	Timeout time.Duration // http; zero means no client timeout
	Policy  string        // scripted: path to the policy file
	LLM     LLMOptions    // claude, openai
}

// New builds the agent described by cfg.
func New(cfg Config) (negotiation.Agent, error) {
	switch cfg.Kind {
	case KindHTTP:
		a, err := NewHTTP(cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return a, nil
	case KindClaude:
		return NewClaude(cfg.LLM), nil
	case KindOpenAI:
		return NewOpenAI(cfg.LLM), nil
	case KindScripted:
		p, err := LoadPolicy(cfg.Policy)
		if err != nil {
			return nil, err
		}
		a, err := NewScripted(*p)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, cfg.Kind.Validate()
	}
}
