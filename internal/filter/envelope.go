package filter

import (
	"path/filepath"

	"github.com/dyluth/parley/internal/marketplace"
)

// Criteria defines filtering criteria for observed envelopes.
// All filters are ANDed together - an envelope must match ALL criteria to pass.
type Criteria struct {
	TagGlob     string // Glob pattern for the payload tag, empty = no filter
	PubKey      string // Exact match for the originator key, empty = no filter
	InitialOnly bool   // Only opening broadcasts
}

// Matches returns true if env matches all filter criteria. A nil envelope (a message
// that could not be decoded) only matches when no filters are active.
func (c *Criteria) Matches(env *marketplace.Envelope) bool {
	if c == nil || !c.HasFilters() {
		return true
	}
	if env == nil {
		return false
	}

	if c.TagGlob != "" {
		matched, err := filepath.Match(c.TagGlob, env.Tag())
		if err != nil || !matched {
			return false
		}
	}

	if c.PubKey != "" && env.OriginatorKey != c.PubKey {
		return false
	}

	if c.InitialOnly && !env.Initial {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.TagGlob != "" || c.PubKey != "" || c.InitialOnly
}

// Validate checks the tag pattern is well formed.
func (c *Criteria) Validate() error {
	if c.TagGlob == "" {
		return nil
	}
	_, err := filepath.Match(c.TagGlob, "")
	return err
}
