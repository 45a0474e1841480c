package dedup

import (
	"strings"
	"time"
)

// EndpointClass assigns a TTL to targets containing a substring.
// Classes are matched in order; the first match wins.
type EndpointClass struct {
	// Match is a lowercase substring of the target (e.g. "search").
	Match string

	// TTL is the freshness window for entries in this class.
	TTL time.Duration
}

// PolicyConfig holds eligibility and TTL configuration.
type PolicyConfig struct {
	// DefaultTTL applies to eligible requests that match no endpoint class.
	DefaultTTL time.Duration

	// Classes maps endpoint classes to TTLs, checked in order.
	Classes []EndpointClass

	// MutationAllowList contains target substrings for which non-DELETE
	// mutating verbs are still deduplicated. These are endpoints where
	// rapid duplicate submissions (double-click, retry storms) are a
	// known failure mode worth suppressing for a short window.
	MutationAllowList []string
}

// DefaultPolicyConfig returns the storefront default policy.
//
// Reads that rarely change (product detail) get long TTLs, volatile or
// expensive reads (search) short ones, and coalesced mutations
// (cart, profile, auth) short-but-nonzero windows.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		DefaultTTL: 5 * time.Second,
		Classes: []EndpointClass{
			{Match: "search", TTL: 2 * time.Second},
			{Match: "product", TTL: 10 * time.Second},
			{Match: "cart", TTL: 3 * time.Second},
			{Match: "profile", TTL: 5 * time.Second},
			{Match: "auth", TTL: 8 * time.Second},
			{Match: "login", TTL: 8 * time.Second},
		},
		MutationAllowList: []string{"cart", "login", "profile", "orders"},
	}
}

// Policy decides whether deduplication applies to a request and which
// TTL a cache entry gets. Both decisions are pure functions of verb and
// target.
type Policy struct {
	cfg PolicyConfig
}

// NewPolicy creates a policy from the given configuration.
// Zero-valued fields fall back to the defaults.
func NewPolicy(cfg PolicyConfig) *Policy {
	defaults := DefaultPolicyConfig()
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaults.DefaultTTL
	}
	if cfg.Classes == nil {
		cfg.Classes = defaults.Classes
	}
	if cfg.MutationAllowList == nil {
		cfg.MutationAllowList = defaults.MutationAllowList
	}
	return &Policy{cfg: cfg}
}

// IsEligible reports whether deduplication applies to the descriptor.
// Read verbs are always eligible. DELETE is never eligible. Other
// mutating verbs are eligible only when the target matches the
// mutation allow-list.
func (p *Policy) IsEligible(desc RequestDescriptor) bool {
	switch desc.verb() {
	case VerbGet, VerbHead:
		return true
	case VerbDelete:
		return false
	}

	target := strings.ToLower(desc.Target)
	for _, allowed := range p.cfg.MutationAllowList {
		if strings.Contains(target, allowed) {
			return true
		}
	}
	return false
}

// TTLFor returns the freshness window for the descriptor's endpoint
// class, or the default TTL when no class matches.
func (p *Policy) TTLFor(desc RequestDescriptor) time.Duration {
	target := strings.ToLower(desc.Target)
	for _, class := range p.cfg.Classes {
		if strings.Contains(target, class.Match) {
			return class.TTL
		}
	}
	return p.cfg.DefaultTTL
}
