package dedup

import "strings"

// Verb is the request method of a logical request.
type Verb string

const (
	VerbGet    Verb = "GET"
	VerbHead   Verb = "HEAD"
	VerbPost   Verb = "POST"
	VerbPut    Verb = "PUT"
	VerbPatch  Verb = "PATCH"
	VerbDelete Verb = "DELETE"
)

// Priority controls retention order under memory pressure.
// Low-priority entries are evicted first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// rank maps a priority to an eviction ordering value.
// Lower rank is evicted first. Unknown values rank as normal.
func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

// RequestDescriptor describes a logical outbound request for caching
// purposes. It is immutable once constructed; the engine never modifies it.
type RequestDescriptor struct {
	// Target is the request target, typically a URL path with query
	// (e.g. "/api/products/abc").
	Target string

	// Verb is the request method. Empty is treated as GET.
	Verb Verb

	// Body is the optional request payload. It must be JSON-serializable
	// to participate in fingerprinting; a non-serializable body makes the
	// request bypass caching for that call.
	Body any

	// Headers are the optional request headers. Only cache-relevant
	// headers (content-type, authorization, accept) affect the fingerprint.
	Headers map[string]string

	// Priority is the retention priority. Empty is treated as normal.
	Priority Priority

	// Tag is an optional grouping label recorded on the cache entry,
	// usable for pattern invalidation (e.g. "catalog", "checkout").
	Tag string
}

// verb returns the normalized verb, defaulting to GET.
func (d RequestDescriptor) verb() Verb {
	v := Verb(strings.ToUpper(string(d.Verb)))
	if v == "" {
		return VerbGet
	}
	return v
}

// priority returns the normalized priority, defaulting to normal.
func (d RequestDescriptor) priority() Priority {
	switch d.Priority {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return d.Priority
	default:
		return PriorityNormal
	}
}
