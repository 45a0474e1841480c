package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint is the deterministic identity of a logical request.
// Two descriptors that are equal for caching purposes always produce
// the same fingerprint.
type Fingerprint string

// fieldAbsent is serialized in place of a missing body or header set so
// that absence stays distinguishable from an empty value.
const fieldAbsent = "null"

// cacheRelevantHeaders is the allow-list of headers that participate in
// fingerprinting. All other headers are ignored so header noise
// (tracing IDs, user agents) does not defeat deduplication.
var cacheRelevantHeaders = map[string]bool{
	"content-type":  true,
	"authorization": true,
	"accept":        true,
}

// ComputeFingerprint derives the fingerprint for a descriptor.
// It is pure: verb is uppercased, target lowercased, the body serialized
// canonically, and headers filtered to the cache-relevant allow-list
// before the canonical string is hashed.
//
// Returns an error only when the body cannot be serialized; callers are
// expected to fail open (bypass caching) in that case.
func ComputeFingerprint(desc RequestDescriptor) (Fingerprint, error) {
	body := fieldAbsent
	if desc.Body != nil {
		data, err := json.Marshal(desc.Body)
		if err != nil {
			return "", fmt.Errorf("serialize body: %w", err)
		}
		body = string(data)
	}

	canonical := strings.Join([]string{
		string(desc.verb()),
		strings.ToLower(desc.Target),
		body,
		canonicalHeaders(desc.Headers),
	}, "|")

	sum := sha256.Sum256([]byte(canonical))
	return Fingerprint(hex.EncodeToString(sum[:])), nil
}

// canonicalHeaders serializes the cache-relevant subset of headers in
// sorted key order. Returns the absence sentinel when no relevant header
// is present.
func canonicalHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return fieldAbsent
	}

	keys := make([]string, 0, len(headers))
	for key := range headers {
		if cacheRelevantHeaders[strings.ToLower(key)] {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return fieldAbsent
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, strings.ToLower(key)+"="+headers[key])
	}
	return strings.Join(parts, "&")
}
