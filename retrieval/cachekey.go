// Package retrieval implements the Hybrid Retrieval Merger (§4.7): query
// canonicalization, a deterministic CacheKey, concurrent SearchBackend
// fan-out blended with storage hydration, and a writer-coalescing cache.
// Grounded on pkg/discovery/redis.go for the
// per-key-slot/writer-coalescing concurrency pattern.
package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// CacheKey is a stable fingerprint of the inputs that determine a
// retrieval result: canonical query text, the set of enabled backends,
// whether hybrid (storage hydration) is on, the embedding dimension in
// use, and top_k.
type CacheKey struct {
	fingerprint string
}

// String returns the key's fingerprint, suitable as a map key or cache
// backend key.
func (k CacheKey) String() string { return k.fingerprint }

// NewCacheKey computes the canonical CacheKey for the given inputs.
// backendSet is sorted before hashing so caller-supplied ordering never
// affects the fingerprint.
func NewCacheKey(canonicalQuery string, backendSet []string, hybrid bool, embeddingDim int, topK int) CacheKey {
	return CacheKey{fingerprint: fingerprintFor(canonicalQuery, backendSet, hybrid, embeddingDim, topK)}
}

func fingerprintFor(canonicalQuery string, backendSet []string, hybrid bool, embeddingDim int, topK int) string {
	sorted := append([]string(nil), backendSet...)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString(canonicalQuery)
	b.WriteByte('|')
	b.WriteString(strings.Join(sorted, ","))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(hybrid))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(embeddingDim))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(topK))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// CanonicalizeQuery implements step 1 of §4.7: trim, collapse internal
// whitespace, and case-fold — but only for cache-key purposes. Callers
// keep the original text for prompts, per the Query entity's own
// canonical-text-for-cache-only rule in §3.
func CanonicalizeQuery(raw string) string {
	fields := strings.Fields(raw)
	return strings.ToLower(strings.Join(fields, " "))
}

// LegacyAliases returns every legacy fingerprint form that must resolve
// to the same canonical CacheKey as NewCacheKey, so callers can seed a
// cache under all of them (§4.7 step 7) and readers using an older key
// shape still hit. Two legacy forms are carried forward from the
// original implementation's key history: one that did not sort the
// backend set, and one that used "top_k" as an explicit field name
// instead of a positional one. Both are deterministic functions of the
// same inputs, so they never drift out of sync with the canonical key.
func LegacyAliases(canonicalQuery string, backendSet []string, hybrid bool, embeddingDim int, topK int) []string {
	var aliases []string

	var unsorted strings.Builder
	unsorted.WriteString(canonicalQuery)
	unsorted.WriteByte('|')
	unsorted.WriteString(strings.Join(backendSet, ","))
	unsorted.WriteByte('|')
	unsorted.WriteString(strconv.FormatBool(hybrid))
	unsorted.WriteByte('|')
	unsorted.WriteString(strconv.Itoa(embeddingDim))
	unsorted.WriteByte('|')
	unsorted.WriteString(strconv.Itoa(topK))
	sum := sha256.Sum256([]byte(unsorted.String()))
	aliases = append(aliases, hex.EncodeToString(sum[:]))

	named := "q=" + canonicalQuery + ";backends=" + strings.Join(backendSet, ",") +
		";hybrid=" + strconv.FormatBool(hybrid) + ";dim=" + strconv.Itoa(embeddingDim) + ";top_k=" + strconv.Itoa(topK)
	namedSum := sha256.Sum256([]byte(named))
	aliases = append(aliases, hex.EncodeToString(namedSum[:]))

	return aliases
}
