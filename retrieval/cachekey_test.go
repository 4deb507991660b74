package retrieval

import "testing"

func TestCanonicalizeQueryTrimsAndCaseFolds(t *testing.T) {
	got := CanonicalizeQuery("  Paris   Capital  OF   France ")
	want := "paris capital of france"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNewCacheKeyIsOrderInsensitiveToBackendSet(t *testing.T) {
	a := NewCacheKey("paris capital", []string{"web", "news"}, true, 8, 10)
	b := NewCacheKey("paris capital", []string{"news", "web"}, true, 8, 10)
	if a.String() != b.String() {
		t.Fatalf("expected backend-set order to not affect the fingerprint")
	}
}

func TestNewCacheKeyDiffersOnAnyInput(t *testing.T) {
	base := NewCacheKey("paris capital", []string{"web"}, true, 8, 10)

	cases := []CacheKey{
		NewCacheKey("paris capitol", []string{"web"}, true, 8, 10),
		NewCacheKey("paris capital", []string{"news"}, true, 8, 10),
		NewCacheKey("paris capital", []string{"web"}, false, 8, 10),
		NewCacheKey("paris capital", []string{"web"}, true, 16, 10),
		NewCacheKey("paris capital", []string{"web"}, true, 8, 20),
	}
	for i, c := range cases {
		if c.String() == base.String() {
			t.Fatalf("case %d: expected a different fingerprint from base", i)
		}
	}
}

func TestLegacyAliasesAreDeterministicAndDistinctFromCanonical(t *testing.T) {
	canonical := NewCacheKey("paris capital", []string{"news", "web"}, true, 8, 10)
	aliases1 := LegacyAliases("paris capital", []string{"web", "news"}, true, 8, 10)
	aliases2 := LegacyAliases("paris capital", []string{"web", "news"}, true, 8, 10)

	if len(aliases1) == 0 {
		t.Fatalf("expected at least one legacy alias")
	}
	for i := range aliases1 {
		if aliases1[i] != aliases2[i] {
			t.Fatalf("expected legacy aliases to be deterministic for identical inputs")
		}
	}
	for _, alias := range aliases1 {
		if alias == canonical.String() {
			t.Fatalf("expected legacy aliases to differ from the canonical key's own fingerprint")
		}
	}
}
