package search

import "testing"

// ---------- Options + defaultConfig ----------
func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.minDocRunes != 0 || def.maxDocs != 0 {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}
	if _, ok := def.stopwords["the"]; !ok {
		t.Fatalf("default stopwords missing 'the'")
	}

	cfg := def
	WithMinDocRunes(10)(&cfg)
	if cfg.minDocRunes != 10 {
		t.Fatalf("WithMinDocRunes failed: %d", cfg.minDocRunes)
	}
	WithMinDocRunes(-5)(&cfg) // no-op
	if cfg.minDocRunes != 10 {
		t.Fatalf("negative minDocRunes should be ignored")
	}

	WithStopwords([]string{"  Vegan ", ""})(&cfg)
	if _, ok := cfg.stopwords["vegan"]; !ok || len(cfg.stopwords) != 1 {
		t.Fatalf("WithStopwords failed: %#v", cfg.stopwords)
	}

	WithMaxDocs(2)(&cfg)
	if cfg.maxDocs != 2 {
		t.Fatalf("WithMaxDocs failed: %d", cfg.maxDocs)
	}
	WithMaxDocs(0)(&cfg) // no-op
	if cfg.maxDocs != 2 {
		t.Fatalf("non-positive maxDocs should be ignored")
	}
}

func TestNewIndexFromStrings_SkipsEmptyAndKeepsPositions(t *testing.T) {
	idx := NewIndexFromStrings([]string{"", "Green Leaf Cafe vegan brunch", "   ", "Iron Gym 24 hour"})
	if idx.Len() != 2 {
		t.Fatalf("Len = %d, want 2", idx.Len())
	}
	res := idx.TopK("gym", 0)
	if len(res) != 1 || res[0].Pos != 3 {
		t.Fatalf("res = %+v", res)
	}
}

func TestNewIndexFromStrings_MinRunesAndMaxDocs(t *testing.T) {
	idx := NewIndexFromStrings([]string{"tiny", "a longer document here", "another longer document"},
		WithMinDocRunes(6), WithMaxDocs(1))
	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want 1", idx.Len())
	}
	if res := idx.TopK("document", 5); len(res) != 1 || res[0].Pos != 1 {
		t.Fatalf("res = %+v", res)
	}
}

func TestTopK_RanksByJaccardWithStableTies(t *testing.T) {
	idx := NewIndexFromStrings([]string{
		"organic grocery",               // 0: 1/3 for "organic market"
		"organic market fresh produce",  // 1: 2/4
		"farmers market",                // 2: 1/3
		"hardware store",                // 3: no overlap
	})
	res := idx.TopK("organic market", 0)
	if len(res) != 3 {
		t.Fatalf("res = %+v", res)
	}
	if res[0].Pos != 1 || res[1].Pos != 0 || res[2].Pos != 2 {
		t.Fatalf("order = %+v", res)
	}
	if res[0].Score != 0.5 {
		t.Fatalf("top score = %v, want 0.5", res[0].Score)
	}

	if top := idx.TopK("organic market", 1); len(top) != 1 || top[0].Pos != 1 {
		t.Fatalf("k=1: %+v", top)
	}
}

func TestTopK_EmptyInputs(t *testing.T) {
	idx := NewIndexFromStrings([]string{"coffee shop"})
	if res := idx.TopK("   ", 3); res != nil {
		t.Fatalf("blank query: %+v", res)
	}
	if res := idx.TopK("the and", 3); res != nil {
		t.Fatalf("stopword-only query: %+v", res)
	}
	if res := idx.TopK("bakery", 3); res != nil {
		t.Fatalf("no overlap: %+v", res)
	}
	if res := NewIndexFromStrings(nil).TopK("coffee", 3); res != nil {
		t.Fatalf("empty index: %+v", res)
	}
}

func TestHelpers_TokenizeOverlapWhitespace(t *testing.T) {
	toks := tokenize("Open 24 Hours, Wi-Fi & the parking", defaultStopwords)
	for _, w := range []string{"open", "24", "hours", "wi", "fi", "parking"} {
		if _, ok := toks[w]; !ok {
			t.Fatalf("missing token %q in %v", w, toks)
		}
	}
	if _, ok := toks["the"]; ok {
		t.Fatal("stopword not removed")
	}
	if tokenize("!!!", nil) != nil {
		t.Fatal("punctuation-only should tokenize to nil")
	}

	a := map[string]struct{}{"x": {}, "y": {}, "z": {}}
	b := map[string]struct{}{"y": {}}
	if overlap(a, b) != 1 || overlap(b, a) != 1 || overlap(nil, a) != 0 {
		t.Fatal("overlap mismatch")
	}

	if got := normalizeWhitespace("a \t\n b\r\rc"); got != "a b c" {
		t.Fatalf("normalizeWhitespace = %q", got)
	}
}
