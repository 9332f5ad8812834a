package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("beton kalıp", 10)
	if len(ids) != 10 || len(types) != 10 {
		t.Errorf("len(ids)=%d len(types)=%d", len(ids), len(types))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS 101, got %d", ids[0])
	}
	if ids[3] != 102 {
		t.Errorf("expected SEP 102 after two words, got %d", ids[3])
	}
	if attn[3] != 1 || attn[4] != 0 {
		t.Errorf("attention mask %v", attn)
	}

	upper, _, _ := tok.Tokenize("BETON", 4)
	lower, _, _ := tok.Tokenize("beton", 4)
	if upper[1] != lower[1] {
		t.Error("tokenization should be case-insensitive")
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a \t b\n c  ")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
}
