package indexer

import (
	"fmt"
	"strings"
	"testing"
)

func words(n int, prefix string) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(w, " ")
}

func TestChunker_Chunk(t *testing.T) {
	c := NewChunker(3)
	chunks := c.Chunk("doc1", "one two three four five six seven")
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.DocumentID != "doc1" {
			t.Errorf("chunk %d DocumentID=%s", i, ch.DocumentID)
		}
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d ChunkIndex=%d", i, ch.ChunkIndex)
		}
		if ch.ID == "" {
			t.Error("chunk ID should be set")
		}
	}
	if chunks[2].Text != "seven" || chunks[2].TokenCount != 1 {
		t.Errorf("remainder chunk = %+v", chunks[2])
	}
}

func TestChunker_2500WordsInto1000WordWindows(t *testing.T) {
	chunks := NewChunker(1000).Chunk("d", words(2500, "w"))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	want := []int{1000, 1000, 500}
	for i, ch := range chunks {
		if ch.TokenCount != want[i] {
			t.Errorf("chunk %d token count = %d, want %d", i, ch.TokenCount, want[i])
		}
	}
}

func TestChunker_concatenationReconstructsWords(t *testing.T) {
	contents := []string{
		words(37, "a"),
		"# Beton\nC30 beton dökümü m3\n\n## Kalıp\n  kalıp   işçiliği\tm2 \n" + words(25, "b"),
		"line one\r\nline two\r\n\r\n   trailing   ",
	}
	for _, max := range []int{1, 4, 10, 1000} {
		for _, content := range contents {
			chunks := NewChunker(max).Chunk("d", content)
			parts := make([]string, len(chunks))
			for i, ch := range chunks {
				parts[i] = ch.Text
				if i < len(chunks)-1 && ch.TokenCount != max {
					t.Errorf("max=%d: non-final chunk %d has %d tokens", max, i, ch.TokenCount)
				}
				if ch.TokenCount > max {
					t.Errorf("max=%d: chunk %d exceeds window: %d", max, i, ch.TokenCount)
				}
			}
			got := strings.Join(parts, " ")
			want := strings.Join(strings.Fields(content), " ")
			if got != want {
				t.Errorf("max=%d: reconstruction mismatch\n got: %q\nwant: %q", max, got, want)
			}
		}
	}
}

func TestChunker_headings(t *testing.T) {
	text := "# Betonarme\nintro text\n## Donatı\nrebar work\n### Kolon\ncolumn rebar\n## Kalıp\nformwork panels"
	chunks := NewChunker(2).Chunk("d", text)

	byText := map[string]struct{ heading, path string }{}
	for _, ch := range chunks {
		byText[ch.Text] = struct{ heading, path string }{ch.Heading, ch.SectionPath}
	}
	tests := []struct {
		text, heading, path string
	}{
		{"# Betonarme", "Betonarme", "Betonarme"},
		{"intro text", "Betonarme", "Betonarme"},
		{"## Donatı", "Donatı", "Betonarme > Donatı"},
		{"rebar work", "Donatı", "Betonarme > Donatı"},
		{"column rebar", "Kolon", "Betonarme > Donatı > Kolon"},
		{"## Kalıp", "Kalıp", "Betonarme > Kalıp"},
		{"formwork panels", "Kalıp", "Betonarme > Kalıp"},
	}
	for _, tt := range tests {
		got, ok := byText[tt.text]
		if !ok {
			t.Errorf("no chunk with text %q", tt.text)
			continue
		}
		if got.heading != tt.heading || got.path != tt.path {
			t.Errorf("chunk %q: heading=%q path=%q, want %q %q", tt.text, got.heading, got.path, tt.heading, tt.path)
		}
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := NewChunker(5)
	if chunks := c.Chunk("d", "   \n\t  "); chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestNewChunker_defaultWindow(t *testing.T) {
	if got := NewChunker(0).MaxTokens(); got != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", got, DefaultMaxTokens)
	}
}
