package chunker

import (
	"strings"
	"testing"

	"github.com/edurag/edurag-go/internal/analyzer"
)

// sentenceOf builds a sentence of exactly n characters ending in a period.
func sentenceOf(t *testing.T, n int, seed string) string {
	t.Helper()
	if n < len(seed)+2 {
		t.Fatalf("sentence length %d too short for seed %q", n, seed)
	}
	body := seed + " " + strings.Repeat("x", n-len(seed)-2)
	return body[:n-1] + "."
}

// paragraphOfSentences joins k sentences of length size into one paragraph.
func paragraphOfSentences(t *testing.T, k, size int, seed string) string {
	t.Helper()
	parts := make([]string, k)
	for i := range parts {
		parts[i] = sentenceOf(t, size, seed)
	}
	return strings.Join(parts, " ")
}

func chunkFixture(t *testing.T, text string, pageCount int, cfg Config) []Chunk {
	t.Helper()
	structure := analyzer.Analyze(text, pageCount)
	return New(cfg).Chunk(text, structure, "doc-1", Context{
		SubjectID:  "IBDN",
		TopicID:    "topic-1",
		SubtopicID: "sub-1",
		UploaderID: "user-1",
	})
}

func TestChunk_EmptyText(t *testing.T) {
	t.Parallel()
	if got := chunkFixture(t, "   \n\n  ", 1, Config{}); got != nil {
		t.Errorf("expected nil for whitespace-only text, got %d chunks", len(got))
	}
}

func TestChunk_SingleShortText(t *testing.T) {
	t.Parallel()
	text := "A single short sentence."
	chunks := chunkFixture(t, text, 1, Config{})

	if len(chunks) != 1 {
		t.Fatalf("chunks: got %d, want 1", len(chunks))
	}
	// The sole chunk may be shorter than MinChunkSize.
	if chunks[0].Text != text {
		t.Errorf("text: got %q", chunks[0].Text)
	}
	if chunks[0].Index != 0 || chunks[0].Position != 0 {
		t.Errorf("sole chunk must have index 0 and position 0, got %d / %v", chunks[0].Index, chunks[0].Position)
	}
}

func TestChunk_SizeInvariant(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxChunkSize: 250, MinChunkSize: 100, OverlapSize: 50, MaxSentences: 5}
	text := paragraphOfSentences(t, 4, 50, "alpha") + "\n\n" +
		paragraphOfSentences(t, 4, 50, "bravo") + "\n\n" +
		paragraphOfSentences(t, 4, 50, "charlie")

	chunks := chunkFixture(t, text, 1, cfg)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, ch := range chunks {
		if ch.CharCount != len(ch.Text) {
			t.Errorf("chunk %d: CharCount %d != len(Text) %d", i, ch.CharCount, len(ch.Text))
		}
		if ch.CharCount > cfg.MaxChunkSize+cfg.OverlapSize {
			t.Errorf("chunk %d: %d chars exceeds max+overlap %d", i, ch.CharCount, cfg.MaxChunkSize+cfg.OverlapSize)
		}
		if i < len(chunks)-1 && ch.CharCount < cfg.MinChunkSize {
			t.Errorf("non-final chunk %d below MinChunkSize: %d", i, ch.CharCount)
		}
	}
}

// TestChunk_OverlapBudgetCountsJoinSpace pins the overlap accounting on
// boundary-exact sentence lengths: the budget must cover the space joining
// the seeded overlap to the chunk core, or a chunk lands one byte over
// MaxChunkSize+OverlapSize.
func TestChunk_OverlapBudgetCountsJoinSpace(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxChunkSize: 250, MinChunkSize: 100, OverlapSize: 50, MaxSentences: 5}

	// The first chunk closes at exactly MaxChunkSize with a trailing
	// sentence of exactly OverlapSize characters; the following core then
	// fills MaxChunkSize exactly.
	text := strings.Join([]string{
		sentenceOf(t, 199, "alpha"),
		sentenceOf(t, 50, "tail"),
		sentenceOf(t, 250, "bravo"),
		sentenceOf(t, 120, "charlie"),
	}, " ")

	chunks := chunkFixture(t, text, 1, cfg)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.CharCount > cfg.MaxChunkSize+cfg.OverlapSize {
			t.Errorf("chunk %d: %d chars exceeds max+overlap %d",
				i, ch.CharCount, cfg.MaxChunkSize+cfg.OverlapSize)
		}
	}
}

func TestChunk_OverlapSeedsNextChunk(t *testing.T) {
	t.Parallel()
	// Overlap budget of 60 admits one 50-character sentence plus its
	// joining space as the seeded tail.
	cfg := Config{MaxChunkSize: 250, MinChunkSize: 100, OverlapSize: 60, MaxSentences: 5}
	// Three 200-character paragraphs of four 50-character sentences each,
	// per the chunk-size configuration above.
	text := paragraphOfSentences(t, 4, 50, "alpha") + "\n\n" +
		paragraphOfSentences(t, 4, 50, "bravo") + "\n\n" +
		paragraphOfSentences(t, 4, 50, "charlie")

	chunks := chunkFixture(t, text, 1, cfg)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	first, second := chunks[0], chunks[1]

	// The second chunk must begin with overlap text drawn from the tail of
	// the first chunk, and the two must not be identical.
	if !strings.HasSuffix(first.Text, overlapPrefix(second.Text, cfg.OverlapSize)) {
		t.Errorf("second chunk does not start with the tail of the first:\nfirst:  %q\nsecond: %q", first.Text, second.Text)
	}
	if first.Text == second.Text {
		t.Error("consecutive chunks must not be identical")
	}
	if second.StartOffset <= first.StartOffset {
		t.Error("chunk start offsets must be strictly increasing")
	}
	// Overlap is bounded by the configured budget.
	if overlap := first.EndOffset - second.StartOffset; overlap > cfg.OverlapSize {
		t.Errorf("offset overlap %d exceeds budget %d", overlap, cfg.OverlapSize)
	}
}

// overlapPrefix returns the prefix of text up to the first sentence boundary
// within the overlap budget.
func overlapPrefix(text string, budget int) string {
	if i := strings.Index(text, ". "); i >= 0 && i+1 <= budget {
		return text[:i+1]
	}
	if len(text) > budget {
		return text[:budget]
	}
	return text
}

func TestChunk_MaxSentencesCap(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxChunkSize: 10_000, MinChunkSize: 10, OverlapSize: 0, MaxSentences: 3}
	text := paragraphOfSentences(t, 9, 40, "delta")

	chunks := chunkFixture(t, text, 1, cfg)
	if len(chunks) != 3 {
		t.Fatalf("chunks: got %d, want 3 (9 sentences / cap 3)", len(chunks))
	}
	for i, ch := range chunks {
		if ch.SentenceCount > cfg.MaxSentences {
			t.Errorf("chunk %d: %d sentences exceeds cap", i, ch.SentenceCount)
		}
	}
}

func TestChunk_Determinism(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxChunkSize: 300, MinChunkSize: 80, OverlapSize: 60, MaxSentences: 4}
	text := paragraphOfSentences(t, 5, 45, "echo") + "\n\nSection Heading Here\n\n" +
		paragraphOfSentences(t, 6, 55, "foxtrot")

	a := chunkFixture(t, text, 1, cfg)
	b := chunkFixture(t, text, 1, cfg)

	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Text != b[i].Text || a[i].StartOffset != b[i].StartOffset || a[i].EndOffset != b[i].EndOffset {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunk_Coverage(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxChunkSize: 200, MinChunkSize: 40, OverlapSize: 40, MaxSentences: 4}
	text := paragraphOfSentences(t, 12, 45, "golf")

	chunks := chunkFixture(t, text, 1, cfg)
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}

	// Chunks' spans, merged, must cover the source text end to end.
	if chunks[0].StartOffset != 0 {
		t.Errorf("coverage gap at start: first chunk begins at %d", chunks[0].StartOffset)
	}
	for i := 1; i < len(chunks); i++ {
		prevEnd, start := chunks[i-1].EndOffset, chunks[i].StartOffset
		if start <= prevEnd {
			continue // counted overlap
		}
		if gap := text[prevEnd:start]; strings.TrimSpace(gap) != "" {
			t.Errorf("coverage gap between chunks %d and %d: %q", i-1, i, gap)
		}
	}
	if last := chunks[len(chunks)-1]; last.EndOffset != len(text) {
		t.Errorf("coverage gap at end: last chunk ends at %d of %d", last.EndOffset, len(text))
	}
}

func TestChunk_Enrichment(t *testing.T) {
	t.Parallel()
	text := "2.1 Kafka Partitions\n\n" +
		paragraphOfSentences(t, 4, 60, "kafka") + "\n\n\n" +
		paragraphOfSentences(t, 4, 60, "hotel")

	chunks := chunkFixture(t, text, 2, Config{MaxChunkSize: 300, MinChunkSize: 50, OverlapSize: 0, MaxSentences: 4})
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	// Every chunk after the heading attributes to it.
	for i, ch := range chunks {
		if i == 0 && ch.IsHeading {
			continue
		}
		if ch.SectionTitle != "2.1 Kafka Partitions" {
			t.Errorf("chunk %d: section title %q", i, ch.SectionTitle)
		}
		if ch.PageNumber < 1 {
			t.Errorf("chunk %d: missing page number", i)
		}
	}

	// Navigation links mirror array positions.
	for i, ch := range chunks {
		if i == 0 && ch.PrevChunkID != "" {
			t.Error("first chunk must have no prev link")
		}
		if i > 0 && ch.PrevChunkID != chunks[i-1].ID {
			t.Errorf("chunk %d: prev link %q, want %q", i, ch.PrevChunkID, chunks[i-1].ID)
		}
		if i < len(chunks)-1 && ch.NextChunkID != chunks[i+1].ID {
			t.Errorf("chunk %d: broken next link", i)
		}
	}
	if last := chunks[len(chunks)-1]; last.NextChunkID != "" {
		t.Error("last chunk must have no next link")
	}
	if last := chunks[len(chunks)-1]; last.Position != 1.0 {
		t.Errorf("last chunk position: got %v, want 1.0", last.Position)
	}

	// Context tuple stamped on every chunk.
	for i, ch := range chunks {
		if ch.Context.SubjectID != "IBDN" || ch.Context.UploaderID != "user-1" {
			t.Errorf("chunk %d: context not injected: %+v", i, ch.Context)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			"simple sentences",
			"First sentence. Second sentence! Third one?",
			[]string{"First sentence.", "Second sentence!", "Third one?"},
		},
		{
			"decimal not split",
			"The value is 3.14 exactly. Next sentence here.",
			[]string{"The value is 3.14 exactly.", "Next sentence here."},
		},
		{
			"paragraph break without terminator",
			"A heading line\n\nBody sentence follows.",
			[]string{"A heading line", "Body sentence follows."},
		},
		{
			"ellipsis kept together",
			"Wait... there is more. Done.",
			[]string{"Wait...", "there is more.", "Done."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitSentences(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("sentence count: got %d (%v), want %d", len(got), texts(got), len(tt.want))
			}
			for i := range got {
				if got[i].text != tt.want[i] {
					t.Errorf("sentence %d: got %q, want %q", i, got[i].text, tt.want[i])
				}
				if tt.text[got[i].start:got[i].end] != got[i].text && !strings.Contains(got[i].text, " ") {
					t.Errorf("sentence %d: offsets do not match source", i)
				}
			}
		})
	}
}

func texts(ss []sentence) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.text
	}
	return out
}
