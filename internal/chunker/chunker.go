// Package chunker splits analyzed document text into semantically coherent,
// size-bounded chunks suitable for embedding and retrieval.
//
// Chunking is greedy over sentences: the chunker accumulates sentences into a
// buffer and closes the chunk when the next sentence would exceed the size
// budget, when the sentence cap is reached, or when the next sentence crosses
// a paragraph boundary and the buffer is already large enough. Consecutive
// chunks share a trailing-sentence overlap bounded by the configured overlap
// budget. For a fixed (text, structure, config) input the produced chunk
// boundaries are exactly reproducible.
package chunker

import (
	"fmt"
	"strings"

	"github.com/edurag/edurag-go/internal/analyzer"
)

// Default chunking parameters, tuned for question-generation context windows.
const (
	// DefaultMaxChunkSize is the maximum chunk length in characters,
	// excluding the seeded overlap.
	DefaultMaxChunkSize = 500
	// DefaultMinChunkSize is the minimum chunk length in characters.
	DefaultMinChunkSize = 150
	// DefaultOverlapSize is the trailing-sentence overlap budget in characters.
	DefaultOverlapSize = 75
	// DefaultMaxSentences is the maximum number of sentences per chunk,
	// excluding the seeded overlap.
	DefaultMaxSentences = 5
)

// Config holds the chunker size knobs.
type Config struct {
	// MaxChunkSize is the maximum chunk length in characters. Defaults to 500.
	MaxChunkSize int
	// MinChunkSize is the minimum chunk length in characters. Defaults to 150.
	MinChunkSize int
	// OverlapSize is the trailing overlap budget in characters. Defaults to 75.
	OverlapSize int
	// MaxSentences is the maximum number of sentences per chunk. Defaults to 5.
	MaxSentences int
}

// Context is the educational scoping tuple injected into every chunk.
type Context struct {
	// SubjectID scopes the chunk to a subject.
	SubjectID string `json:"subjectId"`
	// TopicID scopes the chunk to a topic within the subject.
	TopicID string `json:"topicId"`
	// SubtopicID scopes the chunk to a subtopic within the topic.
	SubtopicID string `json:"subtopicId"`
	// UploaderID identifies the user who uploaded the source document.
	UploaderID string `json:"uploaderId"`
}

// Chunk is one bounded, semantically coherent span of a document's text.
// Chunks of one document are produced in strictly increasing offset order.
type Chunk struct {
	// ID is unique within the owning document ("<docID>:<index>").
	ID string
	// DocumentID is the owning document's ID.
	DocumentID string
	// Index is the 0-based ordinal of this chunk within the document.
	Index int
	// Text is the chunk content, including any seeded overlap prefix.
	Text string
	// CharCount, WordCount, and SentenceCount describe Text.
	CharCount     int
	WordCount     int
	SentenceCount int
	// StartOffset and EndOffset are character offsets into the source text
	// spanned by this chunk's sentences, [StartOffset, EndOffset).
	StartOffset int
	EndOffset   int
	// SectionTitle is the nearest preceding heading, best-effort.
	SectionTitle string
	// PageNumber is the 1-based page containing the chunk start, 0 if unknown.
	PageNumber int
	// ParagraphIndex is the paragraph containing the chunk start, -1 if unknown.
	ParagraphIndex int
	// IsHeading marks chunks whose span coincides with a detected heading.
	IsHeading bool
	// IsList marks chunks whose span starts inside a detected list run.
	IsList bool
	// PrevChunkID and NextChunkID are navigation links, empty at the ends.
	// Derived from array position, never stored as back-pointers.
	PrevChunkID string
	NextChunkID string
	// Position is the chunk's relative position in the document, in [0,1].
	Position float64
	// Context is the educational scoping tuple of the source document.
	Context Context
}

// Chunker splits text into chunks according to its Config.
type Chunker struct {
	cfg Config
}

// New constructs a Chunker, applying defaults for zero-valued config fields.
func New(cfg Config) *Chunker {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultMaxChunkSize
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = DefaultMinChunkSize
	}
	if cfg.MinChunkSize > cfg.MaxChunkSize {
		cfg.MinChunkSize = cfg.MaxChunkSize / 3
	}
	if cfg.OverlapSize < 0 {
		cfg.OverlapSize = 0
	}
	if cfg.OverlapSize >= cfg.MaxChunkSize {
		cfg.OverlapSize = cfg.MaxChunkSize / 10
	}
	if cfg.MaxSentences <= 0 {
		cfg.MaxSentences = DefaultMaxSentences
	}
	return &Chunker{cfg: cfg}
}

// buffer is the running chunk under construction.
type buffer struct {
	// overlap holds sentences seeded from the previous chunk's tail.
	overlap []sentence
	// core holds sentences belonging to this chunk proper. Size and
	// sentence-count limits apply to core only, so the overlap rides on
	// top of MaxChunkSize as the invariant allows.
	core []sentence
}

// coreLen returns the joined character length of the core sentences.
func (b *buffer) coreLen() int {
	n := 0
	for i, s := range b.core {
		if i > 0 {
			n++ // joining space
		}
		n += len(s.text)
	}
	return n
}

// all returns overlap followed by core.
func (b *buffer) all() []sentence {
	out := make([]sentence, 0, len(b.overlap)+len(b.core))
	out = append(out, b.overlap...)
	out = append(out, b.core...)
	return out
}

// Chunk splits text into enriched chunks. structure supplies paragraph,
// page, heading, and list boundaries; docID and eduCtx are stamped onto
// every produced chunk. Returns nil for empty or whitespace-only text.
func (c *Chunker) Chunk(text string, structure *analyzer.Structure, docID string, eduCtx Context) []Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var packed [][]sentence
	buf := &buffer{}

	paragraphOf := func(s sentence) int {
		if p := structure.ParagraphAt(s.start); p != nil {
			return p.Index
		}
		return -1
	}

	flush := func() {
		if len(buf.core) == 0 {
			return
		}
		closed := buf.all()
		packed = append(packed, closed)
		buf = &buffer{overlap: c.overlapTail(closed)}
	}

	for _, s := range sentences {
		if len(buf.core) > 0 {
			// A sentence larger than the remaining budget closes the
			// buffer even when it is still under MinChunkSize: the
			// minimum is a target, not a guarantee, for long-sentence
			// input. Sentences over MaxChunkSize pass through unsplit.
			wouldExceed := buf.coreLen()+1+len(s.text) > c.cfg.MaxChunkSize
			atSentenceCap := len(buf.core) >= c.cfg.MaxSentences
			crossesParagraph := paragraphOf(s) != paragraphOf(buf.core[len(buf.core)-1]) &&
				buf.coreLen() >= c.cfg.MinChunkSize

			if wouldExceed || atSentenceCap || crossesParagraph {
				flush()
			}
		}
		buf.core = append(buf.core, s)
	}

	// The trailing buffer becomes the last chunk only when it meets the
	// minimum size, or when it is the document's sole chunk.
	if len(buf.core) > 0 && (buf.coreLen() >= c.cfg.MinChunkSize || len(packed) == 0) {
		packed = append(packed, buf.all())
	}

	chunks := make([]Chunk, 0, len(packed))
	for i, group := range packed {
		texts := make([]string, len(group))
		for j, s := range group {
			texts[j] = s.text
		}
		joined := strings.Join(texts, " ")
		chunks = append(chunks, Chunk{
			ID:            fmt.Sprintf("%s:%d", docID, i),
			DocumentID:    docID,
			Index:         i,
			Text:          joined,
			CharCount:     len(joined),
			WordCount:     countWords(joined),
			SentenceCount: len(group),
			StartOffset:   group[0].start,
			EndOffset:     group[len(group)-1].end,
			Context:       eduCtx,
		})
	}

	c.enrich(chunks, structure)
	return chunks
}

// overlapTail walks backward through the closed chunk's sentences,
// accumulating them while their combined length stays within the overlap
// budget. Each accepted sentence pays one extra byte for a joining space:
// between overlap sentences, and between the overlap and the next chunk's
// first core sentence. Counting that last joiner here keeps a seeded chunk
// within MaxChunkSize plus OverlapSize after joining.
// The returned slice preserves original sentence order.
func (c *Chunker) overlapTail(closed []sentence) []sentence {
	if c.cfg.OverlapSize <= 0 {
		return nil
	}
	total := 0
	cut := len(closed)
	for i := len(closed) - 1; i >= 0; i-- {
		add := len(closed[i].text) + 1
		if total+add > c.cfg.OverlapSize {
			break
		}
		total += add
		cut = i
	}
	if cut == len(closed) {
		return nil
	}
	// Never overlap the entire chunk: consecutive chunks must differ.
	if cut == 0 {
		cut = 1
	}
	tail := make([]sentence, len(closed)-cut)
	copy(tail, closed[cut:])
	return tail
}

// enrich performs the post-hoc structural attribution pass over the
// finalized chunk list: section titles, page and paragraph containment,
// heading/list flags, navigation links, and relative position.
func (c *Chunker) enrich(chunks []Chunk, structure *analyzer.Structure) {
	for i := range chunks {
		ch := &chunks[i]

		if h := structure.HeadingBefore(ch.StartOffset); h != nil {
			ch.SectionTitle = h.Text
		}
		if p := structure.PageAt(ch.StartOffset); p != nil {
			ch.PageNumber = p.Number
		}
		ch.ParagraphIndex = -1
		if para := structure.ParagraphAt(ch.StartOffset); para != nil {
			ch.ParagraphIndex = para.Index
		}
		ch.IsHeading = structure.IsHeadingSpan(ch.StartOffset, ch.EndOffset)
		ch.IsList = structure.ListAt(ch.StartOffset)

		if i > 0 {
			ch.PrevChunkID = chunks[i-1].ID
		}
		if i < len(chunks)-1 {
			ch.NextChunkID = chunks[i+1].ID
		}

		if len(chunks) > 1 {
			ch.Position = float64(i) / float64(len(chunks)-1)
		}
	}
}
