package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// minTokenLength filters out short function words before weighting.
const minTokenLength = 2

// seedCorpus is a small base corpus that seeds document frequencies so IDF
// values are sane before any real document has been observed. The exact
// sentences are unimportant; they provide background frequency mass for
// common English words.
var seedCorpus = []string{
	"the quick brown fox jumps over the lazy dog",
	"students learn best when material is broken into small focused sections",
	"each chapter of the textbook introduces one concept and builds on the last",
	"a summary at the end of the section repeats the key definitions",
	"the exam covers all topics discussed in the lectures and the reading",
	"figures and tables support the explanation given in the main text",
	"an introduction states the goals and the structure of the document",
	"the conclusion reviews what was learned and points to further reading",
}

// TFIDFBackend implements Backend with a deterministic TF-IDF hashing
// vectorizer. It maintains a growable vocabulary of observed document
// frequencies and projects (term, weight) pairs into a fixed-width vector
// via a stable 32-bit string hash, so it needs no external model and is
// always available. Safe for concurrent use.
//
// Vectors are only comparable within one running process; cross-process
// hash compatibility is not required, only internal consistency.
type TFIDFBackend struct {
	dimension int

	// mu guards df and docs.
	mu sync.RWMutex
	// df maps token → number of observed documents containing it.
	df map[string]int
	// docs is the number of observed documents, including the seed corpus.
	docs int
}

// NewTFIDFBackend constructs a TFIDFBackend of the given dimension
// (DefaultDimension if zero) with its document frequencies seeded.
func NewTFIDFBackend(dimension int) *TFIDFBackend {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	e := &TFIDFBackend{
		dimension: dimension,
		df:        make(map[string]int),
	}
	for _, text := range seedCorpus {
		e.observe(tokenize(text))
	}
	return e
}

// Name identifies this backend.
func (e *TFIDFBackend) Name() string { return "tfidf" }

// Dimension returns the configured vector size.
func (e *TFIDFBackend) Dimension() int { return e.dimension }

// IsAvailable always reports true; the fallback has no external dependency.
func (e *TFIDFBackend) IsAvailable(ctx context.Context) bool { return true }

// Embed computes the TF-IDF hashing embedding for text. The text is also
// observed, growing the vocabulary for subsequent IDF computations.
func (e *TFIDFBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch observes all texts, then embeds each. The returned slice is
// parallel to the input slice.
func (e *TFIDFBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	tokenized := make([][]string, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyInput, i)
		}
		tokens := tokenize(text)
		if len(tokens) == 0 {
			// No qualifying tokens (e.g. all single letters): hash the raw
			// trimmed text as one term so the vector still has unit norm.
			tokens = []string{strings.TrimSpace(strings.ToLower(text))}
		}
		tokenized[i] = tokens
	}

	e.mu.Lock()
	for _, tokens := range tokenized {
		e.observe(tokens)
	}
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, tokens := range tokenized {
		out[i] = e.project(tokens)
	}
	return out, nil
}

// observe updates document frequencies for one document's token set.
// Caller holds mu (or is the constructor, which runs single-threaded).
func (e *TFIDFBackend) observe(tokens []string) {
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		e.df[tok]++
	}
	e.docs++
}

// project computes tf-idf weights for tokens and folds them into a
// fixed-width unit vector via the stable hash.
func (e *TFIDFBackend) project(tokens []string) []float32 {
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}

	e.mu.RLock()
	docs := float64(e.docs)
	vec := make([]float32, e.dimension)
	for tok, count := range tf {
		tfWeight := float64(count) / float64(len(tokens))
		idf := smoothedIDF(docs, float64(e.df[tok]))
		weight := tfWeight * idf

		idx, sign := hashSlot(tok, e.dimension)
		vec[idx] += float32(sign * weight)
	}
	e.mu.RUnlock()

	return normalizeL2(vec)
}

// smoothedIDF computes log((1+N)/(1+df)) + 1, the smoothed inverse document
// frequency. The +1 floor keeps terms present in every document from being
// zeroed out entirely.
func smoothedIDF(docs, df float64) float64 {
	return math.Log((1+docs)/(1+df)) + 1
}

// hashSlot maps a token to a vector index and a deterministic sign using
// FNV-1a 32-bit. The sign bit spreads collisions across both directions so
// hash collisions partially cancel instead of always accumulating.
func hashSlot(token string, dim int) (int, float64) {
	h := fnv.New32a()
	h.Write([]byte(token))
	sum := h.Sum32()

	idx := int(sum % uint32(dim))
	sign := 1.0
	if sum&0x80000000 != 0 {
		sign = -1.0
	}
	return idx, sign
}

// tokenize lower-cases text, strips punctuation, and keeps alphanumeric
// tokens longer than minTokenLength characters.
func tokenize(text string) []string {
	var tokens []string
	var b strings.Builder

	flush := func() {
		if b.Len() > minTokenLength {
			tokens = append(tokens, b.String())
		}
		b.Reset()
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
