package textutil

import (
	"errors"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrEmptyVocabulary is returned when no document contributes a single term,
// typically because every token is a stop word or too short.
var ErrEmptyVocabulary = errors.New("empty vocabulary: documents contain only stop words")

// Fingerprint is a weighted term vector with its precomputed euclidean norm.
type Fingerprint struct {
	terms map[string]float64
	norm  float64
}

// Terms splits text into lowercase word tokens of at least two runes and drops
// English stop words.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_')
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		if IsStopWord(f) {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// NewFingerprint creates a raw term-frequency fingerprint. Returns nil when the
// text has no terms.
func NewFingerprint(text string) *Fingerprint {
	terms := Terms(text)
	if len(terms) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(terms))
	for _, t := range terms {
		counts[t]++
	}
	return newFingerprint(counts)
}

func newFingerprint(weights map[string]float64) *Fingerprint {
	var norm float64
	for _, w := range weights {
		norm += w * w
	}
	return &Fingerprint{terms: weights, norm: math.Sqrt(norm)}
}

// TermCount returns the number of unique terms.
func (f *Fingerprint) TermCount() int {
	if f == nil {
		return 0
	}
	return len(f.terms)
}

// WithIDF returns a copy weighted by the given inverse document frequencies.
// Terms absent from idf keep their weight.
func (f *Fingerprint) WithIDF(idf map[string]float64) *Fingerprint {
	if f == nil || len(idf) == 0 {
		return f
	}
	weighted := make(map[string]float64, len(f.terms))
	for term, tf := range f.terms {
		w := tf
		if v, ok := idf[term]; ok {
			w *= v
		}
		weighted[term] = w
	}
	return newFingerprint(weighted)
}

// Corpus collects document frequencies for IDF computation.
type Corpus struct {
	docs    int
	docFreq map[string]int
}

// NewCorpus creates an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{docFreq: make(map[string]int)}
}

// Add registers a document. A nil fingerprint still counts as a document.
func (c *Corpus) Add(fp *Fingerprint) {
	c.docs++
	if fp == nil {
		return
	}
	for term := range fp.terms {
		c.docFreq[term]++
	}
}

// VocabularySize returns the number of distinct terms seen.
func (c *Corpus) VocabularySize() int {
	return len(c.docFreq)
}

// IDF returns smoothed weights ln((1+n)/(1+df)) + 1 for every term.
func (c *Corpus) IDF() map[string]float64 {
	idf := make(map[string]float64, len(c.docFreq))
	n := float64(c.docs)
	for term, df := range c.docFreq {
		idf[term] = math.Log((1+n)/(1+float64(df))) + 1
	}
	return idf
}

// CosineSimilarity returns the cosine of the angle between two fingerprints,
// or 0 when either is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	if len(b.terms) < len(a.terms) {
		a, b = b, a
	}
	var dot float64
	for term, w := range a.terms {
		if other, ok := b.terms[term]; ok {
			dot += w * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// TFIDFCosine builds a TF-IDF space over exactly the two documents and returns
// the cosine similarity of their vectors.
func TFIDFCosine(a, b string) (float64, error) {
	fa, fb := NewFingerprint(a), NewFingerprint(b)
	corpus := NewCorpus()
	corpus.Add(fa)
	corpus.Add(fb)
	if corpus.VocabularySize() == 0 {
		return 0, ErrEmptyVocabulary
	}
	idf := corpus.IDF()
	return CosineSimilarity(fa.WithIDF(idf), fb.WithIDF(idf)), nil
}
