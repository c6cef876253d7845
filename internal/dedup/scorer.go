package dedup

import (
	"log/slog"

	"github.com/deusflow/newswire/internal/metrics"
	"github.com/deusflow/newswire/internal/textutil"
)

// DefaultThreshold is the similarity at or above which two articles are the same story.
const DefaultThreshold = 0.75

// Scorer holds the two independent similarity predicates over normalized text.
type Scorer struct {
	LexicalThreshold float64
	CosineThreshold  float64

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewScorer builds a scorer that applies threshold to both predicates.
func NewScorer(threshold float64, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		LexicalThreshold: threshold,
		CosineThreshold:  threshold,
		logger:           logger,
	}
}

// WithMetrics attaches a metrics sink for scoring failures.
func (s *Scorer) WithMetrics(m *metrics.Metrics) *Scorer {
	s.metrics = m
	return s
}

// LexicalSimilar reports whether the sequence-matching ratio of a and b reaches
// the lexical threshold. Empty input never matches.
func (s *Scorer) LexicalSimilar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return textutil.LexicalRatio(a, b) >= s.LexicalThreshold
}

// CosineSimilar reports whether the TF-IDF cosine of a and b reaches the cosine
// threshold. Vectorization failures are logged and count as no match.
func (s *Scorer) CosineSimilar(a, b string) bool {
	sim, err := textutil.TFIDFCosine(a, b)
	if err != nil {
		s.logger.Warn("tf-idf scoring failed, treating as distinct", "error", err)
		if s.metrics != nil {
			s.metrics.IncrementScoringFailures()
		}
		return false
	}
	return sim >= s.CosineThreshold
}

// Similar is true when either predicate matches. The lexical check runs first.
func (s *Scorer) Similar(a, b string) bool {
	return s.LexicalSimilar(a, b) || s.CosineSimilar(a, b)
}
