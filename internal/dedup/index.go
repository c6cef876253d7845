package dedup

// Index is the collection of texts already accepted in the current batch.
// The linear implementation scans every entry; an approximate nearest
// neighbour index can satisfy the same contract.
type Index interface {
	// Match returns the position of the first stored text similar to text.
	Match(text string) (int, bool)
	// Add stores an accepted text.
	Add(text string)
	// Len returns the number of stored texts.
	Len() int
}

// IndexFactory creates an empty index for one deduplication pass.
type IndexFactory func(*Scorer) Index

// LinearIndex compares against every stored text in insertion order.
type LinearIndex struct {
	scorer *Scorer
	seen   []string
}

// NewLinearIndex creates an empty linear index using scorer.
func NewLinearIndex(scorer *Scorer) Index {
	return &LinearIndex{scorer: scorer}
}

func (l *LinearIndex) Match(text string) (int, bool) {
	for i, seen := range l.seen {
		if l.scorer.Similar(text, seen) {
			return i, true
		}
	}
	return -1, false
}

func (l *LinearIndex) Add(text string) {
	l.seen = append(l.seen, text)
}

func (l *LinearIndex) Len() int {
	return len(l.seen)
}
