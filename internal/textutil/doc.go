// Package textutil provides the text processing used to compare news articles.
//
// The primary use cases are:
//   - Normalizing raw article text (case, punctuation, whitespace)
//   - Computing a lexical sequence-matching ratio between two strings
//   - Computing TF-IDF cosine similarity between two documents
//
// Lexical ratios follow the classic diff similarity 2*M/T, where M is the
// number of runes in the matching blocks and T the combined length.
// TF-IDF vectors are built over exactly the two compared documents with
// English stop words removed and smoothed inverse document frequency.
package textutil
