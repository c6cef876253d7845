package storage

import (
	"sort"

	"github.com/deusflow/newswire/internal/news"
)

// Merge folds a batch of new articles into the persisted records.
//
// Every article becomes an undelivered candidate. Records sharing an identity
// key collapse to one: a delivered record beats an undelivered one, otherwise
// the later record wins. Passthrough columns of the losers fill in names the
// winner lacks. The result is ordered undelivered first, then by publish time
// with unknown times last; remaining ties keep first-appearance order.
//
// Merge is idempotent: merging the same batch twice equals merging it once.
func Merge(existing []news.Record, incoming []news.Article) []news.Record {
	combined := make([]news.Record, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	for _, a := range incoming {
		combined = append(combined, news.Record{Article: a})
	}

	var order []news.Key
	groups := make(map[news.Key][]news.Record, len(combined))
	for _, r := range combined {
		k := r.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	merged := make([]news.Record, 0, len(order))
	for _, k := range order {
		merged = append(merged, resolve(groups[k]))
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return recordLess(merged[i], merged[j])
	})
	return merged
}

// resolve picks the surviving record of a group in appearance order.
func resolve(group []news.Record) news.Record {
	win := 0
	for i := 1; i < len(group); i++ {
		if group[i].Delivered || !group[win].Delivered {
			win = i
		}
	}

	winner := group[win]
	winner.Extra = append([]news.Field(nil), winner.Extra...)
	for i, r := range group {
		if i == win {
			continue
		}
		for _, f := range r.Extra {
			if _, ok := winner.ExtraValue(f.Name); !ok {
				winner.Extra = append(winner.Extra, f)
			}
		}
	}
	if len(winner.Extra) == 0 {
		winner.Extra = nil
	}
	return winner
}

func recordLess(a, b news.Record) bool {
	if a.Delivered != b.Delivered {
		return !a.Delivered
	}
	ak, bk := a.HasPublished(), b.HasPublished()
	switch {
	case ak && bk:
		return a.PublishedAt.Before(b.PublishedAt)
	case ak != bk:
		return ak
	default:
		return false
	}
}
