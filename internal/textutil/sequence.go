package textutil

// LexicalRatio returns the sequence-matching similarity of a and b in [0, 1]:
// 2*M / (len(a)+len(b)) over runes, where M is the total size of the matching
// blocks found by repeatedly taking the longest common block and recursing on
// the pieces to its left and right. Two empty strings have ratio 1.
// No popular-rune heuristic is applied: in long texts every rune can match,
// however often it repeats.
func LexicalRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(MatchingRunes(ra, rb)) / float64(total)
}

// MatchingRunes returns the total size of the matching blocks between a and b.
func MatchingRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	m := newMatcher(a, b)

	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(a), 0, len(b)}}
	matched := 0
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := m.longestMatch(s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		matched += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return matched
}

type matcher struct {
	a, b []rune
	// b2j maps each rune of b to its ascending positions.
	b2j map[rune][]int

	// Run-length tables indexed by j+1, reused across rows.
	cur, next         []int
	touched, nextSeen []int
}

func newMatcher(a, b []rune) *matcher {
	b2j := make(map[rune][]int)
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}
	return &matcher{
		a:    a,
		b:    b,
		b2j:  b2j,
		cur:  make([]int, len(b)+1),
		next: make([]int, len(b)+1),
	}
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k] inside the given
// bounds. Among equal lengths it returns the one starting earliest in a, and
// then earliest in b.
func (m *matcher) longestMatch(alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo
	for i := alo; i < ahi; i++ {
		m.nextSeen = m.nextSeen[:0]
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := m.cur[j] + 1
			m.next[j+1] = k
			m.nextSeen = append(m.nextSeen, j+1)
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		for _, idx := range m.touched {
			m.cur[idx] = 0
		}
		m.cur, m.next = m.next, m.cur
		m.touched, m.nextSeen = m.nextSeen, m.touched
	}
	for _, idx := range m.touched {
		m.cur[idx] = 0
	}
	m.touched = m.touched[:0]
	return besti, bestj, bestk
}
