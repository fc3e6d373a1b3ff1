// Package creds rotates API credential pairs so successive requests draw
// from different quota buckets.
package creds

// Pair is one client-id/secret credential set.
type Pair struct {
	ClientID string
	Secret   string
}

// Rotator cycles through a fixed ordering of credential pairs. The cursor
// is process-local; concurrent worker processes each keep their own and no
// coordination is needed between them.
type Rotator struct {
	pairs []Pair
	next  int
}

func NewRotator(pairs []Pair) *Rotator {
	if len(pairs) == 0 {
		panic("creds: rotator needs at least one credential pair")
	}
	cp := make([]Pair, len(pairs))
	copy(cp, pairs)
	return &Rotator{pairs: cp}
}

// Next returns the next pair in cyclical order, advancing the cursor.
func (r *Rotator) Next() Pair {
	p := r.pairs[r.next]
	r.next = (r.next + 1) % len(r.pairs)
	return p
}

// Len reports how many distinct pairs are in the cycle.
func (r *Rotator) Len() int { return len(r.pairs) }
