package search

import "container/heap"

// candidate is a reference position with its squared distance to the query
type candidate struct {
	pos int
	d2  float64
}

// before orders candidates by distance, then by position so the lower index
// wins ties.
func (c candidate) before(o candidate) bool {
	if c.d2 != o.d2 {
		return c.d2 < o.d2
	}
	return c.pos < o.pos
}

// topK keeps the k best candidates seen so far. The root of the heap is the
// worst retained candidate.
type topK struct {
	k     int
	items []candidate
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]candidate, 0, k)}
}

func (t *topK) Len() int           { return len(t.items) }
func (t *topK) Less(i, j int) bool { return t.items[j].before(t.items[i]) }
func (t *topK) Swap(i, j int)      { t.items[i], t.items[j] = t.items[j], t.items[i] }
func (t *topK) Push(x any)         { t.items = append(t.items, x.(candidate)) }
func (t *topK) Pop() any {
	n := len(t.items)
	c := t.items[n-1]
	t.items = t.items[:n-1]
	return c
}

func (t *topK) offer(c candidate) {
	if len(t.items) < t.k {
		heap.Push(t, c)
		return
	}
	if c.before(t.items[0]) {
		t.items[0] = c
		heap.Fix(t, 0)
	}
}
