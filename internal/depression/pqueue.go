package depression

import "container/heap"

type cellItem struct {
	idx  int
	elev float64
	seq  uint64
}

// cellQueue is a min-heap on elevation. Equal elevations pop in insertion
// order so fills are reproducible.
type cellQueue struct {
	items []cellItem
	seq   uint64
}

func newCellQueue(capacity int) *cellQueue {
	return &cellQueue{items: make([]cellItem, 0, capacity)}
}

func (q *cellQueue) Len() int { return len(q.items) }

func (q *cellQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.elev != b.elev {
		return a.elev < b.elev
	}
	return a.seq < b.seq
}

func (q *cellQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *cellQueue) Push(x interface{}) { q.items = append(q.items, x.(cellItem)) }

func (q *cellQueue) Pop() interface{} {
	n := len(q.items) - 1
	it := q.items[n]
	q.items = q.items[:n]
	return it
}

func (q *cellQueue) push(idx int, elev float64) {
	heap.Push(q, cellItem{idx: idx, elev: elev, seq: q.seq})
	q.seq++
}

func (q *cellQueue) pop() cellItem { return heap.Pop(q).(cellItem) }
