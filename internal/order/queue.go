package order

import "container/heap"

type entry struct {
	id       string
	priority int
	seq      uint64
}

// queue is a max-heap on priority. Equal priorities pop in arrival order.
type queue []entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(entry)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

func (q *queue) push(e entry) { heap.Push(q, e) }

func (q *queue) pop() (entry, bool) {
	if q.Len() == 0 {
		return entry{}, false
	}
	return heap.Pop(q).(entry), true
}
