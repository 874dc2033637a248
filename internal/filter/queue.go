package filter

// queue is a FIFO worklist
type queue[T any] struct {
	items []T
	head  int
}

func (q *queue[T]) push(items ...T) {
	q.items = append(q.items, items...)
}

func (q *queue[T]) pop() (T, bool) {
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array
	if q.head > 64 && q.head*2 > len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return item, true
}

func (q *queue[T]) empty() bool {
	return q.head >= len(q.items)
}

func (q *queue[T]) len() int {
	return len(q.items) - q.head
}
