package throttle

import (
	"cmp"
	"container/heap"
	"fmt"
	"slices"
)

// Ensure queue implements [heap.Interface].
var _ heap.Interface = (*queue[any])(nil)

// entry is a task waiting in the queue.
type entry[T any] struct {
	id       string
	priority Priority
	task     *task[T]

	// The seqNo is used to maintain the order of entries with the same
	// priority. It is assigned on insertion and is immutable.
	seqNo uint64

	// index is the entry's slot in the heap, or -1 once it has left.
	index int
}

// queue is a binary max-heap over (priority, seqNo) with an id index for
// constant time lookup. The heap slice owns the entries; byID is only a back
// reference and is never trusted without checking the slot it points at.
type queue[T any] struct {
	entries []*entry[T]
	byID    map[string]*entry[T]
	seqNo   uint64
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		entries: make([]*entry[T], 0),
		byID:    make(map[string]*entry[T]),
	}
}

// insert adds a task under the given id. It fails if the id is already
// waiting.
func (q *queue[T]) insert(t *task[T], id string, priority Priority) (*entry[T], error) {
	if _, ok := q.lookup(id); ok {
		return nil, fmt.Errorf("insert %q: %w", id, ErrDuplicateTask)
	}

	e := &entry[T]{
		id:       id,
		priority: priority,
		task:     t,
		seqNo:    q.seqNo,
		index:    -1,
	}
	q.seqNo++

	heap.Push(q, e)
	q.byID[id] = e
	return e, nil
}

// extract removes and returns the entry with the highest priority, or nil if
// the queue is empty.
func (q *queue[T]) extract() *entry[T] {
	if len(q.entries) == 0 {
		return nil
	}
	e := heap.Pop(q).(*entry[T])
	delete(q.byID, e.id)
	return e
}

// peek returns the entry extract would return without removing it.
func (q *queue[T]) peek() *entry[T] {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0]
}

// reprioritize moves the entry with the given id to its new position.
func (q *queue[T]) reprioritize(id string, priority Priority) error {
	e, ok := q.lookup(id)
	if !ok {
		return fmt.Errorf("prioritize %q: %w", id, ErrTaskNotFound)
	}

	e.priority = priority

	// Reorder the heap since the entry's priority has changed. Fix sifts up
	// or down depending on the direction of the change.
	heap.Fix(q, e.index)
	return nil
}

// remove takes the given entry out of the queue. It reports false if the
// entry is no longer waiting.
func (q *queue[T]) remove(e *entry[T]) bool {
	if !q.holds(e) {
		return false
	}
	heap.Remove(q, e.index)
	delete(q.byID, e.id)
	return true
}

// drain empties the queue and returns the entries it held in dispatch order.
func (q *queue[T]) drain() []*entry[T] {
	out := q.entries
	slices.SortFunc(out, compareEntries[T])
	for _, e := range out {
		e.index = -1
	}

	q.entries = make([]*entry[T], 0)
	q.byID = make(map[string]*entry[T])
	return out
}

// filter returns the entries waiting at the given priority in dispatch order
// without removing them.
func (q *queue[T]) filter(priority Priority) []*entry[T] {
	var out []*entry[T]
	for _, e := range q.entries {
		if e.priority == priority {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, compareEntries[T])
	return out
}

// lookup resolves an id through the index, treating any disagreement between
// the index and the heap as absence.
func (q *queue[T]) lookup(id string) (*entry[T], bool) {
	e, ok := q.byID[id]
	if !ok {
		return nil, false
	}
	if !q.holds(e) {
		delete(q.byID, id)
		return nil, false
	}
	return e, true
}

func (q *queue[T]) holds(e *entry[T]) bool {
	return e != nil && e.index >= 0 && e.index < len(q.entries) && q.entries[e.index] == e
}

// compareEntries orders entries by descending priority, then ascending seqNo.
func compareEntries[T any](a, b *entry[T]) int {
	if c := cmp.Compare(b.priority, a.priority); c != 0 {
		return c
	}
	return cmp.Compare(a.seqNo, b.seqNo)
}

// Len implements heap.Interface.
func (q *queue[T]) Len() int {
	return len(q.entries)
}

// Less reports whether entry i is extracted before entry j.
func (q *queue[T]) Less(i, j int) bool {
	return compareEntries(q.entries[i], q.entries[j]) < 0
}

// Swap exchanges two slots and keeps their back-references current.
// Indices outside the slice are ignored.
func (q *queue[T]) Swap(i, j int) {
	if i < 0 || j < 0 || i >= len(q.entries) || j >= len(q.entries) {
		return
	}
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	q.entries[i].index = i
	q.entries[j].index = j
}

// Push appends an entry; use insert instead.
func (q *queue[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(q.entries)
	q.entries = append(q.entries, e)
}

// Pop detaches the last slot; use extract instead.
func (q *queue[T]) Pop() any {
	old := q.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1 // no longer held.
	q.entries = old[:n-1]
	return e
}
