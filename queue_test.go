package throttle

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
)

type item struct {
	id       string
	priority Priority
}

func fill(t *testing.T, items []item) *queue[string] {
	t.Helper()

	q := newQueue[string]()
	for _, it := range items {
		if _, err := q.insert(&task[string]{}, it.id, it.priority); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return q
}

func extractAll(q *queue[string]) []string {
	var got []string
	for e := q.extract(); e != nil; e = q.extract() {
		got = append(got, e.id)
	}
	return got
}

func TestQueue_Extract(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		items []item
		want  []string
	}{
		"entries are extracted in priority order": {
			items: []item{{"low", -10}, {"high", 10}, {"medium", 0}},
			want:  []string{"high", "medium", "low"},
		},
		"entries with same priority maintain FIFO order": {
			items: []item{{"first", 0}, {"second", 0}, {"third", 0}},
			want:  []string{"first", "second", "third"},
		},
		"mixed priorities keep FIFO within each level": {
			items: []item{{"a", 1}, {"b", 5}, {"c", 1}, {"d", 5}, {"e", -2}, {"f", 1}},
			want:  []string{"b", "d", "a", "c", "f", "e"},
		},
		"empty queue": {
			want: nil,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			q := fill(t, tt.items)
			got := extractAll(q)

			if !slices.Equal(got, tt.want) {
				t.Errorf("mismatch:\n  got:  %#v\n  want: %#v", got, tt.want)
			}
			if q.Len() != 0 || len(q.byID) != 0 {
				t.Errorf("expected empty queue, got: %d entries, %d indexed", q.Len(), len(q.byID))
			}
		})
	}
}

func TestQueue_ExtractDescendingForRandomInput(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	perm := r.Perm(200)

	q := newQueue[string]()
	for _, p := range perm {
		if _, err := q.insert(&task[string]{}, fmt.Sprint(p), Priority(p)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	prev := Priority(len(perm))
	for e := q.extract(); e != nil; e = q.extract() {
		if e.priority >= prev {
			t.Fatalf("expected strictly descending priorities, got %d after %d", e.priority, prev)
		}
		prev = e.priority
	}
}

func TestQueue_Insert_DuplicateID(t *testing.T) {
	t.Parallel()

	q := fill(t, []item{{"a", 0}})

	_, err := q.insert(&task[string]{}, "a", 5)
	if !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got: %v", err)
	}

	// Ids may be reused once an entry has left the queue.
	q.extract()
	if _, err := q.insert(&task[string]{}, "a", 5); err != nil {
		t.Errorf("unexpected error reusing id: %v", err)
	}
}

func TestQueue_Reprioritize(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		items    []item
		id       string
		priority Priority
		want     []string
	}{
		"raise last entry to the front": {
			items:    []item{{"a", 3}, {"b", 2}, {"c", 1}},
			id:       "c",
			priority: 10,
			want:     []string{"c", "a", "b"},
		},
		"lower first entry to the back": {
			items:    []item{{"a", 3}, {"b", 2}, {"c", 1}},
			id:       "a",
			priority: 0,
			want:     []string{"b", "c", "a"},
		},
		"tie keeps original insertion order": {
			items:    []item{{"a", 3}, {"b", 2}, {"c", 1}},
			id:       "c",
			priority: 2,
			want:     []string{"a", "b", "c"},
		},
		"lowering to a tie keeps insertion order": {
			items:    []item{{"a", 3}, {"b", 2}, {"c", 1}},
			id:       "a",
			priority: 2,
			want:     []string{"a", "b", "c"},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			q := fill(t, tt.items)
			if err := q.reprioritize(tt.id, tt.priority); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := extractAll(q)
			if !slices.Equal(got, tt.want) {
				t.Errorf("mismatch:\n  got:  %#v\n  want: %#v", got, tt.want)
			}
		})
	}
}

func TestQueue_Reprioritize_NotFound(t *testing.T) {
	t.Parallel()

	q := fill(t, []item{{"a", 1}, {"b", 2}})

	err := q.reprioritize("missing", 100)
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got: %v", err)
	}

	if q.Len() != 2 {
		t.Errorf("expected size 2, got: %d", q.Len())
	}
	got, want := extractAll(q), []string{"b", "a"}
	if !slices.Equal(got, want) {
		t.Errorf("mismatch:\n  got:  %#v\n  want: %#v", got, want)
	}
}

func TestQueue_CorruptIndexIsTreatedAsAbsent(t *testing.T) {
	t.Parallel()

	q := fill(t, []item{{"a", 1}, {"b", 2}})

	// Point the index at an entry the heap does not hold.
	q.byID["ghost"] = &entry[string]{id: "ghost", index: 1}

	if err := q.reprioritize("ghost", 5); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got: %v", err)
	}
	if _, ok := q.byID["ghost"]; ok {
		t.Error("expected stale index entry to be dropped")
	}

	// Out of range swaps are ignored rather than panicking.
	q.Swap(0, 7)

	got, want := extractAll(q), []string{"b", "a"}
	if !slices.Equal(got, want) {
		t.Errorf("mismatch:\n  got:  %#v\n  want: %#v", got, want)
	}
}

func TestQueue_Remove(t *testing.T) {
	t.Parallel()

	q := newQueue[string]()
	a, _ := q.insert(&task[string]{}, "a", 1)
	b, _ := q.insert(&task[string]{}, "b", 2)
	_, _ = q.insert(&task[string]{}, "c", 3)

	if !q.remove(b) {
		t.Fatal("expected b to be removed")
	}
	if q.remove(b) {
		t.Error("expected second remove to report false")
	}

	got, want := extractAll(q), []string{"c", "a"}
	if !slices.Equal(got, want) {
		t.Errorf("mismatch:\n  got:  %#v\n  want: %#v", got, want)
	}
	if q.remove(a) {
		t.Error("expected remove of extracted entry to report false")
	}
}

func TestQueue_Filter(t *testing.T) {
	t.Parallel()

	q := fill(t, []item{{"a", 1}, {"b", 2}, {"c", 1}, {"d", 3}, {"e", 1}})

	var got []string
	for _, e := range q.filter(1) {
		got = append(got, e.id)
	}

	want := []string{"a", "c", "e"}
	if !slices.Equal(got, want) {
		t.Errorf("mismatch:\n  got:  %#v\n  want: %#v", got, want)
	}
	if q.Len() != 5 {
		t.Errorf("expected filter to leave the queue intact, got size: %d", q.Len())
	}
	if len(q.filter(42)) != 0 {
		t.Error("expected no entries at an unused priority")
	}
}

func TestQueue_Drain(t *testing.T) {
	t.Parallel()

	q := fill(t, []item{{"a", 1}, {"b", 2}, {"c", 1}})

	var got []string
	for _, e := range q.drain() {
		got = append(got, e.id)
		if e.index != -1 {
			t.Errorf("expected drained entry %q to be detached", e.id)
		}
	}

	want := []string{"b", "a", "c"}
	if !slices.Equal(got, want) {
		t.Errorf("mismatch:\n  got:  %#v\n  want: %#v", got, want)
	}
	if q.Len() != 0 || q.peek() != nil {
		t.Error("expected empty queue after drain")
	}
}

func BenchmarkQueue_InsertExtract(b *testing.B) {
	q := newQueue[int]()
	t := &task[int]{}

	b.ReportAllocs()
	b.ResetTimer()

	for i := range b.N {
		_, _ = q.insert(t, fmt.Sprint(i), Priority(i%7))
		if q.Len() > 64 {
			q.extract()
		}
	}
}
