// Package ranklist implements a bounded, ordered, insertion-stable
// best-N container: appending past capacity silently drops the current
// worst entry, and ties are broken by insertion order.
package ranklist

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
)

// Column renders one field of an entry for RankList.String().
type Column[T any] struct {
	Name  string
	Value func(T) string
}

type entry[T any] struct {
	score float64
	seq   int
	item  T
}

// RankList holds up to capacity entries, ordered by key (ascending, or
// descending when reverse is true).
type RankList[T any] struct {
	mu       sync.Mutex
	capacity int
	key      func(T) float64
	reverse  bool
	columns  []Column[T]
	rows     []entry[T]
	nextSeq  int
}

// New builds an empty RankList bounded to capacity entries.
func New[T any](capacity int, key func(T) float64, reverse bool, columns ...Column[T]) *RankList[T] {
	return &RankList[T]{
		capacity: capacity,
		key:      key,
		reverse:  reverse,
		columns:  columns,
	}
}

func (r *RankList[T]) orderedScore(item T) float64 {
	s := r.key(item)
	if r.reverse {
		return -s
	}
	return s
}

// Append inserts item in its sorted position. If doing so exceeds
// capacity, the current worst entry is dropped.
func (r *RankList[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	e := entry[T]{score: r.orderedScore(item), seq: r.nextSeq, item: item}

	idx := sort.Search(len(r.rows), func(i int) bool {
		return less(e, r.rows[i])
	})
	r.rows = append(r.rows, entry[T]{})
	copy(r.rows[idx+1:], r.rows[idx:])
	r.rows[idx] = e

	if r.capacity > 0 && len(r.rows) > r.capacity {
		r.rows = r.rows[:r.capacity]
	}
}

// less implements the (score, seq) tuple ordering used for both the
// insertion position and the ultimate best-first iteration order.
func less[T any](a, b entry[T]) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.seq < b.seq
}

// Len reports how many entries are currently held.
func (r *RankList[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Items returns the held entries, best first.
func (r *RankList[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.rows))
	for i, e := range r.rows {
		out[i] = e.item
	}
	return out
}

// String renders the rank list as a tab-aligned table using the configured
// columns.
func (r *RankList[T]) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	header := make([]string, len(r.columns))
	for i, c := range r.columns {
		header[i] = c.Name
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, e := range r.rows {
		row := make([]string, len(r.columns))
		for i, c := range r.columns {
			row[i] = c.Value(e.item)
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	w.Flush()
	return sb.String()
}
