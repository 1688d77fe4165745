package paging

import (
	"context"
	"sync"
)

// DefaultThreshold is how close to the end of the loaded items a consumer may
// scroll before the next page is requested.
const DefaultThreshold = 3

// List accumulates the items of a Source for a consumer that scrolls through them.
type List[T any] struct {
	source    Source[T]
	threshold int

	loadMu sync.Mutex

	mu        sync.Mutex
	items     []T
	exhausted bool
	gen       uint64
}

func NewList[T any](source Source[T], threshold int) *List[T] {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &List[T]{source: source, threshold: threshold}
}

// Items returns a copy of everything loaded so far.
func (l *List[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]T(nil), l.items...)
}

func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *List[T]) Exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exhausted
}

// Reload clears the list, applies criteria and loads the first page.
func (l *List[T]) Reload(ctx context.Context, criteria string) ([]T, error) {
	l.mu.Lock()
	l.items = nil
	l.exhausted = false
	l.gen++
	l.mu.Unlock()
	l.source.CreateCriteria(criteria)
	return l.LoadNextPage(ctx)
}

// LoadNextPage appends the next batch and returns it. Loads run one at a time.
func (l *List[T]) LoadNextPage(ctx context.Context) ([]T, error) {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()

	batch, err := l.source.LoadNextPage(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		l.exhausted = true
		return nil, nil
	}
	l.items = append(l.items, batch...)
	return batch, nil
}

// NearEnd reports whether lastVisible (zero-based) is within the threshold of
// the last loaded item.
func (l *List[T]) NearEnd(lastVisible int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.exhausted && lastVisible >= len(l.items)-1-l.threshold
}

// OnScroll loads the next page when lastVisible is near the end.
func (l *List[T]) OnScroll(ctx context.Context, lastVisible int) ([]T, error) {
	if !l.NearEnd(lastVisible) {
		return nil, nil
	}
	return l.LoadNextPage(ctx)
}
