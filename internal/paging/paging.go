// Package paging retrieves remote collections incrementally, one bounded
// batch at a time, behind a resettable search criterion.
package paging

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Source is anything that yields the next batch of T for the current criterion.
type Source[T any] interface {
	PageSize() int
	CreateCriteria(criteria string)
	LoadNextPage(ctx context.Context) ([]T, error)
}

// Query is what a Fetcher receives for one page. Token is empty for the first page.
type Query struct {
	Criteria string
	Token    string
	Size     int
}

// Page is one fetched batch. An empty NextToken means there is nothing after it.
type Page[T any] struct {
	Items     []T
	NextToken string
}

// Fetcher talks to the remote collection.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, q Query) (Page[T], error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[T any] func(ctx context.Context, q Query) (Page[T], error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, q Query) (Page[T], error) {
	return f(ctx, q)
}

// Paged is the Source built on a Fetcher.
type Paged[T any] struct {
	fetcher  Fetcher[T]
	pageSize int

	// fetchMu serializes LoadNextPage so no two callers fetch the same page
	fetchMu sync.Mutex

	mu         sync.Mutex
	criteria   string
	token      string
	exhausted  bool
	generation uint64
}

func New[T any](fetcher Fetcher[T], pageSize int) (*Paged[T], error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	return &Paged[T]{fetcher: fetcher, pageSize: pageSize}, nil
}

func (p *Paged[T]) PageSize() int {
	return p.pageSize
}

// CreateCriteria switches the criterion and rewinds to the first page.
func (p *Paged[T]) CreateCriteria(criteria string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.criteria = criteria
	p.token = ""
	p.exhausted = false
	p.generation++
}

func (p *Paged[T]) Criteria() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.criteria
}

func (p *Paged[T]) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exhausted
}

// LoadNextPage fetches the batch after the cursor and advances it. Once the
// collection is exhausted it returns an empty batch without fetching. On error
// the cursor is left where it was. Concurrent calls are served one after the
// other, each receiving the page after the previous caller's.
func (p *Paged[T]) LoadNextPage(ctx context.Context) ([]T, error) {
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	p.mu.Lock()
	if p.exhausted {
		p.mu.Unlock()
		return nil, nil
	}
	q := Query{Criteria: p.criteria, Token: p.token, Size: p.pageSize}
	gen := p.generation
	p.mu.Unlock()

	page, err := p.fetcher.Fetch(ctx, q)
	if err != nil {
		log.Debug().Str("op", "paging/paging").Err(err).Msgf("fetch failed for %q", q.Criteria)
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		// criterion changed while fetching; the result belongs to the old one
		return nil, nil
	}
	p.token = page.NextToken
	if page.NextToken == "" || len(page.Items) == 0 {
		p.exhausted = true
	}
	return page.Items, nil
}
