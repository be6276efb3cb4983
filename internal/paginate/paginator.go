// Package paginate accumulates paged list results into one ordered,
// deduplicated list.
package paginate

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Page is one page of results as returned by the backend.
type Page[T any] struct {
	Items []T
	// Total is the backend's total item count, 0 when unknown.
	Total int
}

// FetchFunc loads one page (1-based) for the given criteria.
type FetchFunc[T any, C comparable] func(ctx context.Context, criteria C, page int) (Page[T], error)

// Paginator drives a paged list. It is safe for concurrent use; at most one
// page fetch is pending at a time.
//
// Without a backend total, "has more" is a best-effort guess: a full page
// means there may be more, a short page means there is not.
type Paginator[T any, C comparable] struct {
	fetch    FetchFunc[T, C]
	id       func(T) string
	pageSize int

	mu       sync.Mutex
	criteria C
	items    []T
	seen     map[string]struct{}
	page     int // last page loaded, 0 before the first fetch
	total    int
	hasMore  bool
	pending  bool
	gen      uint64 // bumped by Reset, fetches from an older generation are discarded
	err      error
}

// New returns a paginator positioned before page 1.
func New[T any, C comparable](criteria C, pageSize int, id func(T) string, fetch FetchFunc[T, C]) *Paginator[T, C] {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Paginator[T, C]{
		fetch:    fetch,
		id:       id,
		pageSize: pageSize,
		criteria: criteria,
		seen:     make(map[string]struct{}),
		hasMore:  true,
	}
}

// LoadMore fetches the next page and appends its unseen items. It is a no-op
// returning false when a fetch is already pending or no more pages exist.
func (p *Paginator[T, C]) LoadMore(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.pending || !p.hasMore {
		p.mu.Unlock()
		return false, nil
	}
	p.pending = true
	gen, next, criteria := p.gen, p.page+1, p.criteria
	p.mu.Unlock()

	result, err := p.fetch(ctx, criteria, next)

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen {
		log.Debug().Int("page", next).Msg("discarding page fetched before reset")
		return false, nil
	}
	p.pending = false

	if err != nil {
		p.err = err
		return true, err
	}
	p.err = nil
	p.page = next

	for _, item := range result.Items {
		id := p.id(item)
		if _, dup := p.seen[id]; dup {
			continue
		}
		p.seen[id] = struct{}{}
		p.items = append(p.items, item)
	}

	if result.Total > 0 {
		p.total = result.Total
		p.hasMore = len(p.items) < p.total && len(result.Items) > 0
	} else {
		p.hasMore = len(result.Items) >= p.pageSize
	}
	return true, nil
}

// LoadPages calls LoadMore until n pages have been loaded in total or the
// list is exhausted.
func (p *Paginator[T, C]) LoadPages(ctx context.Context, n int) error {
	for p.Page() < n {
		loaded, err := p.LoadMore(ctx)
		if err != nil {
			return err
		}
		if !loaded {
			return nil
		}
	}
	return nil
}

// Reset clears the list and moves the cursor back before page 1. A fetch in
// flight is discarded when it arrives.
func (p *Paginator[T, C]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

func (p *Paginator[T, C]) reset() {
	p.gen++
	p.items = nil
	p.seen = make(map[string]struct{})
	p.page = 0
	p.total = 0
	p.hasMore = true
	p.pending = false
	p.err = nil
}

// SetCriteria switches the filter. The list is reset only if the criteria
// actually changed; it reports whether a reset happened.
func (p *Paginator[T, C]) SetCriteria(c C) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c == p.criteria {
		return false
	}
	p.criteria = c
	p.reset()
	return true
}

// Items returns a copy of the accumulated list.
func (p *Paginator[T, C]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]T(nil), p.items...)
}

func (p *Paginator[T, C]) Criteria() C {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.criteria
}

// Page returns the last page loaded, 0 if none.
func (p *Paginator[T, C]) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// Total returns the backend total, 0 when unknown.
func (p *Paginator[T, C]) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func (p *Paginator[T, C]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

func (p *Paginator[T, C]) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Err returns the error of the last fetch, nil after a success.
func (p *Paginator[T, C]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
