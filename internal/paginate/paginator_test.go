package paginate

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	ID int
}

func itemID(it item) string { return strconv.Itoa(it.ID) }

func items(ids ...int) []item {
	out := make([]item, len(ids))
	for i, id := range ids {
		out[i] = item{ID: id}
	}
	return out
}

// scripted serves fixed pages per criteria and records every request.
type scripted struct {
	mu       sync.Mutex
	pages    map[string]map[int]Page[item]
	requests []string
}

func (s *scripted) fetch(_ context.Context, criteria string, page int) (Page[item], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, criteria+":"+strconv.Itoa(page))
	return s.pages[criteria][page], nil
}

func TestLoadMore_DeduplicatesAcrossPages(t *testing.T) {
	ctx := context.Background()
	src := &scripted{pages: map[string]map[int]Page[item]{
		"": {
			1: {Items: items(1, 2, 3)},
			2: {Items: items(3, 4, 5)},
		},
	}}
	p := New("", 3, itemID, src.fetch)

	loaded, err := p.LoadMore(ctx)
	require.NoError(t, err)
	require.True(t, loaded)
	_, err = p.LoadMore(ctx)
	require.NoError(t, err)

	require.Equal(t, items(1, 2, 3, 4, 5), p.Items())
	require.Equal(t, 2, p.Page())
}

func TestSetCriteria_ResetsToFirstPage(t *testing.T) {
	ctx := context.Background()
	src := &scripted{pages: map[string]map[int]Page[item]{
		"all": {
			1: {Items: items(1, 2)},
			2: {Items: items(3, 4)},
			3: {Items: items(5, 6)},
		},
		"tea": {
			1: {Items: items(9)},
		},
	}}
	p := New("all", 2, itemID, src.fetch)

	require.NoError(t, p.LoadPages(ctx, 3))
	require.Equal(t, 3, p.Page())
	require.Len(t, p.Items(), 6)

	require.True(t, p.SetCriteria("tea"))
	require.Empty(t, p.Items())
	require.Equal(t, 0, p.Page())
	require.True(t, p.HasMore())

	_, err := p.LoadMore(ctx)
	require.NoError(t, err)
	require.Equal(t, items(9), p.Items())
	require.Equal(t, "tea:1", src.requests[len(src.requests)-1])

	// Same criteria is not a change
	require.False(t, p.SetCriteria("tea"))
	require.Equal(t, items(9), p.Items())
}

func TestHasMore_Heuristic(t *testing.T) {
	ctx := context.Background()
	src := &scripted{pages: map[string]map[int]Page[item]{
		"": {
			1: {Items: items(1, 2)},
			2: {Items: items(3)},
		},
	}}
	p := New("", 2, itemID, src.fetch)

	require.NoError(t, p.LoadPages(ctx, 10))
	require.False(t, p.HasMore())
	require.Equal(t, items(1, 2, 3), p.Items())

	// Exhausted: further calls do not hit the backend
	n := len(src.requests)
	loaded, err := p.LoadMore(ctx)
	require.NoError(t, err)
	require.False(t, loaded)
	require.Len(t, src.requests, n)
}

func TestHasMore_FullLastPageGuessesMore(t *testing.T) {
	ctx := context.Background()
	src := &scripted{pages: map[string]map[int]Page[item]{
		"": {1: {Items: items(1, 2)}},
	}}
	p := New("", 2, itemID, src.fetch)

	_, err := p.LoadMore(ctx)
	require.NoError(t, err)
	require.True(t, p.HasMore())

	// The guess was wrong; an empty page ends the list
	_, err = p.LoadMore(ctx)
	require.NoError(t, err)
	require.False(t, p.HasMore())
	require.Equal(t, items(1, 2), p.Items())
}

func TestHasMore_UsesTotalWhenKnown(t *testing.T) {
	ctx := context.Background()
	src := &scripted{pages: map[string]map[int]Page[item]{
		"": {
			1: {Items: items(1, 2), Total: 3},
			2: {Items: items(3), Total: 3},
		},
	}}
	p := New("", 10, itemID, src.fetch)

	_, err := p.LoadMore(ctx)
	require.NoError(t, err)
	// Short page, but the total says there is more
	require.True(t, p.HasMore())
	require.Equal(t, 3, p.Total())

	_, err = p.LoadMore(ctx)
	require.NoError(t, err)
	require.False(t, p.HasMore())
}

func TestLoadMore_NoOpWhilePending(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0

	p := New("", 2, itemID, func(_ context.Context, _ string, page int) (Page[item], error) {
		calls++
		close(started)
		<-release
		return Page[item]{Items: items(1, 2)}, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.LoadMore(ctx)
	}()

	<-started
	require.True(t, p.Pending())
	loaded, err := p.LoadMore(ctx)
	require.NoError(t, err)
	require.False(t, loaded)

	close(release)
	<-done
	require.Equal(t, 1, calls)
	require.False(t, p.Pending())
}

func TestReset_DiscardsInFlightPage(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	p := New("old", 2, itemID, func(_ context.Context, criteria string, page int) (Page[item], error) {
		if criteria == "old" {
			started <- struct{}{}
			<-release
			return Page[item]{Items: items(100, 101)}, nil
		}
		return Page[item]{Items: items(1)}, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if loaded, err := p.LoadMore(ctx); loaded || err != nil {
			t.Errorf("expected stale page to be discarded, got loaded=%v err=%v", loaded, err)
		}
	}()

	<-started
	p.SetCriteria("new")
	_, err := p.LoadMore(ctx)
	require.NoError(t, err)

	close(release)
	<-done

	require.Equal(t, items(1), p.Items())
	require.Equal(t, 1, p.Page())
}

func TestLoadMore_ErrorKeepsCursor(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")
	fail := true

	p := New("", 2, itemID, func(_ context.Context, _ string, page int) (Page[item], error) {
		if fail {
			return Page[item]{}, boom
		}
		return Page[item]{Items: items(page)}, nil
	})

	loaded, err := p.LoadMore(ctx)
	require.True(t, loaded)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, p.Err(), boom)
	require.Equal(t, 0, p.Page())
	require.True(t, p.HasMore())

	fail = false
	_, err = p.LoadMore(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Err())
	require.Equal(t, items(1), p.Items())
}
