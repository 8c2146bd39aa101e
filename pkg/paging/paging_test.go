package paging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type filter struct {
	UserType string
	Search   string
}

type call struct {
	page   int
	size   int
	filter filter
}

type fakeLog struct {
	mu    sync.Mutex
	calls []call
	total int
	fail  bool
}

func (f *fakeLog) fetch(_ context.Context, page, size int, fl filter) (Page[string], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{page, size, fl})
	if f.fail {
		return Page[string]{}, errors.New("history unavailable")
	}
	var items []string
	for i := (page - 1) * size; i < page*size && i < f.total; i++ {
		items = append(items, fmt.Sprintf("q-%d", i+1))
	}
	return Page[string]{Items: items, Total: f.total}, nil
}

func (f *fakeLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLog) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func TestController_SetPageClamps(t *testing.T) {
	log := &fakeLog{total: 60}
	c := New(log.fetch, 25)

	require.NoError(t, c.Reload(context.Background()))
	assert.Equal(t, 3, c.Current().TotalPages())

	tests := []struct {
		request int
		want    int
	}{
		{2, 2},
		{3, 3},
		{99, 3},
		{0, 1},
		{-4, 1},
	}
	for _, tt := range tests {
		before := log.count()
		require.NoError(t, c.SetPage(context.Background(), tt.request))
		assert.Equal(t, tt.want, c.Current().Page, "SetPage(%d)", tt.request)
		assert.Equal(t, before+1, log.count(), "exactly one fetch per SetPage")
		assert.Equal(t, tt.want, log.last().page)
	}
}

func TestController_SetPageBeforeFirstFetch(t *testing.T) {
	log := &fakeLog{total: 0}
	c := New(log.fetch, 25)

	require.NoError(t, c.SetPage(context.Background(), 5))
	assert.Equal(t, 1, c.Current().Page)
	assert.Equal(t, 0, c.Current().TotalPages())
	assert.False(t, c.Current().HasNext())
	assert.False(t, c.Current().HasPrev())
}

func TestController_FilterChangeResetsPage(t *testing.T) {
	log := &fakeLog{total: 100}
	c := New(log.fetch, 25)

	require.NoError(t, c.Reload(context.Background()))
	require.NoError(t, c.SetPage(context.Background(), 3))
	assert.Equal(t, 3, c.Current().Page)

	// Same filter keeps the page.
	require.NoError(t, c.Refresh(context.Background(), filter{}))
	assert.Equal(t, 3, c.Current().Page)

	require.NoError(t, c.Refresh(context.Background(), filter{UserType: "policyholder"}))
	assert.Equal(t, 1, c.Current().Page)
	assert.Equal(t, filter{UserType: "policyholder"}, log.last().filter)
	assert.Equal(t, 1, log.last().page)
}

func TestController_NextPrev(t *testing.T) {
	log := &fakeLog{total: 30}
	c := New(log.fetch, 25, WithFilter[string](filter{Search: "flood"}))

	require.NoError(t, c.Reload(context.Background()))
	assert.True(t, c.Current().HasNext())
	require.NoError(t, c.Next(context.Background()))
	assert.Equal(t, 2, c.Current().Page)
	assert.Equal(t, []string{"q-26", "q-27", "q-28", "q-29", "q-30"}, c.Current().Items)
	require.NoError(t, c.Next(context.Background()))
	assert.Equal(t, 2, c.Current().Page)
	require.NoError(t, c.Prev(context.Background()))
	assert.Equal(t, 1, c.Current().Page)
	assert.Equal(t, filter{Search: "flood"}, log.last().filter)
}

func TestController_FailureKeepsItems(t *testing.T) {
	log := &fakeLog{total: 3}
	c := New(log.fetch, 25)

	require.NoError(t, c.Reload(context.Background()))
	require.Len(t, c.Current().Items, 3)

	log.mu.Lock()
	log.fail = true
	log.mu.Unlock()

	err := c.Refresh(context.Background(), filter{Search: "hail"})
	require.Error(t, err)

	cur := c.Current()
	assert.Equal(t, []string{"q-1", "q-2", "q-3"}, cur.Items)
	assert.Equal(t, 3, cur.Total)
	assert.Error(t, cur.Err)
	assert.False(t, cur.Loading)
}

func TestController_StaleResponseDiscarded(t *testing.T) {
	slowEntered := make(chan struct{})
	releaseSlow := make(chan struct{})
	var n atomic.Int32

	fetch := func(_ context.Context, page, size int, f filter) (Page[string], error) {
		if n.Add(1) == 1 {
			close(slowEntered)
			<-releaseSlow
			return Page[string]{Items: []string{"stale"}, Total: 1}, nil
		}
		return Page[string]{Items: []string{"fresh"}, Total: 1}, nil
	}
	c := New(fetch, 25, WithName[string, filter]("staff-history"))

	done := make(chan error)
	go func() { done <- c.Refresh(context.Background(), filter{Search: "old"}) }()
	<-slowEntered

	require.NoError(t, c.Refresh(context.Background(), filter{Search: "new"}))
	assert.Equal(t, []string{"fresh"}, c.Current().Items)

	close(releaseSlow)
	require.NoError(t, <-done)

	cur := c.Current()
	assert.Equal(t, []string{"fresh"}, cur.Items)
	assert.Equal(t, filter{Search: "new"}, cur.Filter)
}

func TestController_OnChange(t *testing.T) {
	log := &fakeLog{total: 1}
	var loading []bool
	c := New(log.fetch, 10, WithOnChange(func(cur Cursor[string, filter]) {
		loading = append(loading, cur.Loading)
	}))

	require.NoError(t, c.Reload(context.Background()))
	assert.Equal(t, []bool{true, false}, loading)
}

func TestController_CurrentReturnsCopy(t *testing.T) {
	log := &fakeLog{total: 2}
	c := New(log.fetch, 0)
	require.NoError(t, c.Reload(context.Background()))
	assert.Equal(t, 25, c.Current().PageSize)

	items := c.Current().Items
	items[0] = "mutated"
	assert.Equal(t, "q-1", c.Current().Items[0])
}

func TestController_ReloadClampsShrunkenList(t *testing.T) {
	log := &fakeLog{total: 100}
	c := New(log.fetch, 10)
	require.NoError(t, c.Reload(context.Background()))
	require.NoError(t, c.SetPage(context.Background(), 8))
	require.Equal(t, 8, c.Current().Page)

	log.mu.Lock()
	log.total = 15
	log.mu.Unlock()

	require.NoError(t, c.Reload(context.Background()))
	cur := c.Current()
	assert.Equal(t, 2, cur.Page)
	assert.Equal(t, 2, cur.TotalPages())
	assert.Equal(t, []string{"q-11", "q-12", "q-13", "q-14", "q-15"}, cur.Items)
	assert.False(t, cur.HasNext())
	assert.Equal(t, 2, log.last().page, "clamped page is fetched")
}

func TestController_ReloadClampsEmptiedList(t *testing.T) {
	log := &fakeLog{total: 30}
	c := New(log.fetch, 10)
	require.NoError(t, c.Reload(context.Background()))
	require.NoError(t, c.SetPage(context.Background(), 3))
	require.Equal(t, 3, c.Current().Page)

	log.mu.Lock()
	log.total = 0
	log.mu.Unlock()

	require.NoError(t, c.Reload(context.Background()))
	cur := c.Current()
	assert.Equal(t, 1, cur.Page)
	assert.Empty(t, cur.Items)
	assert.False(t, cur.HasPrev())
}

func TestController_OnChangeVersionsIncrease(t *testing.T) {
	log := &fakeLog{total: 50}
	var mu sync.Mutex
	var versions []uint64
	c := New(log.fetch, 10, WithOnChange(func(cur Cursor[string, filter]) {
		mu.Lock()
		versions = append(versions, cur.Version)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Reload(context.Background())
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, versions)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
	assert.Equal(t, c.Current().Version, versions[len(versions)-1])
}
