package querycache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_FetchCachesFreshData(t *testing.T) {
	s := New(Options{})
	var calls int32
	fn := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "v1", nil
	}

	for i := 0; i < 3; i++ {
		data, err := s.Fetch(context.Background(), "k", fn)
		require.NoError(t, err)
		assert.Equal(t, "v1", data)
	}
	assert.EqualValues(t, 1, calls)

	s.Invalidate("k")
	e, _ := s.Get("k")
	assert.True(t, e.Stale)

	_, err := s.Fetch(context.Background(), "k", fn)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
	e, _ = s.Get("k")
	assert.False(t, e.Stale)
}

func TestStore_FetchError(t *testing.T) {
	s := New(Options{})
	wantErr := errors.New("boom")
	_, err := s.Fetch(context.Background(), "k", func(ctx context.Context) (interface{}, error) { return nil, wantErr })
	assert.Equal(t, wantErr, err)
	_, ok := s.Get("k")
	assert.False(t, ok)
}

func TestStore_FetchDedupesConcurrentReads(t *testing.T) {
	s := New(Options{})
	var calls int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	started := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			data, err := s.Fetch(context.Background(), "k", fn)
			assert.NoError(t, err)
			assert.Equal(t, "v", data)
		}()
	}
	for i := 0; i < 5; i++ {
		<-started
	}
	time.Sleep(20 * time.Millisecond) // let every goroutine join the flight
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, calls)
}

func TestStore_FetchSurvivesFirstCallerCancel(t *testing.T) {
	s := New(Options{})

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return "v", nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error)
	go func() {
		_, err := s.Fetch(firstCtx, "k", fn)
		firstErr <- err
	}()
	<-started

	secondData := make(chan interface{})
	go func() {
		data, err := s.Fetch(context.Background(), "k", fn)
		assert.NoError(t, err)
		secondData <- data
	}()
	time.Sleep(20 * time.Millisecond) // let the second caller join the flight

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, "v", <-secondData)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	e, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", e.Data)
}

func TestStore_CancelDiscardsInFlightRead(t *testing.T) {
	s := New(Options{})
	s.Set("k", "old")
	s.Invalidate("k")

	inFlight := make(chan struct{})
	release := make(chan struct{})
	done := make(chan interface{})
	go func() {
		data, _ := s.Fetch(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
			close(inFlight)
			<-release
			return "late read", nil
		})
		done <- data
	}()

	<-inFlight
	s.Cancel("k")
	s.Set("k", "optimistic")
	close(release)

	assert.Equal(t, "optimistic", <-done, "caller gets the current data")
	e, _ := s.Get("k")
	assert.Equal(t, "optimistic", e.Data)
}

func TestStore_ReadStartedAfterCancelIsApplied(t *testing.T) {
	s := New(Options{})
	s.Cancel("k")
	data, err := s.Fetch(context.Background(), "k", func(ctx context.Context) (interface{}, error) { return "v", nil })
	require.NoError(t, err)
	assert.Equal(t, "v", data)
	e, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", e.Data)
}

func TestStore_SnapshotRestore(t *testing.T) {
	s := New(Options{})
	s.Set("k", []string{"a"})
	s.Invalidate("k")
	snap := s.Snapshot("k")

	s.Update("k", func(old interface{}, ok bool) interface{} {
		assert.True(t, ok)
		return append(old.([]string), "b")
	})
	e, _ := s.Get("k")
	assert.Equal(t, []string{"a", "b"}, e.Data)

	s.Restore(snap)
	e, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, e.Data)
	assert.Equal(t, snap.Entry.UpdatedAt, e.UpdatedAt)
	assert.True(t, e.Stale)
	assert.Greater(t, e.Generation, snap.Entry.Generation)

	missing := s.Snapshot("none")
	s.Set("none", 1)
	s.Restore(missing)
	_, ok = s.Get("none")
	assert.False(t, ok)
}

func TestStore_StaleTime(t *testing.T) {
	s := New(Options{StaleTime: time.Minute})
	now := time.Now()
	s.nowFunc = func() time.Time { return now }
	s.Set("k", 1)

	e, _ := s.Get("k")
	assert.False(t, e.Stale)

	s.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }
	e, _ = s.Get("k")
	assert.True(t, e.Stale)
}

func TestStore_InvalidatePrefix(t *testing.T) {
	s := New(Options{})
	s.Set("attendance/list/m1", 1)
	s.Set("attendance/status/m1/u1", 2)
	s.Set("matches/m1", 3)

	s.InvalidatePrefix("attendance/")
	for key, want := range map[string]bool{
		"attendance/list/m1":      true,
		"attendance/status/m1/u1": true,
		"matches/m1":              false,
	} {
		e, _ := s.Get(key)
		assert.Equal(t, want, e.Stale, key)
	}
}

func TestStore_Subscribe(t *testing.T) {
	s := New(Options{})
	var seen []interface{}
	unsubscribe := s.Subscribe("k", func(e Entry, ok bool) {
		if !ok {
			seen = append(seen, "removed")
			return
		}
		// listeners only ever see committed entries
		cur, _ := s.Get("k")
		assert.Equal(t, cur.Data, e.Data)
		seen = append(seen, e.Data)
	})

	s.Set("k", 1)
	s.Update("k", func(old interface{}, _ bool) interface{} { return old.(int) + 1 })
	s.Remove("k")
	unsubscribe()
	unsubscribe()
	s.Set("k", 3)

	assert.Equal(t, []interface{}{1, 2, "removed"}, seen)
}

type memPersister struct {
	mu   sync.Mutex
	recs map[string]Record
}

func (p *memPersister) Save(key string, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs[key] = rec
	return nil
}

func (p *memPersister) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.recs, key)
	return nil
}

func (p *memPersister) Load() (map[string]Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make(map[string]Record, len(p.recs))
	for k, v := range p.recs {
		cp[k] = v
	}
	return cp, nil
}

func TestStore_Persistence(t *testing.T) {
	p := &memPersister{recs: make(map[string]Record)}
	s := New(Options{Persister: p, PersistPrefixes: []string{"p/"}})

	s.Set("p/a", map[string]int{"n": 1})
	s.Set("p/b", "gone")
	s.Set("tmp/c", "not persisted")
	s.Remove("p/b")

	recs, _ := p.Load()
	require.Len(t, recs, 1)
	assert.JSONEq(t, `{"n":1}`, string(recs["p/a"].Data))

	warm := New(Options{Persister: p, PersistPrefixes: []string{"p/"}})
	require.NoError(t, warm.Load())
	e, ok := warm.Get("p/a")
	require.True(t, ok)
	assert.True(t, e.Stale)
	assert.JSONEq(t, `{"n":1}`, string(e.Data.(json.RawMessage)))
}
