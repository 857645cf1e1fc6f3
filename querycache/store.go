// Package querycache is a keyed store of fetched results with staleness tracking,
// in-flight request deduplication, subscriptions and per-key generation counters.
//
// Every write to a key (Set, Update, Restore, Remove, Cancel) bumps its generation.
// A read started by Fetch is applied only if the generation it captured is still current
// when it completes, so a late read can never overwrite a newer local write.
package querycache

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/fivesaside/touchline/core"
)

type (
	// Entry is a committed cache value.
	Entry struct {
		Data       interface{}
		UpdatedAt  time.Time
		Stale      bool
		Generation uint64
	}

	// Snapshot is an immutable copy of a key's state, used to roll a write back.
	Snapshot struct {
		Key    string
		Entry  Entry
		Exists bool
	}

	FetchFunc func(ctx context.Context) (interface{}, error)

	// Listener is called with the committed entry after every change of the key it subscribed to.
	// ok is false once the key has been removed. Listeners must not write to the store.
	Listener func(e Entry, ok bool)

	// DecodeFunc turns persisted bytes back into cache data.
	DecodeFunc func(key string, raw []byte) (interface{}, error)

	Options struct {
		// StaleTime is the age after which an entry is considered stale. Zero disables aging.
		StaleTime time.Duration

		// Persister, when set, receives every change of the keys starting with one of PersistPrefixes.
		Persister       Persister
		PersistPrefixes []string
		Decode          DecodeFunc

		Logger core.Logger
	}

	Store struct {
		mu        sync.Mutex
		notifyMu  sync.Mutex
		entries   map[string]*Entry
		gens      map[string]uint64
		listeners map[string]map[int]Listener
		nextSubID int
		group     singleflight.Group
		opts      Options
		nowFunc   func() time.Time
	}
)

func New(opts Options) *Store {
	return &Store{
		entries:   make(map[string]*Entry),
		gens:      make(map[string]uint64),
		listeners: make(map[string]map[int]Listener),
		opts:      opts,
		nowFunc:   time.Now,
	}
}

func (s *Store) isStale(e *Entry) bool {
	if e.Stale {
		return true
	}
	return s.opts.StaleTime > 0 && s.nowFunc().Sub(e.UpdatedAt) > s.opts.StaleTime
}

// Get returns the committed entry of key. Stale reflects both invalidation and age.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	cp := *e
	cp.Stale = s.isStale(e)
	return cp, true
}

// Generation returns the current generation of key.
func (s *Store) Generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[key]
}

// Fetch returns the cached data of key when fresh, else runs fn.
// Concurrent fetches of the same key and generation share a single call of fn.
// The result is applied only if no write happened on key since the fetch began;
// otherwise it is discarded and the current data is returned.
//
// fn runs with the values of ctx but without its cancellation. A caller whose ctx is done
// returns ctx.Err() at once while the flight goes on for the callers that joined it.
func (s *Store) Fetch(ctx context.Context, key string, fn FetchFunc) (interface{}, error) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && !s.isStale(e) {
		data := e.Data
		s.mu.Unlock()
		return data, nil
	}
	gen := s.gens[key]
	s.mu.Unlock()

	flightCtx := context.WithoutCancel(ctx)
	flightKey := key + "#" + strconv.FormatUint(gen, 10)
	ch := s.group.DoChan(flightKey, func() (interface{}, error) {
		data, err := fn(flightCtx)
		if err != nil {
			return nil, err
		}
		return s.apply(key, gen, data), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// apply commits a fetch result if gen is still current and returns the data now held by the key.
func (s *Store) apply(key string, gen uint64, data interface{}) interface{} {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.gens[key] != gen {
		cur, ok := s.entries[key]
		s.mu.Unlock()
		s.debug("discarding stale read", key, gen)
		if ok {
			return cur.Data
		}
		return data
	}
	e := &Entry{Data: data, UpdatedAt: s.nowFunc(), Generation: gen}
	s.entries[key] = e
	cp, lsts := *e, s.listenersOf(key)
	s.mu.Unlock()

	s.persist(key, cp, true)
	notify(lsts, cp, true)
	return data
}

// Set stores data under key as fresh.
func (s *Store) Set(key string, data interface{}) Entry {
	return s.write(key, func(_ interface{}, _ bool) interface{} { return data })
}

// Update replaces the data of key with fn(old). ok is false when the key holds nothing.
func (s *Store) Update(key string, fn func(old interface{}, ok bool) interface{}) Entry {
	return s.write(key, fn)
}

func (s *Store) write(key string, fn func(old interface{}, ok bool) interface{}) Entry {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	var old interface{}
	cur, ok := s.entries[key]
	if ok {
		old = cur.Data
	}
	s.gens[key]++
	e := &Entry{Data: fn(old, ok), UpdatedAt: s.nowFunc(), Generation: s.gens[key]}
	s.entries[key] = e
	cp, lsts := *e, s.listenersOf(key)
	s.mu.Unlock()

	s.persist(key, cp, true)
	notify(lsts, cp, true)
	return cp
}

// Snapshot captures the current state of key.
func (s *Store) Snapshot(key string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Key: key}
	if e, ok := s.entries[key]; ok {
		snap.Entry = *e
		snap.Exists = true
	}
	return snap
}

// Restore puts key back in the state captured by snap. A key that did not exist is removed.
// The generation still moves forward.
func (s *Store) Restore(snap Snapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.gens[snap.Key]++
	var cp Entry
	if snap.Exists {
		e := snap.Entry
		e.Generation = s.gens[snap.Key]
		s.entries[snap.Key] = &e
		cp = e
	} else {
		delete(s.entries, snap.Key)
	}
	lsts := s.listenersOf(snap.Key)
	s.mu.Unlock()

	s.persist(snap.Key, cp, snap.Exists)
	notify(lsts, cp, snap.Exists)
}

// Remove drops key.
func (s *Store) Remove(key string) {
	s.Restore(Snapshot{Key: key})
}

// Cancel bumps the generation of key so that reads in flight are discarded on completion.
func (s *Store) Cancel(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[key]++
	if e, ok := s.entries[key]; ok {
		e.Generation = s.gens[key]
	}
	return s.gens[key]
}

// Invalidate marks keys stale, the next Fetch of each key calls the remote again.
func (s *Store) Invalidate(keys ...string) {
	for _, key := range keys {
		s.invalidate(key)
	}
}

// InvalidatePrefix marks every key starting with prefix stale.
func (s *Store) InvalidatePrefix(prefix string) {
	s.mu.Lock()
	var keys []string
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()
	s.Invalidate(keys...)
}

func (s *Store) invalidate(key string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.Stale {
		s.mu.Unlock()
		return
	}
	e.Stale = true
	cp, lsts := *e, s.listenersOf(key)
	s.mu.Unlock()

	notify(lsts, cp, true)
}

// Subscribe registers fn for changes of key and returns the function that unregisters it.
func (s *Store) Subscribe(key string, fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	if s.listeners[key] == nil {
		s.listeners[key] = make(map[int]Listener)
	}
	s.listeners[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners[key], id)
			if len(s.listeners[key]) == 0 {
				delete(s.listeners, key)
			}
		})
	}
}

// listenersOf must be called with s.mu held.
func (s *Store) listenersOf(key string) []Listener {
	ids := make([]int, 0, len(s.listeners[key]))
	for id := range s.listeners[key] {
		ids = append(ids, id)
	}
	sort.Ints(ids) // subscription order
	lsts := make([]Listener, 0, len(ids))
	for _, id := range ids {
		lsts = append(lsts, s.listeners[key][id])
	}
	return lsts
}

func notify(lsts []Listener, e Entry, ok bool) {
	for _, fn := range lsts {
		fn(e, ok)
	}
}

// Load warms the store from the persister. Loaded entries are stale.
func (s *Store) Load() error {
	if s.opts.Persister == nil {
		return nil
	}
	recs, err := s.opts.Persister.Load()
	if err != nil {
		return errors.Wrap(err, "loading persisted entries")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range recs {
		if _, ok := s.entries[key]; ok || !s.persisted(key) {
			continue
		}
		var data interface{} = json.RawMessage(rec.Data)
		if s.opts.Decode != nil {
			if data, err = s.opts.Decode(key, rec.Data); err != nil {
				s.warn("decoding persisted entry", key, err)
				continue
			}
		}
		s.entries[key] = &Entry{Data: data, UpdatedAt: rec.UpdatedAt, Stale: true, Generation: s.gens[key]}
	}
	return nil
}

func (s *Store) persisted(key string) bool {
	for _, prefix := range s.opts.PersistPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (s *Store) persist(key string, e Entry, exists bool) {
	if s.opts.Persister == nil || !s.persisted(key) {
		return
	}
	if !exists {
		if err := s.opts.Persister.Delete(key); err != nil {
			s.warn("deleting persisted entry", key, err)
		}
		return
	}
	raw, err := json.Marshal(e.Data)
	if err != nil {
		s.warn("encoding entry", key, err)
		return
	}
	if err = s.opts.Persister.Save(key, Record{Data: raw, UpdatedAt: e.UpdatedAt}); err != nil {
		s.warn("persisting entry", key, err)
	}
}

func (s *Store) warn(msg, key string, err error) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, err, map[string]interface{}{"key": key})
	}
}

func (s *Store) debug(msg, key string, gen uint64) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, map[string]interface{}{"key": key, "generation": gen})
	}
}
