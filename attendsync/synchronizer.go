// Package attendsync keeps a user's attendance declaration consistent between
// the query cache and the remote source of truth.
//
// SetAttendance applies the new status to the cached list at once, writes it through the
// gateway, then either reconciles the cache with the server or rolls the list back.
package attendsync

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/gateway"
	"github.com/fivesaside/touchline/querycache"
)

var (
	ErrMatchRequired = errors.New("match id is required")
	ErrUserRequired  = errors.New("user id is required")
)

type Synchronizer struct {
	store  *querycache.Store
	gw     gateway.Gateway
	logger core.Logger

	mu     sync.Mutex
	tracks map[string]*track // by list key
}

func New(store *querycache.Store, gw gateway.Gateway, logger core.Logger) *Synchronizer {
	return &Synchronizer{
		store:  store,
		gw:     gw,
		logger: logger,
		tracks: make(map[string]*track),
	}
}

// SetAttendance declares status for userID on matchID.
// On failure the cached list is rolled back and the gateway error is returned unchanged.
func (s *Synchronizer) SetAttendance(ctx context.Context, matchID, userID string, status attendance.Status) error {
	m, err := s.begin(matchID, userID, status)
	if err != nil {
		return err
	}
	if err = s.gw.WriteAttendanceStatus(ctx, matchID, userID, status); err != nil {
		s.rollback(m, err)
		return err
	}
	s.commit(ctx, m)
	return nil
}

func validate(matchID, userID string, status attendance.Status) error {
	var flds []core.FieldError
	if matchID == "" {
		flds = append(flds, core.FieldError{Field: "match_id", Error: ErrMatchRequired.Error()})
	}
	if userID == "" {
		flds = append(flds, core.FieldError{Field: "user_id", Error: ErrUserRequired.Error()})
	}
	if !status.Valid() {
		flds = append(flds, core.FieldError{Field: "status", Error: attendance.ErrInvalidStatus.Error()})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// begin cancels reads in flight, snapshots the list and applies the new status to it.
func (s *Synchronizer) begin(matchID, userID string, status attendance.Status) (*Mutation, error) {
	if err := validate(matchID, userID, status); err != nil {
		return nil, err
	}
	m := &Mutation{MatchID: matchID, UserID: userID, Status: status}
	listKey := ListKey(matchID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.Cancel(listKey)
	s.store.Cancel(StatusKey(matchID, userID))

	m.snapshot = s.store.Snapshot(listKey)
	m.state = Pending

	// nothing to show optimistically until the list has been read once
	if m.snapshot.Exists {
		m.applied = true
		s.store.Update(listKey, func(old interface{}, _ bool) interface{} {
			return m.apply(asList(old))
		})
	}

	tr, ok := s.tracks[listKey]
	if !ok {
		tr = &track{}
		s.tracks[listKey] = tr
	}
	tr.muts = append(tr.muts, m)
	return m, nil
}

// commit settles m and reconciles the cache once no mutation of the list is pending anymore.
func (s *Synchronizer) commit(ctx context.Context, m *Mutation) {
	listKey := ListKey(m.MatchID)

	s.mu.Lock()
	m.state = Committed
	tr := s.tracks[listKey]
	reconcile := !tr.pending()
	if reconcile {
		delete(s.tracks, listKey)
	}
	s.mu.Unlock()

	// a fresh generation keeps reconciliation from joining a read that started before the write
	statusKey := StatusKey(m.MatchID, m.UserID)
	s.store.Cancel(statusKey)
	s.store.Invalidate(statusKey)
	if !reconcile {
		return // a newer mutation owns the list
	}
	s.store.Cancel(listKey)
	s.store.Invalidate(listKey)
	s.reconcile(ctx, m.MatchID, m.UserID)
}

// rollback settles m as failed and rebuilds the list from the base snapshot of its track
// with the mutations that are still live. Without any, the list is exactly the base snapshot.
func (s *Synchronizer) rollback(m *Mutation, err error) {
	listKey := ListKey(m.MatchID)

	s.mu.Lock()
	defer s.mu.Unlock()

	m.state = RolledBack
	m.err = err
	tr := s.tracks[listKey]

	if base, ok := tr.base(); ok {
		live := tr.live()
		if len(live) == 0 {
			s.store.Restore(base)
		} else {
			list := asList(base.Entry.Data).Clone()
			for _, lm := range live {
				list = lm.apply(list)
			}
			s.store.Set(listKey, list)
		}
	}

	if !tr.pending() {
		delete(s.tracks, listKey)
		if tr.committed() {
			// an earlier write went through, the server holds more than the base
			s.store.Invalidate(listKey)
		}
	}

	if s.logger != nil {
		s.logger.Debug("attendance rolled back", err, map[string]interface{}{
			"match":  m.MatchID,
			"user":   m.UserID,
			"status": string(m.Status),
		})
	}
}

// reconcile refetches the stale entries. The write already succeeded, so failures are only logged.
func (s *Synchronizer) reconcile(ctx context.Context, matchID, userID string) {
	if _, err := s.List(ctx, matchID); err != nil && s.logger != nil {
		s.logger.Warn("reconciling attendance list", err, map[string]interface{}{"match": matchID})
	}
	if _, err := s.Status(ctx, matchID, userID); err != nil && s.logger != nil {
		s.logger.Warn("reconciling attendance status", err, map[string]interface{}{"match": matchID, "user": userID})
	}
}

// held returns the cached list of a key with a pending mutation. The server does not hold the
// optimistic value yet, so reading it would undo the mutation on screen.
func (s *Synchronizer) held(listKey string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.tracks[listKey]
	if !ok || !tr.pending() {
		return nil, false
	}
	e, ok := s.store.Get(listKey)
	if !ok {
		return nil, false
	}
	return e.Data, true
}

// List returns the attendance list of the match, from the cache when fresh
// or while a mutation of the list is pending.
func (s *Synchronizer) List(ctx context.Context, matchID string) (attendance.List, error) {
	listKey := ListKey(matchID)
	if data, ok := s.held(listKey); ok {
		return asList(data), nil
	}
	data, err := s.store.Fetch(ctx, listKey, func(ctx context.Context) (interface{}, error) {
		return s.gw.ReadAttendanceList(ctx, matchID)
	})
	if err != nil {
		return nil, err
	}
	return asList(data), nil
}

// Status returns the user's status for the match, from the cache when fresh.
// While a mutation of the user is pending, it is the status last declared.
func (s *Synchronizer) Status(ctx context.Context, matchID, userID string) (attendance.Status, error) {
	s.mu.Lock()
	tr, ok := s.tracks[ListKey(matchID)]
	if ok {
		if st, pending := tr.declared(userID); pending {
			s.mu.Unlock()
			return st, nil
		}
	}
	s.mu.Unlock()

	data, err := s.store.Fetch(ctx, StatusKey(matchID, userID), func(ctx context.Context) (interface{}, error) {
		return s.gw.ReadAttendanceStatus(ctx, matchID, userID)
	})
	if err != nil {
		return "", err
	}
	st, _ := data.(attendance.Status)
	return st, nil
}

// Counts aggregates the attendance list of the match.
func (s *Synchronizer) Counts(ctx context.Context, matchID, homeTeamID, awayTeamID string) (attendance.Counts, error) {
	list, err := s.List(ctx, matchID)
	if err != nil {
		return attendance.Counts{}, err
	}
	return attendance.Count(list, homeTeamID, awayTeamID), nil
}

// Watch calls fn with the counts of the match after every committed change of its list.
// fn must not call the synchronizer.
func (s *Synchronizer) Watch(matchID, homeTeamID, awayTeamID string, fn func(attendance.Counts)) (unsubscribe func()) {
	return s.store.Subscribe(ListKey(matchID), func(e querycache.Entry, ok bool) {
		if !ok {
			fn(attendance.Counts{})
			return
		}
		fn(attendance.Count(asList(e.Data), homeTeamID, awayTeamID))
	})
}
