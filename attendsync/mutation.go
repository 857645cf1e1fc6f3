package attendsync

import (
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/querycache"
)

// State of a Mutation: Idle → Pending → Committed | RolledBack.
type State int

const (
	Idle State = iota
	Pending
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Mutation is one optimistic attendance change.
type Mutation struct {
	MatchID string
	UserID  string
	Status  attendance.Status

	state    State
	snapshot querycache.Snapshot // list before this mutation was applied
	applied  bool                // false when no list was cached
	err      error
}

func (m *Mutation) State() State { return m.state }

// Err is the gateway error of a rolled back mutation.
func (m *Mutation) Err() error { return m.err }

func (m *Mutation) settled() bool {
	return m.state == Committed || m.state == RolledBack
}

func (m *Mutation) apply(list attendance.List) attendance.List {
	return list.WithStatus(m.MatchID, m.UserID, "", m.Status)
}

// track holds the mutations of one list key, in invocation order, until all of them settle.
type track struct {
	muts []*Mutation
}

// base is the list as it was before the first applied mutation of the track.
func (tr *track) base() (querycache.Snapshot, bool) {
	for _, m := range tr.muts {
		if m.applied {
			return m.snapshot, true
		}
	}
	return querycache.Snapshot{}, false
}

func (tr *track) pending() bool {
	for _, m := range tr.muts {
		if m.state == Pending {
			return true
		}
	}
	return false
}

// declared returns the status userID last declared while one of their mutations is pending.
func (tr *track) declared(userID string) (attendance.Status, bool) {
	var (
		st      attendance.Status
		pending bool
	)
	for _, m := range tr.muts {
		if m.UserID != userID || m.state == RolledBack {
			continue
		}
		st = m.Status
		pending = pending || m.state == Pending
	}
	return st, pending
}

func (tr *track) committed() bool {
	for _, m := range tr.muts {
		if m.state == Committed {
			return true
		}
	}
	return false
}

// live returns the mutations that still contribute to the displayed list.
func (tr *track) live() []*Mutation {
	var muts []*Mutation
	for _, m := range tr.muts {
		if m.state != RolledBack && m.applied {
			muts = append(muts, m)
		}
	}
	return muts
}
