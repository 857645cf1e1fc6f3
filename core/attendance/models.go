package attendance

import (
	"time"

	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core"
)

// Status is a player's declared intent for a match.
type Status string

const (
	Attending Status = "attending"
	Absent    Status = "absent"
	Maybe     Status = "maybe"

	// DefaultStatus is shown for a user who has not declared anything yet.
	DefaultStatus = Maybe
)

var (
	Statuses = []Status{Attending, Absent, Maybe}

	ErrInvalidStatus = errors.New("status must be one of: attending, absent, maybe")
)

func (s Status) Valid() bool {
	switch s {
	case Attending, Absent, Maybe:
		return true
	}
	return false
}

// ParseStatus parses a status, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(core.CleanString(s, true /* lower */))
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// Record is one user's attendance for one match. TeamID is empty for guests.
type Record struct {
	UserID    string    `json:"user_id"`
	MatchID   string    `json:"match_id"`
	TeamID    string    `json:"team_id,omitempty"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// List holds the records of a single match, at most one per user.
type List []Record

// Clone returns a deep copy of the list. A nil list stays nil.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	cp := make(List, len(l))
	copy(cp, l)
	return cp
}

// Find returns the record of userID.
func (l List) Find(userID string) (Record, bool) {
	for _, rec := range l {
		if rec.UserID == userID {
			return rec, true
		}
	}
	return Record{}, false
}

// StatusOf returns the status of userID, DefaultStatus if undeclared.
func (l List) StatusOf(userID string) Status {
	if rec, ok := l.Find(userID); ok {
		return rec.Status
	}
	return DefaultStatus
}

// WithStatus returns a copy of the list where userID has status.
// A missing record is appended with the given teamID; an existing one keeps its team.
// The receiver is never modified.
func (l List) WithStatus(matchID, userID, teamID string, status Status) List {
	cp := make(List, 0, len(l)+1)
	var found bool
	for _, rec := range l {
		if rec.UserID == userID {
			rec.Status = status
			found = true
		}
		cp = append(cp, rec)
	}
	if !found {
		cp = append(cp, Record{UserID: userID, MatchID: matchID, TeamID: teamID, Status: status})
	}
	return cp
}

// Equal reports whether both lists hold the same records, ignoring order.
func (l List) Equal(other List) bool {
	if len(l) != len(other) {
		return false
	}
	byUser := make(map[string]Record, len(l))
	for _, rec := range l {
		byUser[rec.UserID] = rec
	}
	for _, rec := range other {
		r, ok := byUser[rec.UserID]
		if !ok || r.MatchID != rec.MatchID || r.TeamID != rec.TeamID || r.Status != rec.Status || !r.UpdatedAt.Equal(rec.UpdatedAt) {
			return false
		}
	}
	return true
}

// Stats summarises a player's declarations over all matches.
type Stats struct {
	UserID    string  `json:"user_id"`
	Declared  int     `json:"declared"`
	Attending int     `json:"attending"`
	Absent    int     `json:"absent"`
	Maybe     int     `json:"maybe"`
	Rate      float64 `json:"rate"` // attending / declared
}
