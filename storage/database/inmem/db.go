// Package inmemdb implements the repositories in memory. Used by tests and local development.
package inmemdb

import (
	"sync"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/core/match"
	"github.com/fivesaside/touchline/core/team"
	"github.com/fivesaside/touchline/core/user"
)

// DB holds every table behind a single lock, so cross-table operations (cascades) stay atomic.
type DB struct {
	mutex      sync.RWMutex
	users      map[string]*user.User
	teams      map[string]*team.Team
	matches    map[string]*match.Match
	attendance map[attendanceKey]*attendance.Record
}

type attendanceKey struct {
	matchID, userID string
}

func Open() *DB {
	return &DB{
		users:      make(map[string]*user.User),
		teams:      make(map[string]*team.Team),
		matches:    make(map[string]*match.Match),
		attendance: make(map[attendanceKey]*attendance.Record),
	}
}

// orderedLess builds a sort.Slice less func from orderings.
// cmp compares items i and j on field, returning 0 for equal or unknown fields.
func orderedLess(ordering []core.DBOrdering, cmp func(i, j int, field string) int) func(i, j int) bool {
	return func(i, j int) bool {
		for _, ord := range ordering {
			c := cmp(i, j, ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	}
}
