// Package sqlxrepos implements the repositories over database/sql with sqlx.
// Queries are written with "?" placeholders, rebound for the driver, so they run on postgres and sqlite3.
package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core"
)

// trapNoRowsErr maps sql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// orderBy renders a safe ORDER BY clause, only keeping allowed fields.
func orderBy(ordering []core.DBOrdering, allowed []string, fallback string) string {
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		for _, a := range allowed {
			if a == ord.Field {
				list = append(list, ord.String())
				break
			}
		}
	}
	if len(list) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(list, ", ")
}

type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, args ...interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE (" + strings.Join(w.clauses, ") AND (") + ")"
}

func likeArg(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

func rebind(db *sqlx.DB, q string) string {
	return db.Rebind(q)
}
