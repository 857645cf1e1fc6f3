package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/match"
)

const matchColumns = "id, home_team_id, away_team_id, venue, kickoff_at, notes, share_token, created_by, created_at, updated_at"

type matchRow struct {
	ID         string      `db:"id"`
	HomeTeamID string      `db:"home_team_id"`
	AwayTeamID null.String `db:"away_team_id"`
	Venue      string      `db:"venue"`
	KickoffAt  time.Time   `db:"kickoff_at"`
	Notes      string      `db:"notes"`
	ShareToken string      `db:"share_token"`
	CreatedBy  string      `db:"created_by"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

type matchRepository struct {
	db *sqlx.DB
}

var _ match.Repository = (*matchRepository)(nil) // interface compliance check

func NewMatchRepository(db *sqlx.DB) match.Repository {
	return &matchRepository{db: db}
}

func (repo *matchRepository) row(m match.Match) matchRow {
	return matchRow{
		ID:         m.ID,
		HomeTeamID: m.HomeTeamID,
		AwayTeamID: null.NewString(m.AwayTeamID, m.AwayTeamID != ""),
		Venue:      m.Venue,
		KickoffAt:  m.KickoffAt.UTC(),
		Notes:      m.Notes,
		ShareToken: m.ShareToken,
		CreatedBy:  m.CreatedBy,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

func (repo *matchRepository) match(r matchRow) match.Match {
	return match.Match{
		ID:         r.ID,
		HomeTeamID: r.HomeTeamID,
		AwayTeamID: r.AwayTeamID.String,
		Venue:      r.Venue,
		KickoffAt:  r.KickoffAt.UTC(),
		Notes:      r.Notes,
		ShareToken: r.ShareToken,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (repo *matchRepository) CreateMatch(ctx context.Context, m match.Match) (match.Match, error) {
	m.ID = uuid.New().String()
	q := "INSERT INTO matches (" + matchColumns + ") VALUES " +
		"(:id, :home_team_id, :away_team_id, :venue, :kickoff_at, :notes, :share_token, :created_by, :created_at, :updated_at)"
	if _, err := repo.db.NamedExecContext(ctx, q, repo.row(m)); err != nil {
		return match.Match{}, errors.Wrap(err, "inserting match")
	}
	return repo.GetMatch(ctx, m.ID)
}

func (repo *matchRepository) QueryMatches(ctx context.Context, filter *match.QueryFilter, ordering []core.DBOrdering) ([]match.Match, error) {
	var w where
	if filter != nil {
		if filter.TeamID != "" {
			w.add("home_team_id = ? OR away_team_id = ?", filter.TeamID, filter.TeamID)
		}
		if !filter.From.IsZero() {
			w.add("kickoff_at >= ?", filter.From.UTC())
		}
		if !filter.To.IsZero() {
			w.add("kickoff_at <= ?", filter.To.UTC())
		}
	}

	q := "SELECT " + matchColumns + " FROM matches" + w.String() + orderBy(ordering, match.OrderingFields, "kickoff_at ASC")
	var rows []matchRow
	if err := repo.db.SelectContext(ctx, &rows, rebind(repo.db, q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying matches")
	}
	matches := make([]match.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, repo.match(r))
	}
	return matches, nil
}

func (repo *matchRepository) get(ctx context.Context, column, value string) (match.Match, error) {
	var r matchRow
	q := rebind(repo.db, "SELECT "+matchColumns+" FROM matches WHERE "+column+" = ?")
	if err := repo.db.GetContext(ctx, &r, q, value); err != nil {
		return match.Match{}, trapNoRowsErr(err, match.ErrNotFound, "finding match")
	}
	return repo.match(r), nil
}

func (repo *matchRepository) GetMatch(ctx context.Context, id string) (match.Match, error) {
	if _, err := uuid.Parse(id); err != nil {
		return match.Match{}, match.ErrNotFound
	}
	return repo.get(ctx, "id", id)
}

func (repo *matchRepository) GetMatchByShareToken(ctx context.Context, token string) (match.Match, error) {
	if token == "" {
		return match.Match{}, match.ErrNotFound
	}
	return repo.get(ctx, "share_token", token)
}

func (repo *matchRepository) UpdateMatch(ctx context.Context, m match.Match) (match.Match, error) {
	q := "UPDATE matches SET home_team_id = :home_team_id, away_team_id = :away_team_id, venue = :venue, " +
		"kickoff_at = :kickoff_at, notes = :notes, updated_at = :updated_at WHERE id = :id"
	res, err := repo.db.NamedExecContext(ctx, q, repo.row(m))
	if err != nil {
		return match.Match{}, errors.Wrap(err, "updating match")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return match.Match{}, match.ErrNotFound
	}
	return repo.GetMatch(ctx, m.ID)
}

// DeleteMatch relies on ON DELETE CASCADE for the attendance records.
func (repo *matchRepository) DeleteMatch(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, rebind(repo.db, "DELETE FROM matches WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting match")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return match.ErrNotFound
	}
	return nil
}
