package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fivesaside/touchline/core/attendance"
)

const attendanceColumns = "user_id, match_id, team_id, status, updated_at"

type attendanceRow struct {
	UserID    string      `db:"user_id"`
	MatchID   string      `db:"match_id"`
	TeamID    null.String `db:"team_id"`
	Status    string      `db:"status"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r attendanceRow) record() attendance.Record {
	return attendance.Record{
		UserID:    r.UserID,
		MatchID:   r.MatchID,
		TeamID:    r.TeamID.String,
		Status:    attendance.Status(r.Status),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, matchID, userID string) (attendance.Record, error) {
	var r attendanceRow
	q := rebind(repo.db, "SELECT "+attendanceColumns+" FROM attendance WHERE match_id = ? AND user_id = ?")
	if err := repo.db.GetContext(ctx, &r, q, matchID, userID); err != nil {
		return attendance.Record{}, trapNoRowsErr(err, attendance.ErrNotFound, "finding attendance record")
	}
	return r.record(), nil
}

func (repo *attendanceRepository) list(ctx context.Context, column, value string) (attendance.List, error) {
	var rows []attendanceRow
	q := rebind(repo.db, "SELECT "+attendanceColumns+" FROM attendance WHERE "+column+" = ? ORDER BY updated_at ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, value); err != nil {
		return nil, errors.Wrap(err, "listing attendance")
	}
	list := make(attendance.List, 0, len(rows))
	for _, r := range rows {
		list = append(list, r.record())
	}
	return list, nil
}

func (repo *attendanceRepository) ListRecords(ctx context.Context, matchID string) (attendance.List, error) {
	return repo.list(ctx, "match_id", matchID)
}

func (repo *attendanceRepository) ListUserRecords(ctx context.Context, userID string) (attendance.List, error) {
	return repo.list(ctx, "user_id", userID)
}

func (repo *attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	row := attendanceRow{
		UserID:    rec.UserID,
		MatchID:   rec.MatchID,
		TeamID:    null.NewString(rec.TeamID, rec.TeamID != ""),
		Status:    string(rec.Status),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
	q := "INSERT INTO attendance (" + attendanceColumns + ") VALUES (:user_id, :match_id, :team_id, :status, :updated_at) " +
		"ON CONFLICT (user_id, match_id) DO UPDATE SET " +
		"team_id = excluded.team_id, status = excluded.status, updated_at = excluded.updated_at"
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	return repo.GetRecord(ctx, rec.MatchID, rec.UserID)
}
