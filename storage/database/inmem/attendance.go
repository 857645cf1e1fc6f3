package inmemdb

import (
	"context"
	"sort"

	"github.com/fivesaside/touchline/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) GetRecord(_ context.Context, matchID, userID string) (attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.attendance[attendanceKey{matchID: matchID, userID: userID}]; ok {
		return *rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) list(keep func(attendanceKey) bool) attendance.List {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	list := make(attendance.List, 0)
	for key, rec := range repo.db.attendance {
		if keep(key) {
			list = append(list, *rec)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.Before(list[j].UpdatedAt)
		}
		return list[i].UserID < list[j].UserID
	})
	return list
}

func (repo *attendanceRepository) ListRecords(_ context.Context, matchID string) (attendance.List, error) {
	return repo.list(func(key attendanceKey) bool { return key.matchID == matchID }), nil
}

func (repo *attendanceRepository) ListUserRecords(_ context.Context, userID string) (attendance.List, error) {
	return repo.list(func(key attendanceKey) bool { return key.userID == userID }), nil
}

func (repo *attendanceRepository) UpsertRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.matches[rec.MatchID]; !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	if _, ok := repo.db.users[rec.UserID]; !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	repo.db.attendance[attendanceKey{matchID: rec.MatchID, userID: rec.UserID}] = &rec
	return rec, nil
}
