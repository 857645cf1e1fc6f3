package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/match"
)

type matchRepository struct {
	db *DB
}

var _ match.Repository = (*matchRepository)(nil) // interface compliance check

func NewMatchRepository(db *DB) match.Repository {
	return &matchRepository{db: db}
}

func (repo *matchRepository) CreateMatch(_ context.Context, m match.Match) (match.Match, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m.ID = uuid.New().String()
	repo.db.matches[m.ID] = &m
	return m, nil
}

func (repo *matchRepository) QueryMatches(_ context.Context, filter *match.QueryFilter, ordering []core.DBOrdering) ([]match.Match, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	matches := make([]match.Match, 0, len(repo.db.matches))
	for _, m := range repo.db.matches {
		if filter.Match(*m) {
			matches = append(matches, *m)
		}
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "kickoff_at", Ascending: true}}
	}
	sort.SliceStable(matches, orderedLess(ordering, func(i, j int, field string) int {
		a, b := matches[i], matches[j]
		switch field {
		case "kickoff_at":
			return a.KickoffAt.Compare(b.KickoffAt)
		case "venue":
			return strings.Compare(strings.ToLower(a.Venue), strings.ToLower(b.Venue))
		case "created_at":
			return a.CreatedAt.Compare(b.CreatedAt)
		case "updated_at":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		}
		return 0
	}))
	return matches, nil
}

func (repo *matchRepository) GetMatch(_ context.Context, id string) (match.Match, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.matches[id]; ok {
		return *m, nil
	}
	return match.Match{}, match.ErrNotFound
}

func (repo *matchRepository) GetMatchByShareToken(_ context.Context, token string) (match.Match, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, m := range repo.db.matches {
		if token != "" && m.ShareToken == token {
			return *m, nil
		}
	}
	return match.Match{}, match.ErrNotFound
}

func (repo *matchRepository) UpdateMatch(_ context.Context, m match.Match) (match.Match, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.matches[m.ID]; !ok {
		return match.Match{}, match.ErrNotFound
	}
	repo.db.matches[m.ID] = &m
	return m, nil
}

func (repo *matchRepository) DeleteMatch(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.matches[id]; !ok {
		return match.ErrNotFound
	}
	repo.db.deleteMatch(id)
	return nil
}

// deleteMatch removes the match and its attendance. Callers hold the write lock.
func (db *DB) deleteMatch(id string) {
	delete(db.matches, id)
	for key := range db.attendance {
		if key.matchID == id {
			delete(db.attendance, key)
		}
	}
}
