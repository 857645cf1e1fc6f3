package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/team"
)

type teamRepository struct {
	db *DB
}

var _ team.Repository = (*teamRepository)(nil) // interface compliance check

func NewTeamRepository(db *DB) team.Repository {
	return &teamRepository{db: db}
}

func (repo *teamRepository) CheckNameUniqueness(_ context.Context, name string, excludedTeams ...team.Team) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[string]bool, len(excludedTeams))
	for _, tm := range excludedTeams {
		excluded[tm.ID] = true
	}
	for _, tm := range repo.db.teams {
		if !excluded[tm.ID] && strings.EqualFold(tm.Name, name) {
			return team.ErrNameExists
		}
	}
	return nil
}

func (repo *teamRepository) CreateTeam(_ context.Context, tm team.Team) (team.Team, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tm.ID = uuid.New().String()
	repo.db.teams[tm.ID] = &tm
	return tm, nil
}

func (repo *teamRepository) QueryTeams(_ context.Context, filter *team.QueryFilter, ordering []core.DBOrdering) ([]team.Team, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	teams := make([]team.Team, 0, len(repo.db.teams))
	for _, tm := range repo.db.teams {
		if filter.Match(*tm) {
			teams = append(teams, *tm)
		}
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(teams, orderedLess(ordering, func(i, j int, field string) int {
		a, b := teams[i], teams[j]
		switch field {
		case "name":
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case "short_name":
			return strings.Compare(a.ShortName, b.ShortName)
		case "created_at":
			return a.CreatedAt.Compare(b.CreatedAt)
		case "updated_at":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		}
		return 0
	}))
	return teams, nil
}

func (repo *teamRepository) GetTeam(_ context.Context, id string) (team.Team, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if tm, ok := repo.db.teams[id]; ok {
		return *tm, nil
	}
	return team.Team{}, team.ErrNotFound
}

func (repo *teamRepository) UpdateTeam(_ context.Context, tm team.Team) (team.Team, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.teams[tm.ID]; !ok {
		return team.Team{}, team.ErrNotFound
	}
	repo.db.teams[tm.ID] = &tm
	return tm, nil
}

// DeleteTeam mirrors the SQL foreign keys: members and away fixtures lose the team,
// home fixtures are deleted along with their attendance.
func (repo *teamRepository) DeleteTeam(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.teams[id]; !ok {
		return team.ErrNotFound
	}
	delete(repo.db.teams, id)

	for _, usr := range repo.db.users {
		if usr.TeamID == id {
			usr.TeamID = ""
		}
	}
	for mid, m := range repo.db.matches {
		switch id {
		case m.HomeTeamID:
			repo.db.deleteMatch(mid)
		case m.AwayTeamID:
			m.AwayTeamID = ""
		}
	}
	return nil
}
