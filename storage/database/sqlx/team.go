package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/team"
)

const teamColumns = "id, name, short_name, crest_url, captain_id, created_at, updated_at"

type teamRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	ShortName string      `db:"short_name"`
	CrestURL  string      `db:"crest_url"`
	CaptainID null.String `db:"captain_id"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

type teamRepository struct {
	db *sqlx.DB
}

var _ team.Repository = (*teamRepository)(nil) // interface compliance check

func NewTeamRepository(db *sqlx.DB) team.Repository {
	return &teamRepository{db: db}
}

func (repo *teamRepository) row(tm team.Team) teamRow {
	return teamRow{
		ID:        tm.ID,
		Name:      tm.Name,
		ShortName: tm.ShortName,
		CrestURL:  tm.CrestURL,
		CaptainID: null.NewString(tm.CaptainID, tm.CaptainID != ""),
		CreatedAt: tm.CreatedAt.UTC(),
		UpdatedAt: tm.UpdatedAt.UTC(),
	}
}

func (repo *teamRepository) team(r teamRow) team.Team {
	return team.Team{
		ID:        r.ID,
		Name:      r.Name,
		ShortName: r.ShortName,
		CrestURL:  r.CrestURL,
		CaptainID: r.CaptainID.String,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (repo *teamRepository) CheckNameUniqueness(ctx context.Context, name string, excludedTeams ...team.Team) error {
	var w where
	w.add("LOWER(name) = ?", core.CleanString(name, true /* lower */))
	if len(excludedTeams) > 0 {
		ids := make([]string, 0, len(excludedTeams))
		for _, t := range excludedTeams {
			ids = append(ids, t.ID)
		}
		clause, args, err := sqlx.In("id NOT IN (?)", ids)
		if err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
		w.add(clause, args...)
	}

	var count int
	q := rebind(repo.db, "SELECT COUNT(*) FROM teams"+w.String())
	if err := repo.db.GetContext(ctx, &count, q, w.args...); err != nil {
		return errors.Wrap(err, "checking team uniqueness")
	}
	if count > 0 {
		return team.ErrNameExists
	}
	return nil
}

func (repo *teamRepository) CreateTeam(ctx context.Context, tm team.Team) (team.Team, error) {
	tm.ID = uuid.New().String()
	q := "INSERT INTO teams (" + teamColumns + ") VALUES " +
		"(:id, :name, :short_name, :crest_url, :captain_id, :created_at, :updated_at)"
	if _, err := repo.db.NamedExecContext(ctx, q, repo.row(tm)); err != nil {
		return team.Team{}, errors.Wrap(err, "inserting team")
	}
	return repo.GetTeam(ctx, tm.ID)
}

func (repo *teamRepository) QueryTeams(ctx context.Context, filter *team.QueryFilter, ordering []core.DBOrdering) ([]team.Team, error) {
	var w where
	if filter != nil && filter.Search != "" {
		val := likeArg(filter.Search)
		w.add("LOWER(name) LIKE ? OR LOWER(short_name) LIKE ?", val, val)
	}

	q := "SELECT " + teamColumns + " FROM teams" + w.String() + orderBy(ordering, team.OrderingFields, "name ASC")
	var rows []teamRow
	if err := repo.db.SelectContext(ctx, &rows, rebind(repo.db, q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying teams")
	}
	teams := make([]team.Team, 0, len(rows))
	for _, r := range rows {
		teams = append(teams, repo.team(r))
	}
	return teams, nil
}

func (repo *teamRepository) GetTeam(ctx context.Context, id string) (team.Team, error) {
	if _, err := uuid.Parse(id); err != nil {
		return team.Team{}, team.ErrNotFound
	}
	var r teamRow
	q := rebind(repo.db, "SELECT "+teamColumns+" FROM teams WHERE id = ?")
	if err := repo.db.GetContext(ctx, &r, q, id); err != nil {
		return team.Team{}, trapNoRowsErr(err, team.ErrNotFound, "finding team")
	}
	return repo.team(r), nil
}

func (repo *teamRepository) UpdateTeam(ctx context.Context, tm team.Team) (team.Team, error) {
	q := "UPDATE teams SET name = :name, short_name = :short_name, crest_url = :crest_url, " +
		"captain_id = :captain_id, updated_at = :updated_at WHERE id = :id"
	res, err := repo.db.NamedExecContext(ctx, q, repo.row(tm))
	if err != nil {
		return team.Team{}, errors.Wrap(err, "updating team")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return team.Team{}, team.ErrNotFound
	}
	return repo.GetTeam(ctx, tm.ID)
}

func (repo *teamRepository) DeleteTeam(ctx context.Context, id string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// members become free agents
	if _, err = tx.ExecContext(ctx, rebind(repo.db, "UPDATE users SET team_id = NULL WHERE team_id = ?"), id); err != nil {
		return errors.Wrap(err, "releasing team members")
	}
	res, err := tx.ExecContext(ctx, rebind(repo.db, "DELETE FROM teams WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting team")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return team.ErrNotFound
	}
	return errors.Wrap(tx.Commit(), "committing team deletion")
}
