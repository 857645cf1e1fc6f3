// Package testutil holds the database fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/core/match"
	"github.com/fivesaside/touchline/core/team"
	"github.com/fivesaside/touchline/core/user"
	"github.com/fivesaside/touchline/storage/database"
	inmemdb "github.com/fivesaside/touchline/storage/database/inmem"
	sqlxrepos "github.com/fivesaside/touchline/storage/database/sqlx"
)

// Repos groups the repositories of one storage backend.
type Repos struct {
	User       user.Repository
	Team       team.Repository
	Match      match.Repository
	Attendance attendance.Repository
}

// PrepareDB opens a private in-memory SQLite database with every migration applied.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := *core.Conf
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Name = fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.New().String(), "-", ""))

	db, err := database.Open(&conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func SQLRepos(t *testing.T) Repos {
	db := PrepareDB(t)
	return Repos{
		User:       sqlxrepos.NewUserRepository(db),
		Team:       sqlxrepos.NewTeamRepository(db),
		Match:      sqlxrepos.NewMatchRepository(db),
		Attendance: sqlxrepos.NewAttendanceRepository(db),
	}
}

func MemRepos(*testing.T) Repos {
	db := inmemdb.Open()
	return Repos{
		User:       inmemdb.NewUserRepository(db),
		Team:       inmemdb.NewTeamRepository(db),
		Match:      inmemdb.NewMatchRepository(db),
		Attendance: inmemdb.NewAttendanceRepository(db),
	}
}

// Backends returns a constructor of fresh repositories per storage backend, keyed by backend name.
func Backends() map[string]func(t *testing.T) Repos {
	return map[string]func(t *testing.T) Repos{
		"sqlite": SQLRepos,
		"inmem":  MemRepos,
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	teamID string,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC().Truncate(time.Microsecond)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		TeamID:    teamID,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateTeam(t *testing.T, repo team.Repository, name, shortName string) team.Team {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	tm, err := repo.CreateTeam(context.Background(), team.Team{
		Name:      name,
		ShortName: shortName,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateTeam() failed: %v", err)
	}
	return tm
}

func CreateMatch(t *testing.T, repo match.Repository, homeID, awayID string, kickoff time.Time) match.Match {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	m, err := repo.CreateMatch(context.Background(), match.Match{
		HomeTeamID: homeID,
		AwayTeamID: awayID,
		Venue:      "Riverside Park",
		KickoffAt:  kickoff.UTC().Truncate(time.Microsecond),
		ShareToken: strings.ReplaceAll(uuid.New().String(), "-", ""),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateMatch() failed: %v", err)
	}
	return m
}
