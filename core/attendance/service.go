package attendance

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/match"
	"github.com/fivesaside/touchline/core/team"
	"github.com/fivesaside/touchline/core/user"
)

var ErrNotFound = errors.New("attendance record not found")

type (
	Repository interface {
		GetRecord(ctx context.Context, matchID, userID string) (Record, error)
		ListRecords(ctx context.Context, matchID string) (List, error)
		ListUserRecords(ctx context.Context, userID string) (List, error)
		// UpsertRecord creates or replaces the record of (MatchID, UserID).
		UpsertRecord(ctx context.Context, rec Record) (Record, error)
	}

	Service interface {
		Status(ctx context.Context, matchID, userID string) (Status, error)
		List(ctx context.Context, matchID string) (List, error)
		Set(ctx context.Context, matchID, userID string, status Status) (Record, error)
		Summary(ctx context.Context, matchID string) (Counts, error)
		ExportXLSX(ctx context.Context, matchID string, w io.Writer) error
		PlayerRate(ctx context.Context, userID string) (Stats, error)
	}

	service struct {
		repo     Repository
		matchSvc match.Service
		teamSvc  team.Service
		usrSvc   user.Service
	}
)

func NewService(repo Repository, matchSvc match.Service, teamSvc team.Service, usrSvc user.Service) Service {
	return &service{repo: repo, matchSvc: matchSvc, teamSvc: teamSvc, usrSvc: usrSvc}
}

func (svc *service) Status(ctx context.Context, matchID, userID string) (Status, error) {
	if _, err := svc.matchSvc.Get(ctx, matchID); err != nil {
		return "", err
	}
	rec, err := svc.repo.GetRecord(ctx, matchID, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return DefaultStatus, nil
		}
		return "", err
	}
	return rec.Status, nil
}

func (svc *service) List(ctx context.Context, matchID string) (List, error) {
	if _, err := svc.matchSvc.Get(ctx, matchID); err != nil {
		return nil, err
	}
	return svc.repo.ListRecords(ctx, matchID)
}

// Set declares the user's status for the match.
// The record is bound to the user's team when that team plays the match, else it is a guest record.
func (svc *service) Set(ctx context.Context, matchID, userID string, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, core.NewValidationError(ErrInvalidStatus, core.FieldError{Field: "status", Error: ErrInvalidStatus.Error()})
	}
	m, err := svc.matchSvc.Get(ctx, matchID)
	if err != nil {
		return Record{}, err
	}
	usr, err := svc.usrSvc.GetByID(ctx, userID)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		UserID:    usr.ID,
		MatchID:   m.ID,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	}
	if m.Plays(usr.TeamID) {
		rec.TeamID = usr.TeamID
	}
	return svc.repo.UpsertRecord(ctx, rec)
}

func (svc *service) Summary(ctx context.Context, matchID string) (Counts, error) {
	m, err := svc.matchSvc.Get(ctx, matchID)
	if err != nil {
		return Counts{}, err
	}
	list, err := svc.repo.ListRecords(ctx, matchID)
	if err != nil {
		return Counts{}, err
	}
	return Count(list, m.HomeTeamID, m.AwayTeamID), nil
}

func (svc *service) PlayerRate(ctx context.Context, userID string) (Stats, error) {
	if _, err := svc.usrSvc.GetByID(ctx, userID); err != nil {
		return Stats{}, err
	}
	list, err := svc.repo.ListUserRecords(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{UserID: userID, Declared: len(list)}
	for _, rec := range list {
		switch rec.Status {
		case Attending:
			stats.Attending++
		case Absent:
			stats.Absent++
		case Maybe:
			stats.Maybe++
		}
	}
	if stats.Declared > 0 {
		stats.Rate = float64(stats.Attending) / float64(stats.Declared)
	}
	return stats, nil
}

// ExportXLSX writes the attendance sheet of the match: one row per record, then the counts.
func (svc *service) ExportXLSX(ctx context.Context, matchID string, w io.Writer) error {
	m, err := svc.matchSvc.Get(ctx, matchID)
	if err != nil {
		return err
	}
	list, err := svc.repo.ListRecords(ctx, matchID)
	if err != nil {
		return err
	}

	teamNames := make(map[string]string, 2)
	for _, id := range m.TeamIDs() {
		tm, err := svc.teamSvc.Get(ctx, id)
		if err != nil {
			return errors.Wrap(err, "loading team")
		}
		teamNames[id] = tm.Name
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "Attendance"
	if err = f.SetSheetName("Sheet1", sheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating style")
	}

	row := 1
	setRow := func(values ...interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err = setRow("Player", "Username", "Team", "Side", "Status", "Updated (UTC)"); err != nil {
		return errors.Wrap(err, "writing header")
	}
	if err = f.SetCellStyle(sheet, "A1", "F1", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}

	for _, rec := range list {
		name, uname := rec.UserID, ""
		if usr, err := svc.usrSvc.GetByID(ctx, rec.UserID); err == nil {
			name, uname = usr.Name, usr.Username
		} else if errors.Cause(err) != user.ErrNotFound {
			return err
		}

		teamName, side := "Guest", "away"
		if rec.TeamID != "" {
			teamName = teamNames[rec.TeamID]
			if rec.TeamID == m.HomeTeamID {
				side = "home"
			} else if rec.TeamID != m.AwayTeamID {
				side = ""
			}
		}

		var updated string
		if !rec.UpdatedAt.IsZero() {
			updated = rec.UpdatedAt.UTC().Format("2006-01-02 15:04")
		}
		if err = setRow(name, uname, teamName, side, string(rec.Status), updated); err != nil {
			return errors.Wrap(err, "writing record")
		}
	}

	counts := Count(list, m.HomeTeamID, m.AwayTeamID)
	row++ // blank line
	totalsRow := row
	if err = setRow("", "", "", "Attending", "Absent", "Maybe"); err != nil {
		return errors.Wrap(err, "writing totals")
	}
	for _, line := range []struct {
		label string
		tally Tally
	}{
		{"Total", counts.Total},
		{"Home", counts.Home},
		{"Away", counts.Away},
	} {
		if err = setRow(line.label, "", "", line.tally.Attending, line.tally.Absent, line.tally.Maybe); err != nil {
			return errors.Wrap(err, "writing totals")
		}
	}
	if err = f.SetCellStyle(sheet, fmt.Sprintf("A%d", totalsRow), fmt.Sprintf("F%d", totalsRow), bold); err != nil {
		return errors.Wrap(err, "styling totals")
	}

	if err = f.Write(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}
