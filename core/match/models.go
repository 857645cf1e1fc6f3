package match

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fivesaside/touchline/core"
)

type Match struct {
	ID         string    `json:"id"`
	HomeTeamID string    `json:"home_team_id"`
	AwayTeamID string    `json:"away_team_id,omitempty"` // empty until the opponent is decided
	Venue      string    `json:"venue"`
	KickoffAt  time.Time `json:"kickoff_at"` // UTC
	Notes      string    `json:"notes,omitempty"`
	ShareToken string    `json:"share_token"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// TeamIDs returns the non-empty team ids playing the match.
func (m Match) TeamIDs() []string {
	ids := []string{m.HomeTeamID}
	if m.AwayTeamID != "" {
		ids = append(ids, m.AwayTeamID)
	}
	return ids
}

// Plays reports whether teamID is one of the match sides.
func (m Match) Plays(teamID string) bool {
	return teamID != "" && (teamID == m.HomeTeamID || teamID == m.AwayTeamID)
}

type NewMatch struct {
	HomeTeamID string    `json:"home_team_id" validate:"required"`
	AwayTeamID string    `json:"away_team_id" validate:"omitempty,nefield=HomeTeamID"`
	Venue      string    `json:"venue" validate:"max=200"`
	KickoffAt  time.Time `json:"kickoff_at" validate:"required"`
	Notes      string    `json:"notes" validate:"max=2000"`
}

func (nm *NewMatch) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nm.HomeTeamID = core.CleanString(nm.HomeTeamID)
	nm.AwayTeamID = core.CleanString(nm.AwayTeamID)
	nm.Venue = core.CleanString(nm.Venue)
	nm.Notes = core.CleanString(nm.Notes)
	if err := validate.Struct(nm); err != nil {
		return err
	}
	return svc.CheckTeams(ctx, nm.HomeTeamID, nm.AwayTeamID)
}

type UpdateMatch struct {
	HomeTeamID string     `json:"home_team_id"`
	AwayTeamID *string    `json:"away_team_id"`
	Venue      *string    `json:"venue" validate:"omitempty,max=200"`
	KickoffAt  *time.Time `json:"kickoff_at"`
	Notes      *string    `json:"notes" validate:"omitempty,max=2000"`
}

func (um *UpdateMatch) Validate(ctx context.Context, orig Match, validate *validator.Validate, svc Service) error {
	if home := core.CleanString(um.HomeTeamID); home != "" {
		um.HomeTeamID = home
	} else {
		um.HomeTeamID = orig.HomeTeamID
	}
	away := orig.AwayTeamID
	if um.AwayTeamID != nil {
		away = core.CleanString(*um.AwayTeamID)
		um.AwayTeamID = &away
	}
	if err := validate.Struct(um); err != nil {
		return err
	}
	if away != "" && away == um.HomeTeamID {
		return core.NewValidationError(ErrSameTeams, core.FieldError{Field: "away_team_id", Error: ErrSameTeams.Error()})
	}
	return svc.CheckTeams(ctx, um.HomeTeamID, away)
}

type QueryFilter struct {
	TeamID string    `query:"team"`
	From   time.Time `query:"from"`
	To     time.Time `query:"to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.TeamID == "" && qf.From.IsZero() && qf.To.IsZero()
}

// Match reports whether the match passes the filter. Used by stores that filter in Go.
func (qf *QueryFilter) Match(m Match) bool {
	if qf == nil {
		return true
	}
	if qf.TeamID != "" && !m.Plays(qf.TeamID) {
		return false
	}
	if !qf.From.IsZero() && m.KickoffAt.Before(qf.From.UTC()) {
		return false
	}
	if !qf.To.IsZero() && m.KickoffAt.After(qf.To.UTC()) {
		return false
	}
	return true
}
