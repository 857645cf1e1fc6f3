package team

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fivesaside/touchline/core"
)

type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ShortName string    `json:"short_name"`
	CrestURL  string    `json:"crest_url,omitempty"`
	CaptainID string    `json:"captain_id,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type NewTeam struct {
	Name      string `json:"name" validate:"required,max=100"`
	ShortName string `json:"short_name" validate:"omitempty,max=5,alphanum_"`
	CaptainID string `json:"captain_id"`
}

func (nt *NewTeam) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.ShortName = core.CleanString(nt.ShortName)
	nt.CaptainID = core.CleanString(nt.CaptainID)
	if err := validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nt.Name)
}

type UpdateTeam struct {
	Name      string  `json:"name" validate:"omitempty,max=100"`
	ShortName string  `json:"short_name" validate:"omitempty,max=5,alphanum_"`
	CaptainID *string `json:"captain_id"`
}

func (ut *UpdateTeam) Validate(ctx context.Context, orig Team, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(ut.Name); name != "" {
		ut.Name = name
	} else {
		ut.Name = orig.Name
	}
	if short := core.CleanString(ut.ShortName); short != "" {
		ut.ShortName = short
	} else {
		ut.ShortName = orig.ShortName
	}
	if err := validate.Struct(ut); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, ut.Name, orig)
}

type QueryFilter struct {
	Search string `query:"search"`
}

func (qf *QueryFilter) Match(tm Team) bool {
	if qf == nil || qf.Search == "" {
		return true
	}
	search := strings.ToLower(qf.Search)
	return strings.Contains(strings.ToLower(tm.Name), search) || strings.Contains(strings.ToLower(tm.ShortName), search)
}
