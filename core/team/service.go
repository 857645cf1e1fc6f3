package team

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/user"
)

var (
	// errors
	ErrNotFound      = errors.New("team not found")
	ErrNameExists    = errors.New("a team with this name already exists")
	ErrInvalidCrest  = errors.New("crest must be a PNG, JPEG, SVG or WEBP image")
	allowedCrestType = map[string]string{
		"image/png":     ".png",
		"image/jpeg":    ".jpg",
		"image/svg+xml": ".svg",
		"image/webp":    ".webp",
	}
)

// OrderingFields lists the fields teams may be ordered by.
var OrderingFields = []string{"name", "short_name", "created_at", "updated_at"}

type (
	Repository interface {
		CheckNameUniqueness(ctx context.Context, name string, excludedTeams ...Team) error
		CreateTeam(ctx context.Context, tm Team) (Team, error)
		QueryTeams(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Team, error)
		GetTeam(ctx context.Context, id string) (Team, error)
		UpdateTeam(ctx context.Context, tm Team) (Team, error)
		DeleteTeam(ctx context.Context, id string) error
	}

	// Uploader stores team crests and returns their public URL.
	Uploader interface {
		Upload(ctx context.Context, name string, r io.Reader, contentType string) (string, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, name string, exclTeams ...Team) error
		Create(ctx context.Context, nt NewTeam) (Team, error)
		Get(ctx context.Context, id string) (Team, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Team, error)
		Update(ctx context.Context, tm Team, ut UpdateTeam) (Team, error)
		SetCrest(ctx context.Context, tm Team, r io.Reader, filename, contentType string) (Team, error)
		Delete(ctx context.Context, id string) error
		Members(ctx context.Context, id string) ([]user.User, error)
	}

	service struct {
		repo     Repository
		usrSvc   user.Service
		uploader Uploader
	}
)

func NewService(repo Repository, usrSvc user.Service, uploader Uploader) Service {
	return &service{repo: repo, usrSvc: usrSvc, uploader: uploader}
}

func (svc *service) CheckUniqueness(ctx context.Context, name string, exclTeams ...Team) error {
	if err := svc.repo.CheckNameUniqueness(ctx, name, exclTeams...); err != nil {
		if errors.Cause(err) == ErrNameExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nt NewTeam) (Team, error) {
	now := time.Now().UTC()
	tm := Team{
		Name:      nt.Name,
		ShortName: strings.ToUpper(nt.ShortName),
		CaptainID: nt.CaptainID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateTeam(ctx, tm)
}

func (svc *service) Get(ctx context.Context, id string) (Team, error) {
	return svc.repo.GetTeam(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Team, error) {
	if filter != nil {
		filter.Search = core.CleanString(filter.Search)
		if filter.Search == "" {
			filter = nil
		}
	}
	return svc.repo.QueryTeams(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, tm Team, ut UpdateTeam) (Team, error) {
	tm.Name = ut.Name
	tm.ShortName = strings.ToUpper(ut.ShortName)
	if ut.CaptainID != nil {
		tm.CaptainID = core.CleanString(*ut.CaptainID)
	}
	tm.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTeam(ctx, tm)
}

func (svc *service) SetCrest(ctx context.Context, tm Team, r io.Reader, filename, contentType string) (Team, error) {
	ext, ok := allowedCrestType[contentType]
	if !ok {
		return Team{}, core.NewValidationError(ErrInvalidCrest, core.FieldError{Field: "crest", Error: ErrInvalidCrest.Error()})
	}
	if e := strings.ToLower(path.Ext(filename)); e != "" {
		ext = e
	}

	name := path.Join("teams", tm.ID, "crest-"+time.Now().UTC().Format("20060102150405")+ext)
	url, err := svc.uploader.Upload(ctx, name, r, contentType)
	if err != nil {
		return Team{}, errors.Wrap(err, "uploading crest")
	}
	tm.CrestURL = url
	tm.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTeam(ctx, tm)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteTeam(ctx, id)
}

func (svc *service) Members(ctx context.Context, id string) ([]user.User, error) {
	if _, err := svc.repo.GetTeam(ctx, id); err != nil {
		return nil, err
	}
	active := true
	return svc.usrSvc.Query(ctx, &user.QueryFilter{TeamID: id, IsActive: &active}, []core.DBOrdering{{Field: "name", Ascending: true}})
}
