package match

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/team"
)

var (
	// errors
	ErrNotFound  = errors.New("match not found")
	ErrSameTeams = errors.New("away team must differ from home team")
)

// OrderingFields lists the fields matches may be ordered by.
var OrderingFields = []string{"kickoff_at", "venue", "created_at", "updated_at"}

type (
	Repository interface {
		CreateMatch(ctx context.Context, m Match) (Match, error)
		QueryMatches(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Match, error)
		GetMatch(ctx context.Context, id string) (Match, error)
		GetMatchByShareToken(ctx context.Context, token string) (Match, error)
		UpdateMatch(ctx context.Context, m Match) (Match, error)
		// DeleteMatch deletes the match and its attendance records.
		DeleteMatch(ctx context.Context, id string) error
	}

	Service interface {
		CheckTeams(ctx context.Context, teamIDs ...string) error
		Create(ctx context.Context, nm NewMatch, createdBy string) (Match, error)
		Get(ctx context.Context, id string) (Match, error)
		GetByShareToken(ctx context.Context, token string) (Match, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Match, error)
		Update(ctx context.Context, m Match, um UpdateMatch) (Match, error)
		Delete(ctx context.Context, id string) error
		ShareURL(m Match) string
		ShareQR(m Match, size int) ([]byte, error)
	}

	service struct {
		repo    Repository
		teamSvc team.Service
		mailSvc core.EmailService
		logger  core.Logger
	}
)

func NewService(repo Repository, teamSvc team.Service, mailSvc core.EmailService, logger core.Logger) Service {
	return &service{repo: repo, teamSvc: teamSvc, mailSvc: mailSvc, logger: logger}
}

func (svc *service) CheckTeams(ctx context.Context, teamIDs ...string) error {
	fields := []string{"home_team_id", "away_team_id"}
	for i, id := range teamIDs {
		if id == "" {
			continue
		}
		if _, err := svc.teamSvc.Get(ctx, id); err != nil {
			if errors.Cause(err) != team.ErrNotFound {
				return err
			}
			fld := "team_id"
			if i < len(fields) {
				fld = fields[i]
			}
			return core.NewValidationError(err, core.FieldError{Field: fld, Error: err.Error()})
		}
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nm NewMatch, createdBy string) (Match, error) {
	token, err := newShareToken()
	if err != nil {
		return Match{}, errors.Wrap(err, "generating share token")
	}
	now := time.Now().UTC()
	m := Match{
		HomeTeamID: nm.HomeTeamID,
		AwayTeamID: nm.AwayTeamID,
		Venue:      nm.Venue,
		KickoffAt:  nm.KickoffAt.UTC(),
		Notes:      nm.Notes,
		ShareToken: token,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m, err = svc.repo.CreateMatch(ctx, m)
	if err != nil {
		return Match{}, err
	}
	svc.notifyScheduled(ctx, m)
	return m, nil
}

func (svc *service) Get(ctx context.Context, id string) (Match, error) {
	return svc.repo.GetMatch(ctx, id)
}

func (svc *service) GetByShareToken(ctx context.Context, token string) (Match, error) {
	return svc.repo.GetMatchByShareToken(ctx, core.CleanString(token))
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Match, error) {
	if filter != nil {
		filter.TeamID = core.CleanString(filter.TeamID)
		if filter.IsEmpty() {
			filter = nil
		}
	}
	if ordering == nil {
		ordering = []core.DBOrdering{{Field: "kickoff_at", Ascending: true}}
	}
	return svc.repo.QueryMatches(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, m Match, um UpdateMatch) (Match, error) {
	m.HomeTeamID = um.HomeTeamID
	if um.AwayTeamID != nil {
		m.AwayTeamID = *um.AwayTeamID
	}
	if um.Venue != nil {
		m.Venue = core.CleanString(*um.Venue)
	}
	if um.KickoffAt != nil {
		m.KickoffAt = um.KickoffAt.UTC()
	}
	if um.Notes != nil {
		m.Notes = core.CleanString(*um.Notes)
	}
	m.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateMatch(ctx, m)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteMatch(ctx, id)
}

func (svc *service) ShareURL(m Match) string {
	return core.Conf.FrontendBaseURL + "/m/" + m.ShareToken
}

// ShareQR returns a PNG QR code of the match share URL.
func (svc *service) ShareQR(m Match, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(svc.ShareURL(m), qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "encoding share QR")
	}
	return png, nil
}

type scheduledData struct {
	RecipientName string
	Title         string
	KickoffAt     string
	Venue         string
	MatchID       string
}

// notifyScheduled emails the members of both teams. Failures are logged, never returned.
func (svc *service) notifyScheduled(ctx context.Context, m Match) {
	home, err := svc.teamSvc.Get(ctx, m.HomeTeamID)
	if err != nil {
		svc.logger.Error("loading home team", err, map[string]interface{}{"match": m.ID})
		return
	}
	title := home.Name + " vs TBD"
	var away team.Team
	if m.AwayTeamID != "" {
		if away, err = svc.teamSvc.Get(ctx, m.AwayTeamID); err != nil {
			svc.logger.Error("loading away team", err, map[string]interface{}{"match": m.ID})
			return
		}
		title = home.Name + " vs " + away.Name
	}

	var msgs []*core.EmailMessage
	for _, id := range m.TeamIDs() {
		members, err := svc.teamSvc.Members(ctx, id)
		if err != nil {
			svc.logger.Error("loading team members", err, map[string]interface{}{"match": m.ID, "team": id})
			return
		}
		for _, usr := range members {
			if usr.Email == "" {
				continue
			}
			msgs = append(msgs, &core.EmailMessage{
				To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
				Subject:      "Match scheduled: " + title,
				TemplateName: "match_scheduled",
				TemplateData: scheduledData{
					RecipientName: usr.Name,
					Title:         title,
					KickoffAt:     m.KickoffAt.Format("Mon 02 Jan 2006 15:04 MST"),
					Venue:         m.Venue,
					MatchID:       m.ID,
				},
			})
		}
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

func newShareToken() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b), nil
}
