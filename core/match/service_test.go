package match_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/match"
	"github.com/fivesaside/touchline/core/user"
	"github.com/fivesaside/touchline/testutil"
)

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	repos := testutil.MemRepos(t)
	svcs := testutil.NewServices(t, repos)

	riv := testutil.CreateTeam(t, repos.Team, "Riverside Rovers", "RIV")
	ath := testutil.CreateTeam(t, repos.Team, "Athletic Eleven", "ATH")
	testutil.CreateUser(t, repos.User, "Ada Obi", "ada", "ada@example.com", "", []string{user.RolePlayer}, true, riv.ID)
	testutil.CreateUser(t, repos.User, "Ben Kalu", "ben", "ben@example.com", "", []string{user.RolePlayer}, true, ath.ID)
	testutil.CreateUser(t, repos.User, "Idle Ike", "ike", "ike@example.com", "", []string{user.RolePlayer}, false, ath.ID)
	testutil.CreateUser(t, repos.User, "No Mail", "nomail", "", "", []string{user.RolePlayer}, true, riv.ID)

	kickoff := time.Date(2026, 11, 7, 15, 0, 0, 0, time.UTC)
	m, err := svcs.Match.Create(ctx, match.NewMatch{HomeTeamID: riv.ID, AwayTeamID: ath.ID, Venue: "Riverside Park", KickoffAt: kickoff}, "creator")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Len(t, m.ShareToken, 16)
	assert.Equal(t, "creator", m.CreatedBy)

	sent := svcs.Mail.Sent()
	require.Len(t, sent, 2)
	for _, msg := range sent {
		assert.Equal(t, "Match scheduled: Riverside Rovers vs Athletic Eleven", msg.Subject)
		assert.Contains(t, msg.TextContent, "Riverside Park")
		assert.Contains(t, msg.TextContent, "/matches/"+m.ID)
	}

	got, err := svcs.Match.GetByShareToken(ctx, m.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, core.Conf.FrontendBaseURL+"/m/"+m.ShareToken, svcs.Match.ShareURL(m))

	png, err := svcs.Match.ShareQR(m, 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestNewMatch_Validate(t *testing.T) {
	ctx := context.Background()
	repos := testutil.MemRepos(t)
	svcs := testutil.NewServices(t, repos)
	validate := testutil.NewValidate()

	riv := testutil.CreateTeam(t, repos.Team, "Riverside Rovers", "RIV")
	kickoff := time.Now().Add(24 * time.Hour)

	tests := []struct {
		name    string
		nm      match.NewMatch
		wantErr bool
		field   string
	}{
		{name: "valid", nm: match.NewMatch{HomeTeamID: riv.ID, KickoffAt: kickoff}},
		{name: "missing kickoff", nm: match.NewMatch{HomeTeamID: riv.ID}, wantErr: true},
		{name: "same teams", nm: match.NewMatch{HomeTeamID: riv.ID, AwayTeamID: riv.ID, KickoffAt: kickoff}, wantErr: true},
		{name: "unknown home", nm: match.NewMatch{HomeTeamID: "missing", KickoffAt: kickoff}, wantErr: true, field: "home_team_id"},
		{name: "unknown away", nm: match.NewMatch{HomeTeamID: riv.ID, AwayTeamID: "missing", KickoffAt: kickoff}, wantErr: true, field: "away_team_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nm.Validate(ctx, validate, svcs.Match)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.field != "" {
				var verr *core.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.field, verr.Fields[0].Field)
			}
		})
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	repos := testutil.MemRepos(t)
	svcs := testutil.NewServices(t, repos)
	validate := testutil.NewValidate()

	riv := testutil.CreateTeam(t, repos.Team, "Riverside Rovers", "RIV")
	ath := testutil.CreateTeam(t, repos.Team, "Athletic Eleven", "ATH")
	m := testutil.CreateMatch(t, repos.Match, riv.ID, "", time.Now().Add(24*time.Hour))

	away, venue := ath.ID, "  Athletic Ground "
	um := match.UpdateMatch{AwayTeamID: &away, Venue: &venue}
	require.NoError(t, um.Validate(ctx, m, validate, svcs.Match))
	got, err := svcs.Match.Update(ctx, m, um)
	require.NoError(t, err)
	assert.Equal(t, riv.ID, got.HomeTeamID)
	assert.Equal(t, ath.ID, got.AwayTeamID)
	assert.Equal(t, "Athletic Ground", got.Venue)

	same := riv.ID
	um = match.UpdateMatch{AwayTeamID: &same}
	err = um.Validate(ctx, got, validate, svcs.Match)
	assert.True(t, core.IsValidationError(err))

	require.NoError(t, svcs.Match.Delete(ctx, m.ID))
	_, err = svcs.Match.Get(ctx, m.ID)
	assert.ErrorIs(t, err, match.ErrNotFound)
}
