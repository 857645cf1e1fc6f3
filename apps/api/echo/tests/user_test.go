package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/user"
	"github.com/fivesaside/touchline/testutil"
)

func Test_userAPI_login(t *testing.T) {
	app, svcs := setup(t)
	repo := svcs.Repos.User

	pwd := "Touchl1ne!"
	_ = testutil.CreateUser(t, repo, "Kofi Mensah", "kofi", "kofi@test.io", pwd, []string{user.RolePlayer}, true, "")
	_ = testutil.CreateUser(t, repo, "Benched", "bench", "bench@test.io", pwd, []string{user.RolePlayer}, false, "")

	login := func(uname, pwd string) []byte {
		return marshalObj(t, map[string]string{"username": uname, "password": pwd})
	}
	failed := marshalObj(t, httpErr{Error: "authentication failed"})

	runHTTPTests(t, app, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{name: "unknown user", method: http.MethodPost, path: "/v1/users/login", body: login("ghost", pwd), wantCode: http.StatusBadRequest, wantData: failed},
		{name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: login("kofi", "nope"), wantCode: http.StatusBadRequest, wantData: failed},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: login("bench", pwd),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	for _, uname := range []string{"kofi", "KOFI ", "kofi@test.io"} {
		t.Run("success "+uname, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", login(uname, pwd))
			app.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp struct{ Token string }
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Token)

			// the token opens authed endpoints
			req, rec = newAuthRequest(http.MethodPost, "/v1/users/token-refresh", resp.Token)
			app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func Test_userAPI_loginRateLimit(t *testing.T) {
	app, _ := setup(t)

	burst := core.Conf.Server.LoginRateBurst
	for i := 0; i < burst; i++ {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", []byte(`{}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "attempt %d", i+1)
	}

	req, rec := newRequest(http.MethodPost, "/v1/users/login", []byte(`{}`))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusTooManyRequests,
		wantData: marshalObj(t, httpErr{Error: "too many requests, please try again later"}),
	}, rec)
}

func Test_userAPI_query(t *testing.T) {
	app, svcs := setup(t)
	repo := svcs.Repos.User

	now := time.Now().UTC().Truncate(time.Second)
	lions := testutil.CreateTeam(t, svcs.Repos.Team, "Lions", "LIO")

	admin := testutil.CreateUser(t, repo, "Admin", "admin", "admin@test.io", "", []string{user.RoleAdmin}, true, "", now.Add(-3*time.Hour))
	capt := testutil.CreateUser(t, repo, "Ama Owusu", "ama", "ama@test.io", "", []string{user.RoleCaptain}, true, lions.ID, now.Add(-2*time.Hour))
	kofi := testutil.CreateUser(t, repo, "Kofi Mensah", "kofi", "kofi@test.io", "", []string{user.RolePlayer}, true, lions.ID, now.Add(-time.Hour))
	guest := testutil.CreateUser(t, repo, "Guest", "guest", "guest@test.io", "", []string{user.RolePlayer}, false, "", now)

	adminToken := getToken(t, admin)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "admin required", path: "/v1/users", token: getToken(t, capt), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "all (newest first)", path: "/v1/users", token: adminToken, wantData: marshalList(t, guest, kofi, capt, admin)},
		{name: "order by name", path: "/v1/users?ordering=name", token: adminToken, wantData: marshalList(t, admin, capt, guest, kofi)},
		{name: "search", path: "/v1/users?search=KOF", token: adminToken, wantData: marshalList(t, kofi)},
		{name: "team", path: "/v1/users?team_id=" + lions.ID, token: adminToken, wantData: marshalList(t, kofi, capt)},
		{name: "inactive", path: "/v1/users?is_active=false", token: adminToken, wantData: marshalList(t, guest)},
		{name: "role", path: "/v1/users?role=" + user.RoleCaptain, token: adminToken, wantData: marshalList(t, capt)},
		{name: "no match", path: "/v1/users?search=zzz", token: adminToken, wantData: marshalList(t)},
	})
}

func Test_userAPI_detail(t *testing.T) {
	app, svcs := setup(t)
	repo := svcs.Repos.User

	admin := testutil.CreateUser(t, repo, "Admin", "admin", "admin@test.io", "", []string{user.RoleAdmin}, true, "")
	kofi := testutil.CreateUser(t, repo, "Kofi Mensah", "kofi", "kofi@test.io", "", []string{user.RolePlayer}, true, "")
	ama := testutil.CreateUser(t, repo, "Ama Owusu", "ama", "ama@test.io", "", []string{user.RolePlayer}, true, "")
	kofiToken := getToken(t, kofi)

	runHTTPTests(t, app, []httpTest{
		{name: "self", path: "/v1/users/" + kofi.ID, token: kofiToken, wantData: marshalObj(t, kofi)},
		{name: "someone else is hidden", path: "/v1/users/" + ama.ID, token: kofiToken, wantCode: http.StatusNotFound, wantData: marshalObj(t, errNotFound)},
		{name: "admin sees anyone", path: "/v1/users/" + ama.ID, token: getToken(t, admin), wantData: marshalObj(t, ama)},
		{
			name: "players cannot change their roles", method: http.MethodPut, path: "/v1/users/" + kofi.ID, token: kofiToken,
			body: []byte(`{"roles":["admin:"]}`), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "players cannot delete", method: http.MethodDelete, path: "/v1/users/" + kofi.ID, token: kofiToken,
			wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "admin cannot delete themselves", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: getToken(t, admin),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{name: "admin deletes", method: http.MethodDelete, path: "/v1/users/" + ama.ID, token: getToken(t, admin), wantCode: http.StatusNoContent},
		{name: "deleted user is gone", path: "/v1/users/" + ama.ID, token: getToken(t, admin), wantCode: http.StatusNotFound, wantData: marshalObj(t, errNotFound)},
	})

	t.Run("update own name", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+kofi.ID, kofiToken, []byte(`{"name":"Kofi M."}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := svcs.User.GetByID(req.Context(), kofi.ID)
		require.NoError(t, err)
		assert.Equal(t, "Kofi M.", usr.Name)
	})

	t.Run("deleted token owner is unauthorized", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+ama.ID, getToken(t, ama))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marshalObj(t, httpErr{Error: "user not authenticated"})}, rec)
	})
}

func Test_userAPI_register(t *testing.T) {
	app, svcs := setup(t)
	repo := svcs.Repos.User

	admin := testutil.CreateUser(t, repo, "Admin", "admin", "admin@test.io", "", []string{user.RoleAdmin}, true, "")
	_ = testutil.CreateUser(t, repo, "Kofi Mensah", "kofi", "kofi@test.io", "", []string{user.RolePlayer}, true, "")
	adminToken := getToken(t, admin)

	newUser := func(uname, email, team string, roles ...string) []byte {
		return marshalObj(t, map[string]interface{}{
			"name":             "New Player",
			"username":         uname,
			"email":            email,
			"password":         "Str0ng&Secret",
			"password_confirm": "Str0ng&Secret",
			"roles":            roles,
			"team_id":          team,
		})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "duplicate username", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: newUser("kofi", "other@test.io", "", user.RolePlayer), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name: "unknown team", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: newUser("yaw", "yaw@test.io", "nope", user.RolePlayer), wantCode: http.StatusBadRequest,
		},
		{
			name: "owner role above admin", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: newUser("yaw", "yaw@test.io", "", user.RoleAdminOwner), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "created", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: newUser("yaw", "yaw@test.io", "", user.RolePlayer), wantCode: http.StatusCreated,
		},
	})

	usr, err := svcs.User.GetByUsernameOrEmail(context.Background(), "yaw")
	require.NoError(t, err)
	assert.Equal(t, []string{user.RolePlayer}, usr.Roles)
	assert.NoError(t, usr.CheckPassword("Str0ng&Secret"))
}
