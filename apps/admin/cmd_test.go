package main

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivesaside/touchline/core/user"
	"github.com/fivesaside/touchline/testutil"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	usrRepo = testutil.MemRepos(t).User

	// start CLI
	return &commandLine{
		usrSvc:   user.NewService(usrRepo),
		validate: testutil.NewValidate(),
		out:      new(bytes.Buffer),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
	wantAnyErr bool
}

func (tt cliTest) run(t *testing.T, cli *commandLine) error {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(tt.pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
	return cli.run(append([]string{"admin"}, tt.args...))
}

func (tt cliTest) check(t *testing.T, err error) {
	switch {
	case tt.wantErr != nil:
		assert.ErrorIs(t, err, tt.wantErr)
	case tt.wantErrStr != "":
		assert.EqualError(t, err, tt.wantErrStr)
	case tt.wantAnyErr:
		assert.Error(t, err)
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var gotCmd string
	var gotArgs []string
	orig := migrateFunc
	t.Cleanup(func() { migrateFunc = orig })
	migrateFunc = func(_ *sqlx.DB, command string, args ...string) error {
		gotCmd, gotArgs = command, args
		switch command {
		case "up", "down", "status", "version", "redo", "reset":
			return nil
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			return nil
		}
		return fmt.Errorf("%q: no such command", command)
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCmd, gotArgs = "", nil
			err := tt.run(t, cli)
			tt.check(t, err)
			if len(tt.args) > 1 {
				assert.Equal(t, tt.args[1], gotCmd)
				assert.Equal(t, tt.args[2:], append([]string{}, gotArgs...))
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	benched := testutil.CreateUser(t, usrRepo, "Benched", "bench", "bench@test.io", "Old&Passw0rd", []string{user.RolePlayer}, false, "")

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "coach"}, wantErr: errHelp},
		{name: "weak password", args: []string{"adduser", "-username", "coach"}, pwd: "coach", wantAnyErr: true},
		{name: "create admin", args: []string{"adduser", "-username", "Coach", "-email", "coach@test.io", "-admin"}, pwd: "Wh1stle&Board"},
		{name: "reactivate by email", args: []string{"adduser", "-email", "BENCH@test.io"}, pwd: "N3w&Passw0rd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.run(t, cli))
		})
	}

	coach, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "coach")
	require.NoError(t, err)
	assert.Equal(t, "coach", coach.Name)
	assert.Equal(t, "coach@test.io", coach.Email)
	assert.True(t, coach.IsActive)
	assert.True(t, coach.IsAdmin())
	assert.NoError(t, coach.CheckPassword("Wh1stle&Board"))

	usr, err := cli.usrSvc.GetByID(ctx, benched.ID)
	require.NoError(t, err)
	assert.True(t, usr.IsActive)
	assert.Equal(t, []string{user.RolePlayer}, usr.Roles)
	assert.NoError(t, usr.CheckPassword("N3w&Passw0rd"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "Kofi Mensah", "kofi", "kofi@test.io", "Old&Passw0rd", nil, true, "")

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "Fresh&Passw0rd", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, pwd: "Fresh&Passw0rd"},
		{name: "reset with email", args: []string{"resetpassword", "-username", "KOFI@test.io"}, pwd: "Fresh&Passw0rd2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(t, cli)
			tt.check(t, err)
			if err == nil {
				refreshed, err := cli.usrSvc.GetByID(context.Background(), usr.ID)
				require.NoError(t, err)
				assert.NoError(t, refreshed.CheckPassword(tt.pwd))
			}
		})
	}
}
