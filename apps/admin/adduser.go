package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/user"
)

// addUser creates a user.User, or reactivates and updates the existing one.
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name == "" {
		name = uname
	}

	var roles []string
	if isAdmin {
		roles = user.AllRoles
	}

	usr, err := cli.findUser(ctx, uname, email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		nu := user.NewUser{
			Name:            name,
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		}
		if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
			return err
		}
		usr, err = cli.usrSvc.Create(ctx, nu)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "user %q created\n", usr.Username)
		return nil
	}

	active := true
	uu := user.UpdateUser{
		IsActive:        &active,
		Roles:           roles,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if err = uu.Validate(ctx, usr, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	if usr, err = cli.usrSvc.Update(ctx, usr, uu); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q updated\n", usr.Username)
	return nil
}

func (cli *commandLine) findUser(ctx context.Context, logins ...string) (user.User, error) {
	for _, login := range logins {
		if login == "" {
			continue
		}
		usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, login)
		if err == nil || errors.Cause(err) != user.ErrNotFound {
			return usr, err
		}
	}
	return user.User{}, user.ErrNotFound
}
