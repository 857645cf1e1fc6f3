package main

import (
	"context"
	"fmt"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
	if err != nil {
		return err
	}
	np := user.NewPasswordFor(usr, pwd, pwd)
	if err = cli.validate.Struct(np); err != nil {
		return err
	}
	if _, err = cli.usrSvc.ResetPassword(ctx, usr, pwd); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %q reset\n", usr.Username)
	return nil
}
