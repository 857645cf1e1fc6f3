package main

import (
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/user"
	logsvc "github.com/fivesaside/touchline/services/logger"
	"github.com/fivesaside/touchline/storage/database"
	sqlxrepos "github.com/fivesaside/touchline/storage/database/sqlx"
)

func main() {
	logger := logsvc.NewLogger(os.Stderr, core.Conf)

	// set up DB
	db, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:       db,
		usrSvc:   user.NewService(sqlxrepos.NewUserRepository(db)),
		validate: validate,
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	if err != nil && err != errHelp {
		logger.Error("admin command failed", err)
	}
	_ = db.Close()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
