package testutil

import (
	"io"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/core/match"
	"github.com/fivesaside/touchline/core/team"
	"github.com/fivesaside/touchline/core/user"
	emailsvc "github.com/fivesaside/touchline/services/email"
	filesvc "github.com/fivesaside/touchline/services/files"
	logsvc "github.com/fivesaside/touchline/services/logger"
)

// Services wires the domain services over repos, with a synchronous mail mock and a local uploader.
type Services struct {
	Repos      Repos
	Mail       *emailsvc.ConsoleServiceMock
	Logger     core.Logger
	MediaRoot  string
	User       user.Service
	Team       team.Service
	Match      match.Service
	Attendance attendance.Service
}

func NewServices(t *testing.T, repos Repos) Services {
	svcs := Services{
		Repos:     repos,
		Mail:      emailsvc.NewConsoleServiceMock(),
		Logger:    logsvc.NewLogger(io.Discard, core.Conf),
		MediaRoot: t.TempDir(),
	}
	svcs.User = user.NewService(repos.User)
	svcs.Team = team.NewService(repos.Team, svcs.User, filesvc.NewLocalUploader(svcs.MediaRoot, "http://media.test"))
	svcs.Match = match.NewService(repos.Match, svcs.Team, svcs.Mail, svcs.Logger)
	svcs.Attendance = attendance.NewService(repos.Attendance, svcs.Match, svcs.Team, svcs.User)
	return svcs
}

// NewValidate returns a validator with every domain rule registered.
func NewValidate() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate
}
