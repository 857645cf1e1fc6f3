package digcontainer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/fivesaside/touchline/apps/api/echo"
	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/core/match"
	"github.com/fivesaside/touchline/core/team"
	"github.com/fivesaside/touchline/core/user"
	emailsvc "github.com/fivesaside/touchline/services/email"
	filesvc "github.com/fivesaside/touchline/services/files"
	logsvc "github.com/fivesaside/touchline/services/logger"
	"github.com/fivesaside/touchline/storage/database"
	sqlxrepos "github.com/fivesaside/touchline/storage/database/sqlx"
)

// MediaRoot is where crests are stored when no Supabase bucket is configured.
type MediaRoot string

func newConfig() *core.Config {
	return core.Conf
}

func newLogger(conf *core.Config) (*logsvc.Logger, core.Logger) {
	logger := logsvc.NewLogger(os.Stdout, conf)
	return logger, logger
}

func newDB(conf *core.Config, logger core.Logger) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(os.Stdout, logger)
	}
	return emailsvc.NewSendgridService(logger)
}

func newMediaRoot(conf *core.Config) MediaRoot {
	if conf.Supabase.URL != "" {
		return ""
	}
	return MediaRoot(filepath.Join(conf.WorkDir, "media"))
}

func newUploader(conf *core.Config, root MediaRoot) team.Uploader {
	if conf.Supabase.URL != "" {
		return filesvc.NewSupabaseUploader(conf.Supabase)
	}
	scheme := "http"
	if !conf.Debug {
		scheme = "https"
	}
	return filesvc.NewLocalUploader(string(root), scheme+"://"+conf.Server.Host)
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate, translator
}

type serverParams struct {
	dig.In

	Conf          *core.Config
	Logger        core.Logger
	DB            *sqlx.DB
	Validate      *validator.Validate
	Translator    ut.Translator
	MediaRoot     MediaRoot
	UserSvc       user.Service
	TeamSvc       team.Service
	MatchSvc      match.Service
	AttendanceSvc attendance.Service
}

func newServer(p serverParams) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Address:   p.Conf.Server.Address,
		MediaRoot: string(p.MediaRoot),

		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		HealthCheck: func(ctx context.Context) error {
			return database.StatusCheck(ctx, p.DB)
		},

		UserSvc:       p.UserSvc,
		TeamSvc:       p.TeamSvc,
		MatchSvc:      p.MatchSvc,
		AttendanceSvc: p.AttendanceSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newMediaRoot))
	must(c.Provide(newUploader))
	must(c.Provide(newValidator))

	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewTeamRepository))
	must(c.Provide(sqlxrepos.NewMatchRepository))
	must(c.Provide(sqlxrepos.NewAttendanceRepository))

	must(c.Provide(user.NewService))
	must(c.Provide(team.NewService))
	must(c.Provide(match.NewService))
	must(c.Provide(attendance.NewService))

	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
