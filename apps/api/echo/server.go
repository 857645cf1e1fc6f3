package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/attendance"
	"github.com/fivesaside/touchline/core/match"
	"github.com/fivesaside/touchline/core/team"
	"github.com/fivesaside/touchline/core/user"
	filesvc "github.com/fivesaside/touchline/services/files"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		// MediaRoot is served under /media when set (local crest uploads).
		MediaRoot string

		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		// HealthCheck reports whether the storage is reachable.
		HealthCheck func(ctx context.Context) error

		UserSvc       user.Service
		TeamSvc       team.Service
		MatchSvc      match.Service
		AttendanceSvc attendance.Service
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(ctx context.Context) error
		Close() error
		// Errors receives the error the server stopped on.
		Errors() <-chan error
		// ShutdownSignal receives interrupt signals and shutdown requests.
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
		stop     context.CancelFunc
	}
)

var _ Server = (*server)(nil) // interface compliance check

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := core.Conf
	bg, stop := context.WithCancel(context.Background())
	s.stop = stop

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/health", s.health)
	if s.opts.MediaRoot != "" {
		s.app.Static(filesvc.MediaPrefix, s.opts.MediaRoot)
	}

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)
	loginLimit := newRateLimiter(bg, rate.Limit(conf.Server.LoginRateLimit), conf.Server.LoginRateBurst)

	registerUserAPI(v1, jwt, loginLimit, &userAPI{
		svc:      s.opts.UserSvc,
		teamSvc:  s.opts.TeamSvc,
		attSvc:   s.opts.AttendanceSvc,
		validate: s.opts.Validate,
	})
	registerTeamAPI(v1, jwt, &teamAPI{
		svc:      s.opts.TeamSvc,
		usrSvc:   s.opts.UserSvc,
		validate: s.opts.Validate,
	})
	registerMatchAPI(v1, jwt, &matchAPI{
		svc:      s.opts.MatchSvc,
		attSvc:   s.opts.AttendanceSvc,
		usrSvc:   s.opts.UserSvc,
		validate: s.opts.Validate,
	})
}

func (s *server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	s.stop()
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	s.stop()
	return s.app.Close()
}

func (s *server) Errors() <-chan error { return s.errors }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) health(ctx echo.Context) error {
	status := echo.Map{"status": "ok", "build": core.Conf.Build}
	if s.opts.HealthCheck != nil {
		if err := s.opts.HealthCheck(ctx.Request().Context()); err != nil {
			s.opts.Logger.Warn("health check failed", err)
			status["status"] = "db not ready"
			return ctx.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return ctx.JSON(http.StatusOK, status)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Touchline API!")
}
