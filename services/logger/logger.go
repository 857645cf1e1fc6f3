package logsvc

import (
	"io"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/sirupsen/logrus"

	"github.com/fivesaside/touchline/core"
	"github.com/fivesaside/touchline/core/user"
)

// Logger writes structured entries with logrus and reports them to Rollbar when a token is configured.
//
// Arguments after the message may be an error, a map[string]interface{} of fields
// or the user.User the entry is about.
type Logger struct {
	entry   *logrus.Logger
	rollbar bool
}

var _ core.Logger = (*Logger)(nil) // interface compliance check

func NewLogger(out io.Writer, conf *core.Config) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	if conf.Debug {
		l.SetLevel(logrus.DebugLevel)
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetLevel(logrus.InfoLevel)
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	report := conf.RollbarToken != "" && !conf.TestMode
	if report {
		rollbar.SetToken(conf.RollbarToken)
		rollbar.SetEnvironment(conf.Env)
		rollbar.SetServerHost(conf.Server.Host)
		rollbar.SetCodeVersion(conf.Build)
		rollbar.SetStackTracer(errors.StackTracer)
	}
	rollbar.SetEnabled(report)
	return &Logger{entry: l, rollbar: report}
}

// Logrus exposes the underlying logger, e.g. for the HTTP request logger.
func (l *Logger) Logrus() *logrus.Logger { return l.entry }

// prepare splits args into logrus fields and rollbar arguments.
func (l *Logger) prepare(msg string, args []interface{}) (*logrus.Entry, []interface{}) {
	entry := logrus.NewEntry(l.entry)
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)

	var usrSet bool
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			entry = entry.WithError(a)
			rbArgs = append(rbArgs, a)
		case map[string]interface{}:
			entry = entry.WithFields(a)
			rbArgs = append(rbArgs, a)
		case user.User:
			if usrSet {
				continue
			}
			usrSet = true
			entry = entry.WithField("user", a.ID)
			if l.rollbar {
				rollbar.SetPerson(a.ID, a.Username, a.Email)
			}
		default:
			entry = entry.WithField("extra", a)
		}
	}
	if l.rollbar && !usrSet {
		rollbar.ClearPerson()
	}
	return entry, rbArgs
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	entry, _ := l.prepare(msg, args)
	entry.Debug(msg)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	entry, rbArgs := l.prepare(msg, args)
	entry.Info(msg)
	if l.rollbar {
		rollbar.Info(rbArgs...)
	}
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	entry, rbArgs := l.prepare(msg, args)
	entry.Warn(msg)
	if l.rollbar {
		rollbar.Warning(rbArgs...)
	}
}

func (l *Logger) Error(msg string, args ...interface{}) {
	entry, rbArgs := l.prepare(msg, args)
	entry.Error(msg)
	if l.rollbar {
		rollbar.Error(rbArgs...)
	}
}

func (l *Logger) Fatal(msg string, args ...interface{}) {
	entry, rbArgs := l.prepare(msg, args)
	if l.rollbar {
		rollbar.Critical(rbArgs...)
		rollbar.Wait()
	}
	entry.Fatal(msg)
}

// Close flushes pending Rollbar reports.
func (l *Logger) Close() {
	if l.rollbar {
		rollbar.Close()
	}
}
