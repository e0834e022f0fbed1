// Package report logs account and message failures and forwards them to
// Sentry when it is configured.
package report

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// Reporter records errors that drop a message or stop an account.
type Reporter struct {
	hub    *sentry.Hub
	logger *logrus.Logger
}

// New creates a reporter. An empty dsn disables Sentry.
func New(dsn, release string, logger *logrus.Logger) (*Reporter, error) {
	r := &Reporter{logger: logger}
	if dsn == "" {
		return r, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:     dsn,
		Release: release,
	})
	if err != nil {
		return nil, err
	}
	r.hub = sentry.NewHub(client, sentry.NewScope())
	logger.Info("Sentry error reporting enabled")
	return r, nil
}

// Error logs err at error level and captures it.
func (r *Reporter) Error(errorType string, err error, fields logrus.Fields) {
	r.log(errorType, err, fields).Error("Error occurred")
	r.capture(errorType, err, fields)
}

// Warn logs err at warning level and captures it.
func (r *Reporter) Warn(errorType string, err error, fields logrus.Fields) {
	r.log(errorType, err, fields).Warn("Error occurred")
	r.capture(errorType, err, fields)
}

func (r *Reporter) log(errorType string, err error, fields logrus.Fields) *logrus.Entry {
	return r.logger.WithFields(fields).WithField("error_type", errorType).WithError(err)
}

func (r *Reporter) capture(errorType string, err error, fields logrus.Fields) {
	if r.hub == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errorType)
		for k, v := range fields {
			scope.SetExtra(k, v)
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent.
func (r *Reporter) Flush(timeout time.Duration) {
	if r.hub != nil {
		r.hub.Flush(timeout)
	}
}
