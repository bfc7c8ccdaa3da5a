package sentryutil

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/truly-video/go-truly/env"
	"github.com/truly-video/go-truly/service/logger"
)

func init() {
	env.RegisterValidation("SENTRY_DSN", "omitempty")
}

// InitSentry sets up the sentry client. A missing DSN disables reporting, which
// is the expected state for local runs.
func InitSentry() {
	dsn := env.GetString("SENTRY_DSN")
	if dsn == "" {
		logger.For(nil).Info("sentry DSN not set, skipping sentry init")
		return
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env.GetString("ENV"),
		TracesSampleRate: 0.2,
		AttachStacktrace: true,
	})
	if err != nil {
		logger.For(nil).WithError(err).Error("failed to initialize sentry")
	}
}

// ReportError sends an error to sentry with the hub bound to ctx, if any.
func ReportError(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub != nil {
		hub.CaptureException(err)
	}
}

// RecoverAndRaise reports a panic to sentry and then re-raises it.
func RecoverAndRaise(ctx context.Context) {
	if r := recover(); r != nil {
		hub := sentry.CurrentHub()
		if ctx != nil {
			if ctxHub := sentry.GetHubFromContext(ctx); ctxHub != nil {
				hub = ctxHub
			}
		}
		if hub != nil {
			hub.Recover(r)
			hub.Flush(2 * time.Second)
		}
		panic(r)
	}
}
