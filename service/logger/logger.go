package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

type loggerContextKey string

const loggerKey loggerContextKey = "logger.entry"

var defaultLogger = logrus.New()

// SetLoggerOptions configures the package-level logger.
func SetLoggerOptions(optionsF func(*logrus.Logger)) {
	optionsF(defaultLogger)
}

// NewContextWithFields returns a new context carrying a log entry with the
// given fields attached. Downstream calls to For will include them.
func NewContextWithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return context.WithValue(ctx, loggerKey, For(ctx).WithFields(fields))
}

// For returns the log entry scoped to ctx, or a plain entry when ctx is nil or
// carries no logging state.
func For(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return logrus.NewEntry(defaultLogger)
	}
	if entry, ok := ctx.Value(loggerKey).(*logrus.Entry); ok {
		return entry.WithContext(ctx)
	}
	return logrus.NewEntry(defaultLogger).WithContext(ctx)
}
