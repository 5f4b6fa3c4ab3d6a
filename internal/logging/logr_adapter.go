package logging

import "github.com/go-logr/logr"

// FromLogr adapts any github.com/go-logr/logr.Logger into this package's
// Logger facade, the pluggable-alternate-backend axis the teacher exposes
// via logging/plugins/ozap (wrapping go.uber.org/zap behind the same
// interface). Any logr-compatible backend (zap, zerolog, klog, ...) can be
// plugged in through this adapter without this module importing that
// backend directly.
func FromLogr(l logr.Logger) Logger {
	return &logrAdapter{l: l}
}

type logrAdapter struct {
	l logr.Logger
}

func (a *logrAdapter) Debug(msg string, fields ...any) { a.l.V(1).Info(msg, fields...) }
func (a *logrAdapter) Info(msg string, fields ...any)  { a.l.Info(msg, fields...) }
func (a *logrAdapter) Warn(msg string, fields ...any)  { a.l.V(0).Info(msg, fields...) }

func (a *logrAdapter) Error(err error, msg string, fields ...any) {
	a.l.Error(err, msg, fields...)
}

func (a *logrAdapter) WithFields(fields ...any) Logger {
	return &logrAdapter{l: a.l.WithValues(fields...)}
}
