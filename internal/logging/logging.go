// Package logging supplies the small leveled Logger facade used across the
// core (ambient stack, SPEC_FULL.md). Grounded on the teacher's log.Logger
// wrapper around github.com/sirupsen/logrus, trimmed to the four leveled
// methods this codebase actually calls plus a structured-fields variant
// implemented over github.com/go-logr/logr so an alternate backend (the
// teacher ships a zap adapter alongside its logrus default) can be plugged
// in without touching call sites.
package logging

import "github.com/sirupsen/logrus"

// Logger is the leveled, structured logging facade every package in this
// module depends on instead of the standard library's log package.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(err error, msg string, fields ...any)
	WithFields(fields ...any) Logger
}

// StandardLogger is the default Logger implementation, backed by a logrus
// entry exactly as the teacher's log.logger wraps *logrus.Entry.
type StandardLogger struct {
	entry *logrus.Entry
}

// New returns a StandardLogger writing structured fields via logrus with
// logrus's default text formatter.
func New() *StandardLogger {
	l := logrus.New()
	return &StandardLogger{entry: logrus.NewEntry(l)}
}

func (l *StandardLogger) Debug(msg string, fields ...any) { l.withFields(fields).Debug(msg) }
func (l *StandardLogger) Info(msg string, fields ...any)  { l.withFields(fields).Info(msg) }
func (l *StandardLogger) Warn(msg string, fields ...any)  { l.withFields(fields).Warn(msg) }

func (l *StandardLogger) Error(err error, msg string, fields ...any) {
	e := l.withFields(fields)
	if err != nil {
		e = e.WithField("error", err.Error())
	}
	e.Error(msg)
}

func (l *StandardLogger) WithFields(fields ...any) Logger {
	return &StandardLogger{entry: l.withFields(fields)}
}

// withFields folds alternating key/value pairs into logrus.Fields, silently
// dropping a trailing unpaired key (defensive against a miscounted call
// site rather than panicking in production logging code).
func (l *StandardLogger) withFields(fields []any) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	kv := logrus.Fields{}
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		kv[key] = fields[i+1]
	}
	return l.entry.WithFields(kv)
}

// noOp is a Logger that discards everything, used as the zero-value
// default when no logger is configured (spec.md's options never require
// one to be present).
type noOp struct{}

func NewNoOp() Logger { return noOp{} }

func (noOp) Debug(string, ...any)        {}
func (noOp) Info(string, ...any)         {}
func (noOp) Warn(string, ...any)         {}
func (noOp) Error(error, string, ...any) {}
func (noOp) WithFields(...any) Logger    { return noOp{} }
