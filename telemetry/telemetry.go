// Package telemetry implements the engine's error taxonomy from
// spec.md §7: fatal/programmer-error conditions report and abort,
// recoverable conditions log a line and the computation continues with
// the conservative choice. The engine never surfaces exceptions to its
// host; this package is the one place that boundary is enforced.
//
// Grounded on go.uber.org/zap, the most fully-featured structured
// logging dependency found across the retrieved example pack
// (AKJUS-bsc-erigon's go.mod); the teacher itself only reaches for
// fmt.Println/log.Println, which is too thin for a taxonomy that
// distinguishes fatal, recoverable, model-level, and repair-failure
// log lines from one another.
package telemetry

import (
	"go.uber.org/zap"
)

// Logger wraps a *zap.SugaredLogger with the engine's specific
// Fatal/Warn vocabulary so call sites read in terms of spec.md's
// taxonomy rather than generic log levels.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a production-configured Logger. Use NewNop for tests that
// don't want log noise, or NewDevelopment for human-readable output.
func New() *Logger {
	l, err := zap.NewProduction()
	if err != nil {
		// zap's own production config failing to build is itself a
		// programmer error (bad encoder config); there is no logger to
		// report it with, so this is the one legitimate panic site.
		panic(err)
	}
	return &Logger{sugar: l.Sugar()}
}

// NewDevelopment builds a Logger with human-readable, colorized output,
// suitable for the cmd/abtsolver CLI.
func NewDevelopment() *Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return &Logger{sugar: l.Sugar()}
}

// NewNop builds a Logger that discards everything, for unit tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Fatal reports a programmer-error / invariant-violation condition and
// aborts the process. Per spec.md §7 these are "not recoverable errors"
// because they indicate the engine's own bookkeeping is broken (an
// out-of-range state ID, a broken mapping invariant) -- there is no
// safe way to keep running. A non-finite Q delta is not among them: it
// is refused and logged with Warn.
func (l *Logger) Fatal(msg string, kv ...interface{}) {
	l.sugar.Fatalw(msg, kv...)
}

// Warn logs a recoverable condition (identical belief nodes during NN
// search, a pairwise-comparison explosion, an illegal rollout action)
// and returns; the caller continues with the conservative choice.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.sugar.Warnw(msg, kv...)
}

// Info logs ordinary progress/telemetry (episode counts, change-repair
// summaries) at info level.
func (l *Logger) Info(msg string, kv ...interface{}) {
	l.sugar.Infow(msg, kv...)
}

// Sync flushes any buffered log entries; callers should defer this at
// process exit.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
