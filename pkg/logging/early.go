package logging

import (
	"fmt"
	"io"
)

// EarlyLog prints to stdio before the structured logger exists (config
// loading, flag parsing). It never exits the process; callers return the
// error up to cobra instead.
type EarlyLog struct {
	out io.Writer
	err io.Writer
}

// NewEarlyLog writes Info to out and Warn/Error to errOut. Commands pass
// cmd.OutOrStdout() and cmd.ErrOrStderr().
func NewEarlyLog(out, errOut io.Writer) *EarlyLog {
	return &EarlyLog{out: out, err: errOut}
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.print(l.err, "ERROR", msg, args...)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.print(l.err, "WARN", msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.print(l.out, "INFO", msg, args...)
}

func (l *EarlyLog) print(w io.Writer, level, msg string, args ...interface{}) {
	fmt.Fprintf(w, "%s: %s\n", level, fmt.Sprintf(msg, args...))
}
