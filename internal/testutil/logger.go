package testutil

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"bm-go/internal/bm"
)

// TestLogger sends log lines to t.Log and keeps them for assertions.
type TestLogger struct {
	t     testing.TB
	attrs []any

	mu    *sync.Mutex
	lines *[]string
}

var _ bm.Logger = (*TestLogger)(nil)

func NewTestLogger(t testing.TB) *TestLogger {
	return &TestLogger{t: t, mu: &sync.Mutex{}, lines: &[]string{}}
}

func (l *TestLogger) log(level, msg string, args []any) {
	line := level + " " + msg
	for _, a := range append(append([]any{}, l.attrs...), args...) {
		line += " " + fmt.Sprint(a)
	}
	l.mu.Lock()
	*l.lines = append(*l.lines, line)
	l.mu.Unlock()
	l.t.Log(line)
}

func (l *TestLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args) }
func (l *TestLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args) }
func (l *TestLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args) }
func (l *TestLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args) }

func (l *TestLogger) With(args ...any) bm.Logger {
	return &TestLogger{
		t:     l.t,
		attrs: append(append([]any{}, l.attrs...), args...),
		mu:    l.mu,
		lines: l.lines,
	}
}

// Contains reports whether any logged line contains s.
func (l *TestLogger) Contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range *l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}
