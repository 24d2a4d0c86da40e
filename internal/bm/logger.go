package bm

// Logger is the structured logger used by the core components.
// Args alternate key/value pairs as in log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a Logger that adds args to every record.
	With(args ...any) Logger
}

// NopLogger discards everything.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any)  {}
func (*NopLogger) Info(string, ...any)   {}
func (*NopLogger) Warn(string, ...any)   {}
func (*NopLogger) Error(string, ...any)  {}
func (l *NopLogger) With(...any) Logger { return l }

var _ Logger = (*NopLogger)(nil)
