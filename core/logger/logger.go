package logger

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Debugf(string, ...any)         {}
func (Discard) Debugw(string, map[string]any) {}
func (Discard) Infof(string, ...any)          {}
func (Discard) Warnf(string, ...any)          {}
func (Discard) Errorf(string, ...any)         {}
