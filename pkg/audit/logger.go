package audit

import (
	"github.com/rs/zerolog"
)

// Logger writes audit events as structured log lines.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a logging sink as a child of the given logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Log implements Sink.
func (l *Logger) Log(event Event) {
	lvl := zerolog.InfoLevel
	if !event.Success {
		lvl = zerolog.WarnLevel
	}
	ev := l.logger.WithLevel(lvl).
		Str("event_id", event.ID).
		Str("action", string(event.Action)).
		Bool("success", event.Success)
	if event.Key != "" {
		ev = ev.Str("key", event.Key)
	}
	if event.Provider != "" {
		ev = ev.Str("provider", event.Provider)
	}
	if event.Source != "" {
		ev = ev.Str("source", event.Source)
	}
	if event.Duration > 0 {
		ev = ev.Dur("duration", event.Duration)
	}
	if event.Error != "" {
		ev = ev.Str("error", event.Error)
	}
	ev.Msg("audit event")
}

// Flush implements Sink. Log lines are unbuffered.
func (l *Logger) Flush() error { return nil }
