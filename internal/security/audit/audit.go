package audit

import (
	"context"
	"log/slog"
	"time"
)

// Entry is one audited mutation
type Entry struct {
	RequestID  string
	RemoteAddr string
	Action     string
	Resource   string
	ResourceID string
	Status     string
	StatusCode int
	Duration   time.Duration
}

// Logger records client mutations. Deletes are hard, so this log is the
// only trail left behind them.
type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit")), now: time.Now}
}

func (al *Logger) LogAction(ctx context.Context, e Entry) {
	level := slog.LevelInfo
	if e.Status != "succeeded" {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit",
		slog.String("action", e.Action),
		slog.String("resource", e.Resource),
		slog.String("resource_id", e.ResourceID),
		slog.String("status", e.Status),
		slog.Int("status_code", e.StatusCode),
		slog.String("request_id", e.RequestID),
		slog.String("remote_addr", e.RemoteAddr),
		slog.Duration("duration", e.Duration),
		slog.Time("timestamp", al.now()),
	)
}
