package worker

import (
	"context"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/log"
)

// NotificationTail logs notifications consumed from the broker.
type NotificationTail struct {
	logger *log.Logger
}

func NewNotificationTail(logger *log.Logger) *NotificationTail {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &NotificationTail{logger: logger.WithComponent(log.ComponentNotify)}
}

// HandleNotification processes a single notification message from AMQP.
func (t *NotificationTail) HandleNotification(ctx context.Context, msg *amqp.NotificationMessage) error {
	level := slog.LevelInfo
	switch msg.Level {
	case "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	args := []any{"notification_level", msg.Level, "published_at", msg.Timestamp}
	if msg.Year != 0 {
		args = append(args, log.FieldYear, msg.Year)
	}
	t.logger.Log(ctx, level, msg.Message, args...)
	return nil
}
