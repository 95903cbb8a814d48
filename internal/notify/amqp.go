package notify

import (
	"context"

	"ledger/internal/amqp"
	"ledger/internal/log"
)

// Publisher is the part of the AMQP client the notifier needs.
type Publisher interface {
	PublishNotification(ctx context.Context, msg *amqp.NotificationMessage) error
}

// AMQPNotifier forwards notifications to a message broker.
type AMQPNotifier struct {
	pub    Publisher
	logger *log.Logger
}

func NewAMQPNotifier(pub Publisher, logger *log.Logger) *AMQPNotifier {
	if logger == nil {
		logger = log.Default(log.ComponentNotify)
	}
	return &AMQPNotifier{pub: pub, logger: logger.WithComponent(log.ComponentNotify)}
}

func (a *AMQPNotifier) Notify(ctx context.Context, n Notification) {
	msg := &amqp.NotificationMessage{Level: string(n.Level), Message: n.Message, Year: n.Year, Timestamp: n.At}
	if err := a.pub.PublishNotification(ctx, msg); err != nil {
		a.logger.WarnContext(ctx, "Notification not published", log.FieldError, err)
	}
}
