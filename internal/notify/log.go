package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/domain/order"
)

var _ order.Notifier = (*LogNotifier)(nil)

// LogNotifier writes rendered notifications to the log instead of sending
// them.
type LogNotifier struct {
	lg *zap.Logger
}

// NewLogNotifier returns a LogNotifier writing to lg.
func NewLogNotifier(lg *zap.Logger) *LogNotifier {
	return &LogNotifier{lg: lg.Named("notify")}
}

func (n *LogNotifier) NotifyOrderCreated(_ context.Context, o *order.Order, to order.Recipient) error {
	msg, err := OrderCreated(o, to)
	if err != nil {
		return err
	}
	n.log(msg, o)
	return nil
}

func (n *LogNotifier) NotifyStatusChanged(_ context.Context, o *order.Order, to order.Recipient, status order.Status) error {
	msg, err := StatusChanged(o, to, status)
	if err != nil {
		return err
	}
	n.log(msg, o)
	return nil
}

func (n *LogNotifier) log(msg Message, o *order.Order) {
	n.lg.Info("Notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("order_id", o.ID),
		zap.String("body", msg.Body),
	)
}
