package order

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recipient identifies who an order notification is addressed to.
type Recipient struct {
	Email string
	Name  string
}

// Notifier delivers order notifications. Implementations may fail; callers
// log the failure and never propagate it.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, o *Order, to Recipient) error
	NotifyStatusChanged(ctx context.Context, o *Order, to Recipient, status Status) error
}

const (
	eventOrderCreated  = "order_created"
	eventStatusChanged = "status_changed"
)

// dispatch sends a notification for o in the background. The send outlives
// the request: it runs on a context detached from ctx's cancellation and
// bounded by the configured timeout.
func (s *Service) dispatch(ctx context.Context, o *Order, event string, send func(ctx context.Context, o *Order, to Recipient) error) {
	if s.notifier == nil {
		return
	}
	snapshot := *o
	lg := zctx.From(ctx).With(
		zap.String("order_id", snapshot.ID),
		zap.String("event", event),
	)
	base := context.WithoutCancel(ctx)

	s.inflight.Go(func() {
		ctx, cancel := context.WithTimeout(base, s.notifyTimeout)
		defer cancel()

		u, err := s.users.GetByID(ctx, snapshot.UserID)
		if err != nil {
			s.metrics.notifyFailed(ctx, event)
			lg.Warn("Notification recipient lookup failed", zap.Error(err))
			return
		}
		if err := send(ctx, &snapshot, Recipient{Email: u.Email, Name: u.Name}); err != nil {
			s.metrics.notifyFailed(ctx, event)
			lg.Warn("Notification failed", zap.Error(err))
			return
		}
		lg.Debug("Notification sent")
	})
}

func (s *Service) notifyCreated(ctx context.Context, o *Order) {
	s.dispatch(ctx, o, eventOrderCreated, func(ctx context.Context, o *Order, to Recipient) error {
		return s.notifier.NotifyOrderCreated(ctx, o, to)
	})
}

func (s *Service) notifyStatusChanged(ctx context.Context, o *Order) {
	status := o.DeliveryStatus
	s.dispatch(ctx, o, eventStatusChanged, func(ctx context.Context, o *Order, to Recipient) error {
		return s.notifier.NotifyStatusChanged(ctx, o, to, status)
	})
}

// Wait blocks until all in-flight notifications finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}
