package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records order lifecycle counters. A nil *Metrics records nothing.
type Metrics struct {
	placed         metric.Int64Counter
	transitions    metric.Int64Counter
	notifyFailures metric.Int64Counter
}

// NewMetrics registers the order instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	placed, err := meter.Int64Counter("foodcart.orders.placed",
		metric.WithDescription("Orders created from carts"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	transitions, err := meter.Int64Counter("foodcart.orders.status_transitions",
		metric.WithDescription("Delivery status changes applied"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "status transitions counter")
	}
	notifyFailures, err := meter.Int64Counter("foodcart.notifications.failed",
		metric.WithDescription("Order notifications that could not be delivered"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "notification failures counter")
	}
	return &Metrics{
		placed:         placed,
		transitions:    transitions,
		notifyFailures: notifyFailures,
	}, nil
}

func (m *Metrics) orderPlaced(ctx context.Context, withCoupon bool) {
	if m == nil {
		return
	}
	m.placed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("coupon", withCoupon)))
}

func (m *Metrics) statusChanged(ctx context.Context, from, to Status) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *Metrics) notifyFailed(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.notifyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
