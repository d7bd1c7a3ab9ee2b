// Package action executes order finalization: it assigns an order id,
// persists the snapshot through a Store and builds the spoken receipt.
package action

import (
	"context"
	"fmt"
	"time"

	"github.com/rnmehta/dinevox/internal/order"
)

// Receipt is the result of a successful finalization.
type Receipt struct {
	OrderID string
	Total   float64
	Message string
}

// Record is the persisted form of a finalized order.
type Record struct {
	OrderID   string         `json:"order_id"`
	Timestamp time.Time      `json:"timestamp"`
	Items     []order.Line   `json:"items"`
	Subtotal  float64        `json:"subtotal"`
	Total     float64        `json:"total"`
	Customer  order.Customer `json:"customer"`
}

// Store persists finalized orders. Implementations must be safe for
// concurrent use.
type Store interface {
	SaveOrder(ctx context.Context, rec Record) error
}

// Service finalizes orders.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for order ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service persisting through store.
func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Finalize persists the snapshot and returns the receipt. An empty order is
// an error the dialog layer turns into a prompt, not a failure.
func (s *Service) Finalize(ctx context.Context, snap order.Snapshot) (Receipt, error) {
	if len(snap.Items) == 0 {
		return Receipt{}, fmt.Errorf("action: finalize: order is empty")
	}

	now := s.now()
	rec := Record{
		OrderID:   fmt.Sprintf("ORD%d", now.Unix()),
		Timestamp: now.UTC(),
		Items:     snap.Items,
		Subtotal:  snap.Subtotal,
		Total:     snap.Total,
		Customer:  snap.Customer,
	}

	if err := s.store.SaveOrder(ctx, rec); err != nil {
		return Receipt{}, fmt.Errorf("action: finalize: %w", err)
	}

	return Receipt{
		OrderID: rec.OrderID,
		Total:   rec.Total,
		Message: fmt.Sprintf(
			"Perfect! Your order %s has been placed successfully! Order total: %.0f rupees. Thank you for dining with us!",
			rec.OrderID, rec.Total),
	}, nil
}
