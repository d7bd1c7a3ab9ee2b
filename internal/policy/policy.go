// Package policy gates order mutations on business rules: hours of
// operation and per-item availability. Handlers consult it before touching
// the order and short-circuit with its message when denied.
package policy

import (
	"fmt"
	"strings"
	"time"
)

// Service is the policy view consumed by the dialog layer.
type Service interface {
	// IsRestaurantOpen reports whether ordering is allowed right now. When
	// closed, the message explains the hours.
	IsRestaurantOpen() (bool, string)

	// CheckItemAvailability reports whether the named item can be ordered.
	// When unavailable, the message apologizes for that item.
	CheckItemAvailability(name string) (bool, string)
}

// Option configures a Rules instance.
type Option func(*Rules)

// WithHours overrides the open interval. open is inclusive, close exclusive,
// both in local 24h clock hours.
func WithHours(open, close int) Option {
	return func(r *Rules) {
		r.openHour = open
		r.closeHour = close
	}
}

// WithOutOfStock replaces the out-of-stock item list.
func WithOutOfStock(items []string) Option {
	return func(r *Rules) {
		r.outOfStock = items
	}
}

// WithClock overrides the time source. Tests pin the hour with this.
func WithClock(now func() time.Time) Option {
	return func(r *Rules) {
		r.now = now
	}
}

// Rules is the standard Service implementation.
type Rules struct {
	openHour   int
	closeHour  int
	outOfStock []string
	now        func() time.Time
}

var _ Service = (*Rules)(nil)

// New returns Rules with the default 11:00-23:00 window and default
// out-of-stock list.
func New(opts ...Option) *Rules {
	r := &Rules{
		openHour:   11,
		closeHour:  23,
		outOfStock: []string{"Ice Cream", "Special Dessert"},
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// IsRestaurantOpen implements Service.
func (r *Rules) IsRestaurantOpen() (bool, string) {
	hour := r.now().Hour()
	if hour >= r.openHour && hour < r.closeHour {
		return true, ""
	}
	return false, fmt.Sprintf("Sorry, we're currently closed. Our hours are %s to %s.",
		formatHour(r.openHour), formatHour(r.closeHour))
}

// CheckItemAvailability implements Service. Matching is case-insensitive.
func (r *Rules) CheckItemAvailability(name string) (bool, string) {
	for _, item := range r.outOfStock {
		if strings.EqualFold(item, name) {
			return false, fmt.Sprintf("Sorry, %s is currently out of stock.", name)
		}
	}
	return true, ""
}

func formatHour(h int) string {
	switch {
	case h == 0 || h == 24:
		return "12 AM"
	case h < 12:
		return fmt.Sprintf("%d AM", h)
	case h == 12:
		return "12 PM"
	default:
		return fmt.Sprintf("%d PM", h-12)
	}
}
