// Package order holds the per-session order state: committed lines, customer
// details and the single pending confirmation that gates every mutation.
//
// A State belongs to exactly one conversation session and is mutated only by
// the dialog orchestrator. The transport layer serializes turns per session,
// so State needs no internal locking.
package order

import (
	"fmt"
	"strings"
)

// Line is one committed order position. Lines are identified by the
// combination of item name, variant and addon set; adding the same
// combination again increments Qty instead of appending.
type Line struct {
	Name      string   `json:"name"`
	Qty       int      `json:"qty"`
	UnitPrice float64  `json:"unit_price"`
	Variant   string   `json:"variant,omitempty"`
	Addons    []string `json:"addons,omitempty"`
	Allergens []string `json:"allergens,omitempty"`
}

// Customer carries the details extracted during finalization. Both fields
// may be empty.
type Customer struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// PendingKind tags the kind of mutation a confirmation would commit.
type PendingKind int

const (
	PendingAdd PendingKind = iota
	PendingUpdate
	PendingRemove
)

// PendingItem is one proposed item of a pending confirmation.
type PendingItem struct {
	Name  string
	Qty   int
	Price float64

	// Variant and Addons carry through to the committed line on add.
	Variant   string
	Addons    []string
	Allergens []string
}

// Pending is a proposed but uncommitted mutation awaiting a yes/no.
// PendingAdd may carry several items; update and remove carry exactly one.
// For PendingRemove a Qty of zero means the whole line.
type Pending struct {
	Kind  PendingKind
	Items []PendingItem
}

// State is the order of one conversation session.
type State struct {
	lines    []Line
	customer Customer
	pending  *Pending
}

// New returns an empty order.
func New() *State {
	return &State{}
}

// findLine returns the first line matching name case-insensitively,
// regardless of variant or addons. Menus and orders hold tens of items, a
// linear scan is fine.
func (s *State) findLine(name string) *Line {
	nameLow := strings.ToLower(name)
	for i := range s.lines {
		if strings.ToLower(s.lines[i].Name) == nameLow {
			return &s.lines[i]
		}
	}
	return nil
}

// findExactLine matches on the full line identity: name, variant and the
// addon set (order-insensitive).
func (s *State) findExactLine(name, variant string, addons []string) *Line {
	nameLow := strings.ToLower(name)
	for i := range s.lines {
		l := &s.lines[i]
		if strings.ToLower(l.Name) != nameLow {
			continue
		}
		if !strings.EqualFold(l.Variant, variant) {
			continue
		}
		if !sameAddons(l.Addons, addons) {
			continue
		}
		return l
	}
	return nil
}

func sameAddons(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		found := false
		for _, y := range b {
			if strings.EqualFold(x, y) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AddItem appends qty of an item, or increments an existing line with the
// same (name, variant, addons) identity. unitPrice is the final per-unit
// price including addon deltas. Non-positive qty is a no-op.
func (s *State) AddItem(name string, unitPrice float64, qty int, variant string, addons, allergens []string) {
	if qty <= 0 {
		return
	}
	if line := s.findExactLine(name, variant, addons); line != nil {
		line.Qty += qty
		return
	}
	s.lines = append(s.lines, Line{
		Name:      name,
		Qty:       qty,
		UnitPrice: unitPrice,
		Variant:   variant,
		Addons:    addons,
		Allergens: allergens,
	})
}

// RemoveItem removes qty of the named item, or the whole line when qty is
// zero or at least the line quantity. Returns false when the item is not in
// the order.
func (s *State) RemoveItem(name string, qty int) bool {
	line := s.findLine(name)
	if line == nil {
		return false
	}
	if qty <= 0 || qty >= line.Qty {
		kept := s.lines[:0]
		for i := range s.lines {
			if &s.lines[i] != line {
				kept = append(kept, s.lines[i])
			}
		}
		s.lines = kept
		return true
	}
	line.Qty -= qty
	return true
}

// UpdateQuantity sets the named line's quantity to newQty. A non-positive
// newQty removes the line. Returns false when the item is not in the order.
func (s *State) UpdateQuantity(name string, newQty int) bool {
	if newQty <= 0 {
		return s.RemoveItem(name, 0)
	}
	line := s.findLine(name)
	if line == nil {
		return false
	}
	line.Qty = newQty
	return true
}

// Quantity returns the current quantity of the named item, 0 when absent.
func (s *State) Quantity(name string) int {
	if line := s.findLine(name); line != nil {
		return line.Qty
	}
	return 0
}

// Clear resets lines, customer and any pending confirmation.
func (s *State) Clear() {
	s.lines = nil
	s.customer = Customer{}
	s.pending = nil
}

// IsEmpty reports whether the order has no lines.
func (s *State) IsEmpty() bool {
	return len(s.lines) == 0
}

// Subtotal recomputes the order total on every call so it can never go
// stale after a mutation.
func (s *State) Subtotal() float64 {
	var total float64
	for _, l := range s.lines {
		total += float64(l.Qty) * l.UnitPrice
	}
	return total
}

// Lines returns a copy of the committed lines.
func (s *State) Lines() []Line {
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// SetPending replaces any existing pending confirmation. At most one exists
// per session.
func (s *State) SetPending(p *Pending) {
	s.pending = p
}

// Pending returns the current pending confirmation, nil when idle.
func (s *State) Pending() *Pending {
	return s.pending
}

// ClearPending drops the pending confirmation without mutating lines.
func (s *State) ClearPending() {
	s.pending = nil
}

// HasPending reports whether a confirmation is awaiting a yes/no.
func (s *State) HasPending() bool {
	return s.pending != nil
}

// SetCustomerDetails records non-empty customer fields, keeping earlier
// values when a field is empty.
func (s *State) SetCustomerDetails(name, phone string) {
	if name != "" {
		s.customer.Name = name
	}
	if phone != "" {
		s.customer.Phone = phone
	}
}

// Customer returns the recorded customer details.
func (s *State) Customer() Customer {
	return s.customer
}

// Allergens returns the distinct allergens across all lines, in first-seen
// order.
func (s *State) Allergens() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range s.lines {
		for _, a := range l.Allergens {
			key := strings.ToLower(a)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// Describe renders the order for speech: each line with its extended price,
// then the total.
func (s *State) Describe() string {
	if s.IsEmpty() {
		return "You don't have any items in your order yet."
	}
	parts := make([]string, 0, len(s.lines))
	for _, l := range s.lines {
		name := l.Name
		if l.Variant != "" {
			name += " (" + l.Variant + ")"
		}
		if len(l.Addons) > 0 {
			name += " with " + strings.Join(l.Addons, ", ")
		}
		parts = append(parts, fmt.Sprintf("%d %s (%.0f rupees)", l.Qty, name, float64(l.Qty)*l.UnitPrice))
	}
	return fmt.Sprintf("Your current order: %s. Total: %.0f rupees.", strings.Join(parts, "; "), s.Subtotal())
}

// Snapshot is the immutable view handed to the action service on finalize.
type Snapshot struct {
	Items    []Line   `json:"items"`
	Subtotal float64  `json:"subtotal"`
	Total    float64  `json:"total"`
	Customer Customer `json:"customer"`
}

// Snapshot captures the current order for persistence.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Items:    s.Lines(),
		Subtotal: s.Subtotal(),
		Total:    s.Subtotal(),
		Customer: s.customer,
	}
}
