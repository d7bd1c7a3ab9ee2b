package config

import (
	"fmt"

	"github.com/rnmehta/dinevox/internal/menu"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestaurantChanged is true if any hot-reloadable restaurant field
	// (hours, stock list, voice, LLM threshold) changed.
	RestaurantChanged bool
	HoursChanged      bool
	OutOfStockChanged bool
	VoiceChanged      bool
	ThresholdChanged  bool

	// MenuFileChanged is true if the menu file path itself changed.
	MenuFileChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	or, nr := old.Restaurant, new.Restaurant
	if or.OpenHour != nr.OpenHour || or.CloseHour != nr.CloseHour {
		d.HoursChanged = true
	}
	if !stringSlicesEqual(or.OutOfStock, nr.OutOfStock) {
		d.OutOfStockChanged = true
	}
	if or.Voice != nr.Voice {
		d.VoiceChanged = true
	}
	if or.LLMConfidenceThreshold != nr.LLMConfidenceThreshold {
		d.ThresholdChanged = true
	}
	if or.MenuFile != nr.MenuFile {
		d.MenuFileChanged = true
	}
	d.RestaurantChanged = d.HoursChanged || d.OutOfStockChanged || d.VoiceChanged || d.ThresholdChanged

	return d
}

// MenuChange describes a single item-level difference between two menu files.
type MenuChange struct {
	// Item is the menu item name.
	Item string

	// Added and Removed flag items present in only one of the two menus.
	Added   bool
	Removed bool

	// PriceChanged flags a base-price change; OldPrice and NewPrice carry
	// the values.
	PriceChanged bool
	OldPrice     float64
	NewPrice     float64
}

// String renders a change as a single human-readable line for reload logs.
func (c MenuChange) String() string {
	switch {
	case c.Added:
		return fmt.Sprintf("added %q", c.Item)
	case c.Removed:
		return fmt.Sprintf("removed %q", c.Item)
	case c.PriceChanged:
		return fmt.Sprintf("%q price %.0f -> %.0f", c.Item, c.OldPrice, c.NewPrice)
	}
	return fmt.Sprintf("%q unchanged", c.Item)
}

// MenuDiff compares two menu files item by item, keyed by item name across
// all categories. Category moves without a price change are not reported.
func MenuDiff(old, new *menu.MenuFile) []MenuChange {
	oldItems := flattenItems(old)
	newItems := flattenItems(new)

	var changes []MenuChange

	// Removed and price-changed items, in old-menu order.
	for _, name := range itemOrder(old) {
		ni, exists := newItems[name]
		if !exists {
			changes = append(changes, MenuChange{Item: name, Removed: true})
			continue
		}
		oi := oldItems[name]
		if oi.Price != ni.Price {
			changes = append(changes, MenuChange{
				Item:         name,
				PriceChanged: true,
				OldPrice:     oi.Price,
				NewPrice:     ni.Price,
			})
		}
	}

	// Added items, in new-menu order.
	for _, name := range itemOrder(new) {
		if _, exists := oldItems[name]; !exists {
			changes = append(changes, MenuChange{Item: name, Added: true})
		}
	}

	return changes
}

// flattenItems indexes every item by name across all categories.
func flattenItems(mf *menu.MenuFile) map[string]menu.Item {
	items := make(map[string]menu.Item)
	for _, cat := range mf.Menu {
		for _, it := range cat.Items {
			items[it.Name] = it
		}
	}
	return items
}

// itemOrder returns item names in declaration order.
func itemOrder(mf *menu.MenuFile) []string {
	var names []string
	for _, cat := range mf.Menu {
		for _, it := range cat.Items {
			names = append(names, it.Name)
		}
	}
	return names
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
