package config_test

import (
	"testing"

	"github.com/rnmehta/dinevox/internal/config"
	"github.com/rnmehta/dinevox/internal/menu"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Restaurant: config.RestaurantConfig{
			OpenHour:   11,
			CloseHour:  23,
			OutOfStock: []string{"Ice Cream"},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.RestaurantChanged {
		t.Error("expected RestaurantChanged=false for identical configs")
	}
	if d.MenuFileChanged {
		t.Error("expected MenuFileChanged=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_HoursChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Restaurant: config.RestaurantConfig{OpenHour: 11, CloseHour: 23}}
	new := &config.Config{Restaurant: config.RestaurantConfig{OpenHour: 10, CloseHour: 23}}

	d := config.Diff(old, new)
	if !d.HoursChanged {
		t.Error("expected HoursChanged=true")
	}
	if !d.RestaurantChanged {
		t.Error("expected RestaurantChanged=true")
	}
}

func TestDiff_OutOfStockChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Restaurant: config.RestaurantConfig{OutOfStock: []string{"Ice Cream"}}}
	new := &config.Config{Restaurant: config.RestaurantConfig{OutOfStock: []string{"Ice Cream", "Special Dessert"}}}

	d := config.Diff(old, new)
	if !d.OutOfStockChanged {
		t.Error("expected OutOfStockChanged=true")
	}
	if d.HoursChanged {
		t.Error("expected HoursChanged=false")
	}
}

func TestDiff_VoiceChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Restaurant: config.RestaurantConfig{Voice: config.VoiceConfig{VoiceID: "v1"}}}
	new := &config.Config{Restaurant: config.RestaurantConfig{Voice: config.VoiceConfig{VoiceID: "v2"}}}

	d := config.Diff(old, new)
	if !d.VoiceChanged {
		t.Error("expected VoiceChanged=true")
	}
	if !d.RestaurantChanged {
		t.Error("expected RestaurantChanged=true")
	}
}

func TestDiff_ThresholdChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Restaurant: config.RestaurantConfig{LLMConfidenceThreshold: 0.5}}
	new := &config.Config{Restaurant: config.RestaurantConfig{LLMConfidenceThreshold: 0.7}}

	d := config.Diff(old, new)
	if !d.ThresholdChanged {
		t.Error("expected ThresholdChanged=true")
	}
}

func TestDiff_MenuFileChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Restaurant: config.RestaurantConfig{MenuFile: "menu.yaml"}}
	new := &config.Config{Restaurant: config.RestaurantConfig{MenuFile: "menu-winter.yaml"}}

	d := config.Diff(old, new)
	if !d.MenuFileChanged {
		t.Error("expected MenuFileChanged=true")
	}
	// A path change alone is not a restaurant settings change.
	if d.RestaurantChanged {
		t.Error("expected RestaurantChanged=false for a path-only change")
	}
}

// ── Menu diffs ────────────────────────────────────────────────────────────────

func menuWith(items ...menu.Item) *menu.MenuFile {
	return &menu.MenuFile{
		Menu: []menu.Category{{Name: "Main Course", Items: items}},
	}
}

func TestMenuDiff_NoChanges(t *testing.T) {
	t.Parallel()
	mf := menuWith(menu.Item{Name: "Butter Chicken", Price: 320})
	if changes := config.MenuDiff(mf, mf); len(changes) != 0 {
		t.Errorf("expected no changes, got %v", changes)
	}
}

func TestMenuDiff_PriceChanged(t *testing.T) {
	t.Parallel()
	old := menuWith(menu.Item{Name: "Butter Chicken", Price: 320})
	new := menuWith(menu.Item{Name: "Butter Chicken", Price: 350})

	changes := config.MenuDiff(old, new)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	c := changes[0]
	if !c.PriceChanged || c.Item != "Butter Chicken" {
		t.Errorf("expected Butter Chicken price change, got %+v", c)
	}
	if c.OldPrice != 320 || c.NewPrice != 350 {
		t.Errorf("expected 320 -> 350, got %.0f -> %.0f", c.OldPrice, c.NewPrice)
	}
}

func TestMenuDiff_AddedAndRemoved(t *testing.T) {
	t.Parallel()
	old := menuWith(
		menu.Item{Name: "Butter Chicken", Price: 320},
		menu.Item{Name: "Ice Cream", Price: 80},
	)
	new := menuWith(
		menu.Item{Name: "Butter Chicken", Price: 320},
		menu.Item{Name: "Gulab Jamun", Price: 90},
	)

	changes := config.MenuDiff(old, new)
	byItem := make(map[string]config.MenuChange)
	for _, c := range changes {
		byItem[c.Item] = c
	}
	if !byItem["Ice Cream"].Removed {
		t.Error("expected Ice Cream Removed=true")
	}
	if !byItem["Gulab Jamun"].Added {
		t.Error("expected Gulab Jamun Added=true")
	}
	if _, ok := byItem["Butter Chicken"]; ok {
		t.Error("unchanged item must not appear in the diff")
	}
}

func TestMenuDiff_CategoryMoveNotReported(t *testing.T) {
	t.Parallel()
	old := &menu.MenuFile{Menu: []menu.Category{
		{Name: "Starters", Items: []menu.Item{{Name: "Paneer Tikka", Price: 180}}},
	}}
	new := &menu.MenuFile{Menu: []menu.Category{
		{Name: "Main Course", Items: []menu.Item{{Name: "Paneer Tikka", Price: 180}}},
	}}

	if changes := config.MenuDiff(old, new); len(changes) != 0 {
		t.Errorf("category move without price change must not be reported, got %v", changes)
	}
}

func TestMenuChange_String(t *testing.T) {
	t.Parallel()
	cases := []struct {
		change config.MenuChange
		want   string
	}{
		{config.MenuChange{Item: "Samosa", Added: true}, `added "Samosa"`},
		{config.MenuChange{Item: "Samosa", Removed: true}, `removed "Samosa"`},
		{config.MenuChange{Item: "Samosa", PriceChanged: true, OldPrice: 40, NewPrice: 50}, `"Samosa" price 40 -> 50`},
	}
	for _, tc := range cases {
		if got := tc.change.String(); got != tc.want {
			t.Errorf("String(): want %q, got %q", tc.want, got)
		}
	}
}
