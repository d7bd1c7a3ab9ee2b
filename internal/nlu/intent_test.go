package nlu_test

import (
	"testing"

	"github.com/rnmehta/dinevox/internal/menu"
	"github.com/rnmehta/dinevox/internal/nlu"
)

func newClassifier() *nlu.Classifier {
	return nlu.NewClassifier(menu.Default())
}

func TestRoute_PendingConfirmation(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	tests := []struct {
		text      string
		confirmed bool
		conf      float64
	}{
		{"yes", true, 1.0},
		{"yeah go ahead", true, 1.0},
		{"sure, add it", true, 1.0},
		{"i think okay", true, 0.9},
		{"no", false, 1.0},
		{"nope not that", false, 1.0},
	}
	for _, tt := range tests {
		r := c.Route(tt.text, true)
		if r.Intent != nlu.IntentOrderConfirm {
			t.Errorf("Route(%q, pending): got %v, want order_confirm", tt.text, r.Intent)
			continue
		}
		if r.Confirmed != tt.confirmed {
			t.Errorf("Route(%q, pending): confirmed=%v, want %v", tt.text, r.Confirmed, tt.confirmed)
		}
		if r.Confidence != tt.conf {
			t.Errorf("Route(%q, pending): confidence=%v, want %v", tt.text, r.Confidence, tt.conf)
		}
	}
}

func TestRoute_PendingDoesNotSwallowOtherIntents(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	// Without an affirmative or rejection token the cascade continues.
	r := c.Route("what is paneer tikka", true)
	if r.Intent != nlu.IntentInfoDescription {
		t.Errorf("got %v, want info_description", r.Intent)
	}
}

func TestRoute_Cascade(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	tests := []struct {
		name string
		text string
		want nlu.Intent
		conf float64
	}{
		{"finalize", "place order please", nlu.IntentOrderFinalize, 0.95},
		{"billing", "generate bill", nlu.IntentOrderBilling, 0.95},
		{"update before summary", "change my order to 3 naan", nlu.IntentOrderUpdate, 0.9},
		{"remove", "remove the cold coffee", nlu.IntentOrderRemove, 0.9},
		{"greeting", "good morning", nlu.IntentGreeting, 1.0},
		{"audibility", "can you hear me", nlu.IntentAudibility, 1.0},
		{"thanks short", "thank you", nlu.IntentThanks, 1.0},
		{"summary", "show order please now", nlu.IntentOrderSummary, 0.95},
		{"clear", "clear order", nlu.IntentOrderClear, 1.0},
		{"price", "how much is butter chicken", nlu.IntentInfoPrice, 0.95},
		{"menu", "show menu", nlu.IntentInfoMenu, 0.95},
		{"description", "tell me about dal makhani", nlu.IntentInfoDescription, 0.9},
		{"vegetarian", "do you have veg options", nlu.IntentInfoVegetarian, 0.85},
		{"restaurant info", "what's your phone number", nlu.IntentRestaurantInfo, 0.9},
		{"goodbye", "goodbye then, wonderful evening ahead everyone", nlu.IntentThanks, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Route(tt.text, false)
			if r.Intent != tt.want {
				t.Fatalf("Route(%q): got %v, want %v", tt.text, r.Intent, tt.want)
			}
			if r.Confidence != tt.conf {
				t.Errorf("Route(%q): confidence=%v, want %v", tt.text, r.Confidence, tt.conf)
			}
		})
	}
}

func TestRoute_AddWithQuantity(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	r := c.Route("i want two cold coffee", false)
	if r.Intent != nlu.IntentOrderAdd {
		t.Fatalf("got %v, want order_add", r.Intent)
	}
	if r.Quantity != 2 {
		t.Errorf("quantity: got %d, want 2", r.Quantity)
	}
	if !r.RequiresConfirmation {
		t.Error("order_add must require confirmation")
	}
	if r.Confidence != 0.9 {
		t.Errorf("confidence: got %v, want 0.9", r.Confidence)
	}
}

func TestRoute_AddKeywordWithoutQuantity(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	r := c.Route("give me gulab jamun", false)
	if r.Intent != nlu.IntentOrderAdd {
		t.Fatalf("got %v, want order_add", r.Intent)
	}
	if r.Quantity != 1 {
		t.Errorf("quantity: got %d, want 1", r.Quantity)
	}
}

func TestRoute_GreetingCombinedWithRequest(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	r := c.Route("hello, i want butter chicken", false)
	if r.Intent != nlu.IntentOrderAdd {
		t.Errorf("greeting with a request: got %v, want order_add", r.Intent)
	}
}

func TestRoute_ThanksLongSentenceFallsThrough(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	r := c.Route("thanks a lot for the wonderful description of that dish", false)
	if r.Intent == nlu.IntentThanks {
		t.Error("thanks in a long sentence must not classify as thanks")
	}
}

func TestRoute_CatalogScanFallback(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	// No add keyword, no leading quantity phrase, but a menu item plus a
	// digit.
	r := c.Route("cold coffee 2", false)
	if r.Intent != nlu.IntentOrderAdd {
		t.Fatalf("got %v, want order_add", r.Intent)
	}
	if r.Quantity != 2 {
		t.Errorf("quantity: got %d, want 2", r.Quantity)
	}
}

func TestRoute_ShortQueryIsDescription(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	r := c.Route("gulab jamun", false)
	if r.Intent != nlu.IntentInfoDescription {
		t.Fatalf("got %v, want info_description", r.Intent)
	}
	if r.Confidence != 0.6 {
		t.Errorf("confidence: got %v, want 0.6", r.Confidence)
	}
}

func TestRoute_ShortQueryOutranksMisheardConfirmation(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	// "i am" is short enough for the bare-dish-name rule, which fires
	// first; it must never read as a confirmation.
	r := c.Route("as i am", false)
	if r.Intent != nlu.IntentInfoDescription || r.Confirmed {
		t.Errorf("got %v confirmed=%v, want info_description confirmed=false", r.Intent, r.Confirmed)
	}
	if r.Confidence != 0.6 {
		t.Errorf("confidence: got %v, want 0.6", r.Confidence)
	}

	// Even mid-confirmation: "i am" is not an affirmative token, so it
	// must not commit the pending mutation.
	r = c.Route("i am", true)
	if r.Intent == nlu.IntentOrderConfirm && r.Confirmed {
		t.Errorf("got %v confirmed=true, a pending mutation must not commit on %q", r.Intent, "i am")
	}
}

func TestRoute_Unknown(t *testing.T) {
	t.Parallel()
	c := newClassifier()

	r := c.Route("the weather in mumbai seems rather pleasant these days overall", false)
	if r.Intent != nlu.IntentUnknown {
		t.Fatalf("got %v, want unknown", r.Intent)
	}
	if r.Confidence != 0.0 {
		t.Errorf("confidence: got %v, want 0.0", r.Confidence)
	}
}
