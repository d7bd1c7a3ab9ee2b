package nlu

import (
	"regexp"
	"strings"

	"github.com/rnmehta/dinevox/internal/menu"
)

// Intent is the closed set of utterance classes the cascade can produce.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentGreeting
	IntentAudibility
	IntentThanks
	IntentInfoPrice
	IntentInfoMenu
	IntentInfoDescription
	IntentInfoVegetarian
	IntentOrderAdd
	IntentOrderConfirm
	IntentOrderRemove
	IntentOrderUpdate
	IntentOrderSummary
	IntentOrderClear
	IntentOrderFinalize
	IntentOrderBilling
	IntentRestaurantInfo
)

var intentNames = map[Intent]string{
	IntentUnknown:         "unknown",
	IntentGreeting:        "greeting",
	IntentAudibility:      "audibility",
	IntentThanks:          "thanks",
	IntentInfoPrice:       "info_price",
	IntentInfoMenu:        "info_menu",
	IntentInfoDescription: "info_description",
	IntentInfoVegetarian:  "info_vegetarian",
	IntentOrderAdd:        "order_add",
	IntentOrderConfirm:    "order_confirm",
	IntentOrderRemove:     "order_remove",
	IntentOrderUpdate:     "order_update",
	IntentOrderSummary:    "order_summary",
	IntentOrderClear:      "order_clear",
	IntentOrderFinalize:   "order_finalize",
	IntentOrderBilling:    "order_billing",
	IntentRestaurantInfo:  "restaurant_info",
}

func (i Intent) String() string {
	if s, ok := intentNames[i]; ok {
		return s
	}
	return "unknown"
}

// IsOrderMutation reports whether the intent can change the order, which
// makes it subject to the hours-of-operation policy check.
func (i Intent) IsOrderMutation() bool {
	switch i {
	case IntentOrderAdd, IntentOrderConfirm, IntentOrderFinalize, IntentOrderUpdate, IntentOrderRemove:
		return true
	}
	return false
}

// Result is a single classification. Produced fresh each turn, never stored.
type Result struct {
	Intent     Intent
	Confidence float64

	// Text carries the (corrected) utterance for slot extraction downstream.
	Text string

	// Quantity is filled for IntentOrderAdd.
	Quantity int

	// Confirmed is meaningful only for IntentOrderConfirm.
	Confirmed bool

	// RequiresConfirmation marks intents that must not mutate the order
	// until the user says yes.
	RequiresConfirmation bool
}

var (
	greetingPatterns = []string{
		"hello", "hi", "hey", "namaste", "good morning",
		"good afternoon", "good evening", "greetings",
	}
	audibilityPatterns = []string{
		"can you hear me", "are you there", "hello are you",
		"can you listen", "are you listening",
	}
	thanksPatterns = []string{
		"thank you", "thanks", "thx", "appreciate it",
		"thanks a lot", "thank u",
	}
	pricePatterns = []string{
		"price of", "how much is", "cost of", "price for",
		"what's the price", "what is the price", "how much does",
		"rate of", "rate for",
	}
	addPatterns = []string{
		"i want", "i need", "i would like", "can i get",
		"order", "add", "get me", "give me", "put in",
	}
	removePatterns = []string{
		"remove", "delete", "cancel", "without", "don't add",
		"take out", "get rid of", "eliminate", "remove from my order",
		"delete from my order", "cancel from my order",
	}
	updatePatterns = []string{
		"update", "change", "modify", "make it", "change to",
		"set to", "adjust", "edit", "alter", "only want", "want only",
		"update my order", "change my order",
	}
	menuPatterns = []string{
		"menu", "dishes", "items", "food list", "what do you have",
		"what's available", "today menu", "todays menu", "show menu",
	}
	finalizePatterns = []string{
		"place order", "finalize", "checkout", "complete order",
		"i'm done", "done ordering", "ready to order", "proceed to checkout",
	}
	billingPatterns = []string{
		"bill", "billing", "total", "amount", "pay", "payment",
		"check bill", "my bill", "generate bill", "final bill",
	}
	summaryPatterns = []string{
		"my order", "cart", "summary", "what i have", "what's in my order",
		"order summary", "current order", "show order",
	}
	clearPatterns = []string{
		"clear order", "reset order", "cancel all", "start over", "empty order",
	}
	descriptionPatterns = []string{
		"what is", "tell me about", "describe", "what's in", "what does",
	}
	vegetarianPatterns = []string{
		"veg option", "veg options", "vegetarian option", "vegetarian options",
		"vegetarian items", "veg dish", "veg food", "veg items",
	}
	restaurantInfoPatterns = []string{
		"address", "location", "phone", "contact", "restaurant name", "your name",
	}
	goodbyePatterns = []string{"bye", "goodbye", "see you", "farewell"}

	confirmStartWords = []string{
		"yes", "yeah", "yep", "sure", "okay", "ok", "confirm",
		"correct", "please", "add it", "go ahead",
	}
	rejectWords = []string{"no", "nope", "nah", "cancel", "don't", "not", "stop", "wait"}

	smallTalkTokens = []string{"hello", "hi", "thanks", "thank", "okay", "yes", "no"}

	addKeywordExtras = []string{
		"add", "want", "need", "like", "get", "give", "order",
		"another", "more", "additional", "extra",
	}

	// quantityPhraseRe spots "<number> <phrase>" add requests before any
	// add keyword is consulted.
	quantityPhraseRe = regexp.MustCompile(`\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten|another|more|additional|extra)\s+[a-z\s]+\b`)

	smallNumberWords = []string{"one", "two", "three", "four", "five"}
)

// Classifier maps an utterance to an Intent through an ordered rule cascade.
// The first matching rule wins; rule order is a load-bearing invariant.
type Classifier struct {
	repo menu.Repository
}

// NewClassifier returns a Classifier that consults repo for the catalog-scan
// fallback rule.
func NewClassifier(repo menu.Repository) *Classifier {
	return &Classifier{repo: repo}
}

func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Route classifies text. hasPending tells the confirmation rule whether a
// proposed mutation is awaiting a yes/no; it has the highest priority so a
// bare "yes" is never mistaken for anything else mid-confirmation.
func (c *Classifier) Route(text string, hasPending bool) Result {
	textLow := strings.TrimSpace(strings.ToLower(text))
	words := strings.Fields(textLow)

	// 1. Pending confirmation resolution.
	if hasPending {
		firstWords := strings.Join(words[:min(3, len(words))], " ")
		for _, w := range confirmStartWords {
			if strings.HasPrefix(firstWords, w) {
				return Result{Intent: IntentOrderConfirm, Confidence: 1.0, Confirmed: true}
			}
		}
		if containsAny(textLow, confirmStartWords) {
			// Guard against "yes, but remove..." style denials.
			if !strings.Contains(textLow, "no") && !strings.Contains(textLow, "not") &&
				!strings.Contains(textLow, "don't") {
				return Result{Intent: IntentOrderConfirm, Confidence: 0.9, Confirmed: true}
			}
		}
		for _, w := range words[:min(2, len(words))] {
			for _, reject := range rejectWords {
				if w == reject {
					return Result{Intent: IntentOrderConfirm, Confidence: 1.0, Confirmed: false}
				}
			}
		}
	}

	// 2. Finalize.
	if containsAny(textLow, finalizePatterns) {
		return Result{Intent: IntentOrderFinalize, Confidence: 0.95, Text: text}
	}

	// 3. Billing.
	if containsAny(textLow, billingPatterns) {
		return Result{Intent: IntentOrderBilling, Confidence: 0.95, Text: text}
	}

	// 4. Update. Must precede summary and remove.
	if containsAny(textLow, updatePatterns) {
		return Result{Intent: IntentOrderUpdate, Confidence: 0.9, Text: text}
	}

	// 5. Remove.
	if containsAny(textLow, removePatterns) {
		return Result{Intent: IntentOrderRemove, Confidence: 0.9, Text: text}
	}

	// 6. Greeting, unless combined with an actual request.
	if containsAny(textLow, greetingPatterns) {
		combined := containsAny(textLow, pricePatterns) ||
			containsAny(textLow, addPatterns) ||
			containsAny(textLow, updatePatterns) ||
			containsAny(textLow, removePatterns)
		if !combined {
			return Result{Intent: IntentGreeting, Confidence: 1.0}
		}
	}

	// 7. Audibility.
	if containsAny(textLow, audibilityPatterns) {
		return Result{Intent: IntentAudibility, Confidence: 1.0}
	}

	// 8. Thanks, only when the whole utterance is short.
	if containsAny(textLow, thanksPatterns) && len(words) <= 3 {
		return Result{Intent: IntentThanks, Confidence: 1.0}
	}

	// 9. Summary.
	if containsAny(textLow, summaryPatterns) {
		return Result{Intent: IntentOrderSummary, Confidence: 0.95}
	}

	// 10. Clear.
	if containsAny(textLow, clearPatterns) {
		return Result{Intent: IntentOrderClear, Confidence: 1.0}
	}

	// 11. Price.
	if containsAny(textLow, pricePatterns) {
		return Result{Intent: IntentInfoPrice, Confidence: 0.95, Text: text}
	}

	// 12. Menu.
	if containsAny(textLow, menuPatterns) {
		return Result{Intent: IntentInfoMenu, Confidence: 0.95, Text: text}
	}

	// 13. Description.
	if containsAny(textLow, descriptionPatterns) {
		return Result{Intent: IntentInfoDescription, Confidence: 0.9, Text: text}
	}

	// 13b. Vegetarian options. Before the add rule so "i want veg options"
	// is not treated as an order.
	if containsAny(textLow, vegetarianPatterns) {
		return Result{Intent: IntentInfoVegetarian, Confidence: 0.85, Text: text}
	}

	// 14. Add: explicit "<number> <phrase>" first, then any add keyword.
	if quantityPhraseRe.MatchString(textLow) {
		return Result{
			Intent:               IntentOrderAdd,
			Confidence:           0.9,
			Text:                 text,
			Quantity:             ExtractQuantity(textLow, 1),
			RequiresConfirmation: true,
		}
	}
	if containsAny(textLow, addPatterns) || containsAny(textLow, addKeywordExtras) {
		return Result{
			Intent:               IntentOrderAdd,
			Confidence:           0.85,
			Text:                 text,
			Quantity:             ExtractQuantity(textLow, 1),
			RequiresConfirmation: true,
		}
	}

	// 15. Restaurant info.
	if containsAny(textLow, restaurantInfoPatterns) {
		return Result{Intent: IntentRestaurantInfo, Confidence: 0.9, Text: text}
	}

	// 16. Catalog scan: a known item name plus a digit or small number word.
	for _, entry := range c.repo.Items() {
		if !strings.Contains(textLow, strings.ToLower(entry.Item.Name)) {
			continue
		}
		if strings.ContainsAny(textLow, "0123456789") || containsAny(textLow, smallNumberWords) {
			return Result{
				Intent:               IntentOrderAdd,
				Confidence:           0.8,
				Text:                 text,
				Quantity:             ExtractQuantity(textLow, 1),
				RequiresConfirmation: true,
			}
		}
	}

	// 17. Short queries read as bare dish names. This outranks the "i am"
	// rule below: a terse utterance is a lookup, never a commitment.
	if len(words) <= 3 && !containsAny(textLow, smallTalkTokens) {
		return Result{Intent: IntentInfoDescription, Confidence: 0.6, Text: text}
	}

	// 18. "i am" variants, a common mishearing of "yes".
	switch textLow {
	case "i am", "as i am", "i am.", "as i am.":
		return Result{Intent: IntentOrderConfirm, Confidence: 0.7, Confirmed: true}
	}

	// 19. Goodbye, answered like thanks.
	if containsAny(textLow, goodbyePatterns) {
		return Result{Intent: IntentThanks, Confidence: 0.8}
	}

	// 20. Unknown.
	return Result{Intent: IntentUnknown, Confidence: 0.0, Text: text}
}
