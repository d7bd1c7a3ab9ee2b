// Package dialog composes the NLU components into per-turn conversation
// logic: classify the utterance, apply business policy, mutate the order
// through its confirmation workflow and produce a spoken reply.
//
// The orchestrator is synchronous and deterministic. The only
// non-deterministic path is the defer-to-LLM signal for unmatched small
// talk; the caller owns that model call.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rnmehta/dinevox/internal/action"
	"github.com/rnmehta/dinevox/internal/menu"
	"github.com/rnmehta/dinevox/internal/nlu"
	"github.com/rnmehta/dinevox/internal/order"
	"github.com/rnmehta/dinevox/internal/policy"
)

// defaultLLMConfidenceThreshold gates the defer-to-LLM signal on Unknown.
const defaultLLMConfidenceThreshold = 0.5

// foodKeywords block the LLM fallback: an unmatched utterance naming food
// gets a deterministic clarification instead of a model answer.
var foodKeywords = []string{
	"coffee", "naan", "tikka", "chicken", "paneer", "dal",
	"tea", "roll", "butter", "garlic", "cold", "masala",
	"gulab", "jamun", "spring", "biryani",
}

// vegKeywords identify vegetarian items by name for the veg-options query.
var vegKeywords = []string{"paneer", "veg", "dal", "aloo", "mushroom", "gobi", "sabzi"}

// ActionService finalizes orders. Satisfied by *action.Service.
type ActionService interface {
	Finalize(ctx context.Context, snap order.Snapshot) (action.Receipt, error)
}

// Reply is the outcome of one turn.
type Reply struct {
	// Text is the spoken answer. Empty only when DeferToLLM is set.
	Text string

	// DeferToLLM asks the caller to answer with the fallback model instead.
	// Set only for unknown intents with low confidence and no food signal.
	DeferToLLM bool

	// Intent and Confidence echo the classification for logging and
	// history labeling.
	Intent     nlu.Intent
	Confidence float64
}

// Session is the per-conversation state the orchestrator works on. The
// caller must serialize turns per session.
type Session struct {
	Order   *order.State
	History *History
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{Order: order.New(), History: &History{}}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithLLMConfidenceThreshold sets the Unknown-intent confidence below which
// a turn may defer to the LLM. Default 0.5.
func WithLLMConfidenceThreshold(t float64) Option {
	return func(o *Orchestrator) { o.llmThreshold = t }
}

// DescriptionSearchFunc resolves descriptive queries ("something creamy with
// chicken") to the name of the closest menu item. ok is false when nothing
// plausible was found or the backing index is unavailable.
type DescriptionSearchFunc func(ctx context.Context, query string) (itemName string, ok bool)

// WithDescriptionSearch installs a similarity-search fallback for description
// queries that the lexical matcher cannot resolve. Optional; without it such
// queries get the deterministic no-information reply.
func WithDescriptionSearch(fn DescriptionSearchFunc) Option {
	return func(o *Orchestrator) { o.descSearch = fn }
}

// Orchestrator drives one conversation turn at a time. Safe for concurrent
// use across sessions; a single session must not process turns in parallel.
type Orchestrator struct {
	repo         menu.Repository
	matcher      *nlu.Matcher
	classifier   *nlu.Classifier
	policy       policy.Service
	actions      ActionService
	logger       *slog.Logger
	llmThreshold float64
	descSearch   DescriptionSearchFunc
}

// New wires an Orchestrator. repo, policySvc and actions must not be nil.
func New(repo menu.Repository, policySvc policy.Service, actions ActionService, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:         repo,
		matcher:      nlu.NewMatcher(repo),
		classifier:   nlu.NewClassifier(repo),
		policy:       policySvc,
		actions:      actions,
		logger:       slog.Default(),
		llmThreshold: defaultLLMConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessTurn handles one utterance against the session state and returns
// the reply. It never returns an error for bad input; every recoverable
// condition maps to a deterministic message.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sess *Session, text string) Reply {
	if !nlu.IsEnglish(text) {
		return Reply{Text: nonEnglishReply(), Intent: nlu.IntentUnknown}
	}

	corrected := nlu.ApplyPhoneticCorrections(text)
	result := o.classifier.Route(corrected, sess.Order.HasPending())

	sess.History.Append(Turn{
		Role:       "user",
		Text:       text,
		Intent:     result.Intent.String(),
		Confidence: result.Confidence,
	})

	o.logger.Debug("turn classified",
		"intent", result.Intent.String(),
		"confidence", result.Confidence,
		"pending", sess.Order.HasPending())

	if result.Intent.IsOrderMutation() {
		if open, closedMsg := o.policy.IsRestaurantOpen(); !open {
			return Reply{Text: closedMsg, Intent: result.Intent, Confidence: result.Confidence}
		}
	}

	reply := o.dispatch(ctx, sess, corrected, result)
	reply.Intent = result.Intent
	reply.Confidence = result.Confidence

	if reply.Text != "" {
		sess.History.Append(Turn{Role: "assistant", Text: reply.Text, Intent: result.Intent.String()})
	}
	return reply
}

func (o *Orchestrator) dispatch(ctx context.Context, sess *Session, text string, result nlu.Result) Reply {
	switch result.Intent {
	case nlu.IntentGreeting:
		return Reply{Text: greetingReply()}
	case nlu.IntentAudibility:
		return Reply{Text: audibilityReply()}
	case nlu.IntentThanks:
		for _, w := range []string{"bye", "goodbye", "see you"} {
			if strings.Contains(text, w) {
				return Reply{Text: goodbyeReply()}
			}
		}
		return Reply{Text: thanksReply()}
	case nlu.IntentOrderConfirm:
		return o.handleConfirm(sess, text, result)
	case nlu.IntentOrderSummary:
		return Reply{Text: sess.Order.Describe()}
	case nlu.IntentOrderClear:
		sess.Order.Clear()
		return Reply{Text: orderClearedReply()}
	case nlu.IntentOrderRemove:
		return o.handleRemove(sess, text)
	case nlu.IntentOrderUpdate:
		return o.handleUpdate(sess, text)
	case nlu.IntentInfoPrice:
		return o.handlePrice(text)
	case nlu.IntentInfoMenu:
		return o.handleMenu(text)
	case nlu.IntentInfoDescription:
		return o.handleDescription(ctx, sess, text)
	case nlu.IntentInfoVegetarian:
		return o.handleVegetarian()
	case nlu.IntentOrderAdd:
		return o.handleAdd(sess, text, result.Quantity)
	case nlu.IntentOrderFinalize:
		return o.handleFinalize(ctx, sess, text)
	case nlu.IntentOrderBilling:
		return o.handleBilling(sess)
	case nlu.IntentRestaurantInfo:
		return o.handleRestaurantInfo(text)
	default:
		return o.handleUnknown(text, result)
	}
}

// handleConfirm resolves a pending confirmation. A confirm with nothing
// pending is not an error, it prompts for what to confirm.
func (o *Orchestrator) handleConfirm(sess *Session, text string, result nlu.Result) Reply {
	pending := sess.Order.Pending()
	if pending == nil {
		switch strings.TrimSpace(text) {
		case "i am", "as i am", "i am.", "as i am.":
			return Reply{Text: "What would you like to add to your order?"}
		}
		return Reply{Text: "What would you like to confirm?"}
	}

	if !result.Confirmed {
		sess.Order.ClearPending()
		return Reply{Text: "Okay, not adding it. What else would you like?"}
	}

	switch pending.Kind {
	case order.PendingUpdate:
		item := pending.Items[0]
		sess.Order.ClearPending()
		if sess.Order.UpdateQuantity(item.Name, item.Qty) {
			return Reply{Text: itemUpdatedReply(item.Name, item.Qty) + " " + sess.Order.Describe()}
		}
		return Reply{Text: fmt.Sprintf("%s is not in your order.", item.Name)}

	case order.PendingRemove:
		item := pending.Items[0]
		sess.Order.ClearPending()
		if sess.Order.RemoveItem(item.Name, item.Qty) {
			msg := itemRemovedReply(item.Name, item.Qty)
			if sess.Order.IsEmpty() {
				return Reply{Text: msg + " Your order is now empty."}
			}
			return Reply{Text: msg + " " + sess.Order.Describe()}
		}
		return Reply{Text: fmt.Sprintf("%s is not in your order.", item.Name)}

	default: // order.PendingAdd
		var added []string
		for _, item := range pending.Items {
			available, availMsg := o.policy.CheckItemAvailability(item.Name)
			if !available {
				sess.Order.ClearPending()
				return Reply{Text: availMsg}
			}
			sess.Order.AddItem(item.Name, item.Price, item.Qty, item.Variant, item.Addons, item.Allergens)
			added = append(added, fmt.Sprintf("%d %s", item.Qty, item.Name))
		}
		sess.Order.ClearPending()
		return Reply{Text: fmt.Sprintf("Added %s. %s", strings.Join(added, ", "), sess.Order.Describe())}
	}
}

func (o *Orchestrator) handleRemove(sess *Session, text string) Reply {
	matches := o.matcher.FindAllDishMatches(text)
	if len(matches) == 0 || matches[0].Score < nlu.AcceptScore {
		// The matcher missed, but the user may have named an ordered item
		// verbatim.
		for _, line := range sess.Order.Lines() {
			if !strings.Contains(text, strings.ToLower(line.Name)) {
				continue
			}
			qty, _ := nlu.Quantity(text)
			sess.Order.SetPending(&order.Pending{
				Kind:  order.PendingRemove,
				Items: []order.PendingItem{{Name: line.Name, Qty: qty}},
			})
			return Reply{Text: removeConfirmationPrompt(line.Name, qty)}
		}
		return Reply{Text: "I couldn't find that item in your order. Please specify which item you want to remove."}
	}

	item := matches[0].Entry.Item
	if sess.Order.Quantity(item.Name) == 0 {
		return Reply{Text: fmt.Sprintf("%s is not in your order.", item.Name)}
	}
	qty, _ := nlu.Quantity(text)
	sess.Order.SetPending(&order.Pending{
		Kind:  order.PendingRemove,
		Items: []order.PendingItem{{Name: item.Name, Qty: qty}},
	})
	return Reply{Text: removeConfirmationPrompt(item.Name, qty)}
}

func (o *Orchestrator) handleUpdate(sess *Session, text string) Reply {
	// Correction phrases carry the target as a bare trailing number
	// ("change cold coffee to three"), which the add-path extractor
	// deliberately ignores.
	qty := nlu.BareQuantity(text, 1)

	matches := o.matcher.FindAllDishMatches(text)
	if len(matches) == 0 || matches[0].Score < nlu.AcceptScore {
		for _, line := range sess.Order.Lines() {
			if !strings.Contains(text, strings.ToLower(line.Name)) {
				continue
			}
			sess.Order.SetPending(&order.Pending{
				Kind:  order.PendingUpdate,
				Items: []order.PendingItem{{Name: line.Name, Qty: qty}},
			})
			return Reply{Text: updateConfirmationPrompt(line.Name, qty)}
		}
		return Reply{Text: "I couldn't find that item to update. Please specify which item you want to update."}
	}

	item := matches[0].Entry.Item
	if sess.Order.Quantity(item.Name) == 0 {
		return Reply{Text: fmt.Sprintf("%s is not in your order yet. Would you like to add it?", item.Name)}
	}
	sess.Order.SetPending(&order.Pending{
		Kind:  order.PendingUpdate,
		Items: []order.PendingItem{{Name: item.Name, Qty: qty}},
	})
	return Reply{Text: updateConfirmationPrompt(item.Name, qty)}
}

func (o *Orchestrator) handlePrice(text string) Reply {
	phrases := []string{text}
	for _, sep := range []string{" and ", ",", " with "} {
		if strings.Contains(text, sep) {
			phrases = phrases[:0]
			for _, p := range strings.Split(text, sep) {
				if p = strings.TrimSpace(p); p != "" {
					phrases = append(phrases, p)
				}
			}
			break
		}
	}

	var prices []string
	for _, phrase := range phrases {
		matches := o.matcher.FindAllDishMatches(phrase)
		if len(matches) > 0 && matches[0].Score >= nlu.AcceptScore {
			item := matches[0].Entry.Item
			prices = append(prices, priceReply(item.Name, item.Price))
		}
	}
	if len(prices) == 0 {
		return Reply{Text: itemNotFoundReply()}
	}
	return Reply{Text: strings.Join(prices, " | ")}
}

func (o *Orchestrator) handleMenu(text string) Reply {
	// A category named in the query lists that category in full.
	for _, cat := range o.repo.Menu() {
		if !strings.Contains(text, strings.ToLower(cat.Name)) {
			continue
		}
		names := make([]string, 0, len(cat.Items))
		for _, i := range cat.Items {
			names = append(names, i.Name)
		}
		return Reply{Text: fmt.Sprintf("%s: %s", cat.Name, strings.Join(names, ", "))}
	}

	wantsItems := false
	for _, w := range []string{"items", "dishes", "foods", "options", "list"} {
		if strings.Contains(text, w) {
			wantsItems = true
			break
		}
	}

	if wantsItems {
		var sections []string
		for _, cat := range o.repo.Menu() {
			items := cat.Items
			if len(items) > 2 {
				items = items[:2]
			}
			names := make([]string, 0, len(items))
			for _, i := range items {
				names = append(names, i.Name)
			}
			if len(names) > 0 {
				sections = append(sections, fmt.Sprintf("%s: %s", cat.Name, strings.Join(names, ", ")))
			}
		}
		return Reply{Text: menuItemsReply(sections)}
	}

	var categories []string
	for _, cat := range o.repo.Menu() {
		categories = append(categories, cat.Name)
	}
	return Reply{Text: menuCategoriesReply(categories)}
}

func (o *Orchestrator) handleDescription(ctx context.Context, sess *Session, text string) Reply {
	const noInfoReply = "I don't have information about that dish. Could you ask about something from our menu?"

	var item menu.Item
	match, ok := o.matcher.BestDishMatch(text)
	switch {
	case ok && match.Score >= nlu.AcceptScore:
		item = match.Entry.Item
	case o.descSearch != nil:
		name, found := o.descSearch(ctx, text)
		if !found {
			return Reply{Text: noInfoReply}
		}
		entry, present := o.repo.Find(name)
		if !present {
			return Reply{Text: noInfoReply}
		}
		item = entry.Item
	default:
		return Reply{Text: noInfoReply}
	}

	// A short bare dish name reads as interest in ordering, not a
	// description request.
	if len(strings.Fields(text)) <= 3 {
		if qty := sess.Order.Quantity(item.Name); qty > 0 {
			return Reply{Text: fmt.Sprintf("You have %d %s in your order. Would you like to add more?", qty, item.Name)}
		}
	}

	desc := item.Description
	if desc == "" {
		desc = "No description available"
	}
	reply := fmt.Sprintf("%s: %s. Price: %.0f rupees.", item.Name, desc, item.Price)
	if len(item.Variants) > 0 {
		parts := make([]string, 0, len(item.Variants))
		for _, v := range item.Variants {
			parts = append(parts, fmt.Sprintf("%s: %.0f rupees", v.Name, v.Price))
		}
		reply += " Available sizes: " + strings.Join(parts, ", ") + "."
	}
	if len(item.Allergens) > 0 {
		reply += " Contains: " + strings.Join(item.Allergens, ", ") + "."
	}
	return Reply{Text: reply}
}

func (o *Orchestrator) handleVegetarian() Reply {
	var names []string
	for _, entry := range o.repo.Items() {
		nameLow := strings.ToLower(entry.Item.Name)
		for _, kw := range vegKeywords {
			if strings.Contains(nameLow, kw) {
				names = append(names, entry.Item.Name)
				break
			}
		}
		if len(names) == 5 {
			break
		}
	}
	if len(names) == 0 {
		return Reply{Text: "We have vegetarian options. You can ask for Paneer dishes, Dal Makhani, or Veg Biryani."}
	}
	return Reply{Text: "Some vegetarian options are: " + strings.Join(names, ", ") + "."}
}

// handleAdd proposes additions; nothing is committed until the user
// confirms. Matches below the acceptance score never auto-commit.
func (o *Orchestrator) handleAdd(sess *Session, text string, qty int) Reply {
	phrases := nlu.DetectMultipleDishes(text)

	var pendingItems []order.PendingItem
	for _, phrase := range phrases {
		itemQty := qty
		if len(phrases) > 1 {
			itemQty = nlu.ExtractQuantity(phrase, 1)
		} else if q, ok := nlu.Quantity(phrase); ok {
			itemQty = q
		}

		matches := o.matcher.FindAllDishMatches(phrase)
		if len(matches) == 0 {
			matches = o.matcher.FindAllDishMatches(nlu.StripQuantityWords(phrase))
		}
		if len(matches) == 0 || matches[0].Score < nlu.AcceptScore {
			continue
		}
		item := matches[0].Entry.Item

		available, availMsg := o.policy.CheckItemAvailability(item.Name)
		if !available {
			return Reply{Text: availMsg}
		}

		variant := detectVariant(phrase, item)
		addons := detectAddons(phrase, item)
		price := item.PriceFor(variant)
		for _, a := range addons {
			price += item.AddonPrice(a)
		}

		pendingItems = append(pendingItems, order.PendingItem{
			Name:      item.Name,
			Qty:       itemQty,
			Price:     price,
			Variant:   variant,
			Addons:    addons,
			Allergens: item.Allergens,
		})
	}

	if len(pendingItems) == 0 {
		switch strings.TrimSpace(text) {
		case "more", "add more", "i want to add more":
			if sess.Order.IsEmpty() {
				return Reply{Text: "Your order is empty. What would you like to add?"}
			}
			return Reply{Text: "What item would you like to add more of?"}
		}
		return Reply{Text: itemNotFoundReply()}
	}

	sess.Order.SetPending(&order.Pending{Kind: order.PendingAdd, Items: pendingItems})

	if len(pendingItems) == 1 {
		item := pendingItems[0]
		return Reply{Text: addConfirmationPrompt(describePendingItem(item), item.Qty, item.Price)}
	}
	parts := make([]string, 0, len(pendingItems))
	for _, item := range pendingItems {
		parts = append(parts, fmt.Sprintf("%d %s (%.0f rupees)",
			item.Qty, describePendingItem(item), float64(item.Qty)*item.Price))
	}
	return Reply{Text: fmt.Sprintf("Do you want to add: %s to your order?", strings.Join(parts, ", "))}
}

// detectVariant returns the first variant whose name appears in the phrase.
func detectVariant(phrase string, item menu.Item) string {
	for _, v := range item.Variants {
		if strings.Contains(phrase, strings.ToLower(v.Name)) {
			return v.Name
		}
	}
	return ""
}

// detectAddons returns every addon named in the phrase, in catalog order.
func detectAddons(phrase string, item menu.Item) []string {
	var addons []string
	for _, a := range item.Addons {
		if strings.Contains(phrase, strings.ToLower(a.Name)) {
			addons = append(addons, a.Name)
		}
	}
	return addons
}

func describePendingItem(item order.PendingItem) string {
	name := item.Name
	if item.Variant != "" {
		name += " (" + item.Variant + ")"
	}
	if len(item.Addons) > 0 {
		name += " with " + strings.Join(item.Addons, ", ")
	}
	return name
}

func (o *Orchestrator) handleFinalize(ctx context.Context, sess *Session, text string) Reply {
	if sess.Order.IsEmpty() {
		return Reply{Text: "Your order is empty. Please add items first."}
	}

	if name, phone := nlu.ExtractCustomerDetails(text); name != "" || phone != "" {
		sess.Order.SetCustomerDetails(name, phone)
	}

	// The order only persists once both details are known; until then the
	// caller is prompted for whatever is still missing.
	cust := sess.Order.Customer()
	var missing []string
	if cust.Name == "" {
		missing = append(missing, "name")
	}
	if cust.Phone == "" {
		missing = append(missing, "phone number")
	}
	if len(missing) > 0 {
		return Reply{Text: fmt.Sprintf("Please provide your %s to confirm the order.", strings.Join(missing, " and "))}
	}

	receipt, err := o.actions.Finalize(ctx, sess.Order.Snapshot())
	if err != nil {
		o.logger.Error("order finalization failed", "err", err)
		return Reply{Text: "Sorry, there was an error processing your order. Please try again."}
	}

	sess.Order.Clear()
	return Reply{Text: receipt.Message}
}

func (o *Orchestrator) handleBilling(sess *Session) Reply {
	if sess.Order.IsEmpty() {
		return Reply{Text: "Your order is empty. Please add items first."}
	}
	return Reply{Text: fmt.Sprintf("Your bill total is %.0f rupees. Would you like to place the order?", sess.Order.Subtotal())}
}

func (o *Orchestrator) handleRestaurantInfo(text string) Reply {
	rest := o.repo.RestaurantInfo()
	if strings.Contains(text, "name") || strings.Contains(text, "restaurant") {
		return Reply{Text: fmt.Sprintf("Our restaurant name is %s.", rest.Name)}
	}
	if strings.Contains(text, "address") || strings.Contains(text, "location") {
		return Reply{Text: fmt.Sprintf("We are located at %s.", rest.Address)}
	}
	if strings.Contains(text, "phone") || strings.Contains(text, "contact") || strings.Contains(text, "number") {
		return Reply{Text: fmt.Sprintf("You can reach us at %s.", rest.Phone)}
	}
	return Reply{Text: fmt.Sprintf("We are %s, located at %s. Phone: %s.", rest.Name, rest.Address, rest.Phone)}
}

// handleUnknown decides between a deterministic clarification and the LLM
// fallback. Food-flavored text never reaches the model.
func (o *Orchestrator) handleUnknown(text string, result nlu.Result) Reply {
	for _, kw := range foodKeywords {
		if strings.Contains(text, kw) {
			return Reply{Text: "Could you please clarify what you'd like to order?"}
		}
	}
	if result.Confidence < o.llmThreshold {
		return Reply{DeferToLLM: true}
	}
	return Reply{Text: clarificationReply()}
}
