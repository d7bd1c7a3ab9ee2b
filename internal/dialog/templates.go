package dialog

import (
	"fmt"
	"strings"
)

// Deterministic reply templates. Keeping them in one place makes the spoken
// surface reviewable without reading handler logic.

func greetingReply() string {
	return "Hello! Welcome to our restaurant. How can I help you today?"
}

func audibilityReply() string {
	return "Yes, I can hear you. How can I help?"
}

func thanksReply() string {
	return "You're welcome."
}

func goodbyeReply() string {
	return "Goodbye! Thank you for visiting us. Have a great day!"
}

func priceReply(name string, price float64) string {
	return fmt.Sprintf("%s costs %.0f rupees", name, price)
}

func addConfirmationPrompt(name string, qty int, price float64) string {
	return fmt.Sprintf("Do you want to add %d %s for %.0f rupees to your order?", qty, name, float64(qty)*price)
}

func updateConfirmationPrompt(name string, qty int) string {
	return fmt.Sprintf("Do you want to update %s to %d?", name, qty)
}

func removeConfirmationPrompt(name string, qty int) string {
	if qty > 0 {
		return fmt.Sprintf("Do you want to remove %d %s from your order?", qty, name)
	}
	return fmt.Sprintf("Do you want to remove %s from your order?", name)
}

func itemUpdatedReply(name string, qty int) string {
	return fmt.Sprintf("Updated %s quantity to %d.", name, qty)
}

func itemRemovedReply(name string, qty int) string {
	if qty > 0 {
		return fmt.Sprintf("Removed %d %s from your order.", qty, name)
	}
	return fmt.Sprintf("Removed %s from your order.", name)
}

func itemNotFoundReply() string {
	return "Sorry, I couldn't find that item. Could you please say the exact dish name?"
}

func clarificationReply() string {
	return "Could you please clarify what you'd like?"
}

func orderClearedReply() string {
	return "I've cleared your entire order. Would you like to start fresh?"
}

func nonEnglishReply() string {
	return "I'm sorry, I only understand English. Could you please speak in English?"
}

func menuCategoriesReply(categories []string) string {
	if len(categories) == 0 {
		return "Our menu is being updated right now."
	}
	return fmt.Sprintf("We have these categories: %s. What would you like to know more about?",
		strings.Join(categories, ", "))
}

func menuItemsReply(sections []string) string {
	if len(sections) == 0 {
		return "Here are some items from our menu: our current menu items."
	}
	return "Here are some items from our menu: " + strings.Join(sections, " | ")
}
