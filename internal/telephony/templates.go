package telephony

import (
	"fmt"
	"math/rand"
)

// missedCallTemplates rotate so repeat callers don't receive the exact
// same text twice in a row. Every template names the business and
// carries the opt-out notice.
var missedCallTemplates = []string{
	"Hi! You just called %s - sorry we missed you. How can we help? Reply here and we'll get right back to you. Reply STOP to opt out.",
	"Sorry we missed your call at %s! Text us what you need and we'll respond ASAP. Reply STOP to opt out.",
	"Thanks for calling %s. We couldn't pick up, but we're on it - just reply with what you need. Reply STOP to opt out.",
	"You reached %s. Sorry we couldn't answer! Describe the issue here and we'll get back to you right away. Reply STOP to opt out.",
}

// MissedCallText picks a template at random and fills in the business
// name.
func MissedCallText(businessName string) string {
	tpl := missedCallTemplates[rand.Intn(len(missedCallTemplates))]
	return fmt.Sprintf(tpl, businessName)
}

// EmergencyAckText confirms an urgent request is being escalated.
func EmergencyAckText(businessName string) string {
	return fmt.Sprintf("Got it - this sounds urgent. %s has been notified and someone will reach out right away. Reply STOP to opt out.", businessName)
}

// StandardAckText confirms receipt of a routine request.
func StandardAckText(businessName string) string {
	return fmt.Sprintf("Thanks for the details! %s will get back to you shortly. Reply STOP to opt out.", businessName)
}

// ReviewLinkText thanks a happy customer and shares the review link.
func ReviewLinkText(businessName, reviewLink string) string {
	return fmt.Sprintf("So glad to hear it! If you have a minute, a quick review means a lot to %s: %s Reply STOP to opt out.", businessName, reviewLink)
}

// ApologyText responds to negative review feedback.
func ApologyText(businessName string) string {
	return fmt.Sprintf("We're really sorry to hear that. The owner of %s has been alerted and will make it right. Reply STOP to opt out.", businessName)
}
