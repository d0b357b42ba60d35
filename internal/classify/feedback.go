package classify

import "strings"

// Feedback verdicts for replies to a review request.
const (
	FeedbackNone     = "none"
	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
)

var positiveFeedback = map[string]bool{
	"good":      true,
	"great":     true,
	"awesome":   true,
	"excellent": true,
	"yes":       true,
}

var negativeFeedback = map[string]bool{
	"bad":      true,
	"poor":     true,
	"terrible": true,
	"horrible": true,
	"no":       true,
	"worst":    true,
}

// Feedback classifies a bare sentiment reply. Only the whole body counts,
// trailing punctuation aside; "no hot water" is a job request, not a
// review verdict.
func Feedback(body string) string {
	word := strings.ToLower(strings.TrimSpace(body))
	word = strings.TrimRight(word, ".!?,")
	if positiveFeedback[word] {
		return FeedbackPositive
	}
	if negativeFeedback[word] {
		return FeedbackNegative
	}
	return FeedbackNone
}
