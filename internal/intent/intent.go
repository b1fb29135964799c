// Package intent provides the keyword heuristics that route a message into
// the scheduling flow, plus email extraction from free-form chat text.
package intent

import (
	"regexp"
	"strings"
)

// schedulingKeywords is the fixed keyword set for scheduling detection.
// Deliberately coarse: false positives are acceptable because the scheduling
// flow degrades to an email prompt the user can ignore.
var schedulingKeywords = []string{
	"schedule", "appointment", "meeting", "book", "reserve",
	"calendar", "availability", "available", "time", "date",
	"call", "consultation", "viewing", "visit",
}

// emailRe is a permissive single-match email pattern. It runs against casual
// chat text, so RFC 5322 completeness is not a goal.
var emailRe = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)

// HasSchedulingIntent reports whether the text contains any scheduling
// keyword as a case-insensitive substring. Empty input is never intent.
func HasSchedulingIntent(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range schedulingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ExtractEmail returns the first email address found in the text. Subsequent
// matches in the same message are ignored.
func ExtractEmail(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	match := emailRe.FindString(text)
	if match == "" {
		return "", false
	}
	return match, true
}
