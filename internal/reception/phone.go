package reception

import (
	"regexp"
	"strings"
)

// Phrases the realtime model tends to hand back when the caller says
// "use the number I'm calling from" instead of reading out digits.
var selfReferencePhrases = []string{
	"this number",
	"same number",
	"my number",
	"current number",
	"the number",
	"this phone",
	"my phone",
	"same phone",
	"number i'm calling from",
	"number i am calling from",
	"the number provided",
	"number provided",
	"calling from",
}

var phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]+$`)

func isSelfReference(input string) bool {
	lowered := strings.ToLower(strings.TrimSpace(input))
	for _, phrase := range selfReferencePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// NormalizeContactNumber resolves a contact number collected during the
// conversation. Empty values and self-referential phrases resolve to the
// caller's line; anything else passes through verbatim.
func NormalizeContactNumber(input, callerNumber string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || isSelfReference(trimmed) {
		return callerNumber
	}
	return trimmed
}

// NormalizeCallbackNumber resolves a callback number. Callback numbers get
// stricter treatment than contact numbers: values that are too long to be a
// phone number or that fail a basic digit-shape check also resolve to the
// caller's line, since they are almost always transcribed sentences.
func NormalizeCallbackNumber(input, callerNumber string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || len(trimmed) > 20 || isSelfReference(trimmed) {
		return callerNumber
	}
	if !phonePattern.MatchString(trimmed) {
		return callerNumber
	}
	return trimmed
}
