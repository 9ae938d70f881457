package command

import "strings"

var terminationPhrases = []string{
	"stop listening",
	"stop voice control",
	"stop voice commands",
	"turn off voice control",
	"end session",
	"stop session",
}

// IsTermination reports an exact session-termination phrase.
func IsTermination(text string) bool {
	return oneOf(Normalize(text), terminationPhrases...)
}

// IsNegative recognizes refusals. It is checked before IsAffirmative by
// callers since "disagree" and "don't agree" contain "agree".
func IsNegative(text string) bool {
	text = Normalize(text)
	if oneOf(text, "no", "nope", "cancel", "disagree", "don't agree", "no thanks", "no thank you") {
		return true
	}
	return containsAny(text, "disagree", "don't agree", "do not agree")
}

// IsAffirmative recognizes agreement: one of the exact phrases, or a short
// utterance (at most three words) containing "yes" or "agree".
func IsAffirmative(text string) bool {
	text = Normalize(text)
	if IsNegative(text) {
		return false
	}
	if oneOf(text, "yes", "agree", "i agree", "confirm", "i do") {
		return true
	}
	if wordCount(text) > 3 {
		return false
	}
	return hasWord(text, func(w string) bool {
		return w == "yes" || strings.HasPrefix(w, "agree")
	})
}
