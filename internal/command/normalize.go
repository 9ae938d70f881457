package command

import "strings"

var punctuation = strings.NewReplacer(
	".", " ", ",", " ", "!", " ", "?", " ", ";", " ", ":", " ", "\"", " ",
	"’", "'", "‘", "'",
)

// Normalize lower-cases text, folds curly apostrophes, drops sentence
// punctuation and collapses whitespace. Apostrophes inside words are kept so
// "don't" and "that's" survive.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = punctuation.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func hasWord(text string, pred func(string) bool) bool {
	for _, w := range strings.Fields(text) {
		if pred(w) {
			return true
		}
	}
	return false
}

func oneOf(text string, phrases ...string) bool {
	for _, p := range phrases {
		if text == p {
			return true
		}
	}
	return false
}

func containsAny(text string, fragments ...string) bool {
	for _, f := range fragments {
		if strings.Contains(text, f) {
			return true
		}
	}
	return false
}
