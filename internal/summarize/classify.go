package summarize

import "strings"

// BatchClass selects which prompt template a batch is summarized with.
type BatchClass string

const (
	ClassFix      BatchClass = "fix"
	ClassFeature  BatchClass = "feature"
	ClassRefactor BatchClass = "refactor"
	ClassExplore  BatchClass = "explore"
)

var fixWords = []string{"fix", "bug", "error", "crash", "panic", "regression", "broken", "fails", "failing"}
var refactorWords = []string{"refactor", "rename", "restructure", "clean up", "cleanup", "extract", "simplify"}
var featureWords = []string{"add", "implement", "create", "build", "support", "new "}

// Classify derives a batch class from the user prompt and the shape of
// the recorded activity. Word cues win; otherwise a batch that wrote
// files is a feature and a read-only batch is exploration.
func Classify(userPrompt string, writes, reads, failures int) BatchClass {
	prompt := strings.ToLower(userPrompt)

	if containsAny(prompt, fixWords) || failures > 0 && failures >= writes {
		return ClassFix
	}
	if containsAny(prompt, refactorWords) {
		return ClassRefactor
	}
	if containsAny(prompt, featureWords) {
		return ClassFeature
	}
	if writes > 0 {
		return ClassFeature
	}
	_ = reads
	return ClassExplore
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
