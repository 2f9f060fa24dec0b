package summarize

// Budget splits a backend's context window across the sections of one
// summarization request, in tokens. Roughly 70% of the window goes to
// input; the remainder is left for the model's output.
type Budget struct {
	Input        int
	UserPrompt   int
	Activities   int
	PriorContext int
	Output       int
}

// Window size thresholds for the budget split.
const (
	smallWindow  = 16_000
	mediumWindow = 100_000
)

const inputShare = 0.70

// ComputeBudget derives the per-section token budget from a context
// window. The input share is fixed; the split inside it scales with the
// window class — small windows sacrifice prior context for activity
// detail, large windows can afford more carried-over context.
func ComputeBudget(contextWindow int) Budget {
	if contextWindow <= 0 {
		contextWindow = smallWindow
	}
	input := int(float64(contextWindow) * inputShare)

	var promptShare, activityShare float64
	switch {
	case contextWindow <= smallWindow:
		promptShare, activityShare = 0.20, 0.70
	case contextWindow <= mediumWindow:
		promptShare, activityShare = 0.20, 0.60
	default:
		promptShare, activityShare = 0.25, 0.55
	}

	b := Budget{
		Input:      input,
		UserPrompt: int(float64(input) * promptShare),
		Activities: int(float64(input) * activityShare),
		Output:     contextWindow - input,
	}
	// Prior context takes whatever the split leaves, so sections always
	// sum exactly to the input allocation.
	b.PriorContext = b.Input - b.UserPrompt - b.Activities
	return b
}

// TruncateToTokens trims s to approximately maxTokens at 4 characters
// per token, marking the cut.
func TruncateToTokens(s string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(s) <= maxChars {
		return s
	}
	if maxChars <= 16 {
		return s[:maxChars]
	}
	return s[:maxChars-16] + "... [truncated]"
}
