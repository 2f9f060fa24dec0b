package summarize

import (
	"context"
	"strings"
	"testing"
)

func TestComputeBudget_SectionsSumToInput(t *testing.T) {
	for _, window := range []int{0, 8_000, smallWindow, 50_000, mediumWindow, 200_000} {
		b := ComputeBudget(window)
		if b.UserPrompt+b.Activities+b.PriorContext != b.Input {
			t.Errorf("window %d: sections sum to %d, input is %d",
				window, b.UserPrompt+b.Activities+b.PriorContext, b.Input)
		}
		if b.Output <= 0 {
			t.Errorf("window %d: output budget = %d", window, b.Output)
		}
		if b.Input <= 0 || b.Input >= window && window > 0 {
			t.Errorf("window %d: input budget = %d", window, b.Input)
		}
	}
}

func TestComputeBudget_LargeWindowsCarryMoreContext(t *testing.T) {
	small := ComputeBudget(smallWindow)
	large := ComputeBudget(200_000)

	smallShare := float64(small.PriorContext) / float64(small.Input)
	largeShare := float64(large.PriorContext) / float64(large.Input)
	if largeShare <= smallShare {
		t.Errorf("prior context share: small %.2f, large %.2f", smallShare, largeShare)
	}
}

func TestTruncateToTokens(t *testing.T) {
	short := "untouched"
	if got := TruncateToTokens(short, 100); got != short {
		t.Errorf("short input changed: %q", got)
	}

	long := strings.Repeat("x", 1000)
	got := TruncateToTokens(long, 50)
	if len(got) > 200 {
		t.Errorf("truncated length = %d, want <= 200", len(got))
	}
	if !strings.HasSuffix(got, "... [truncated]") {
		t.Errorf("missing truncation marker: %q", got[len(got)-20:])
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		prompt          string
		writes, reads   int
		failures        int
		want            BatchClass
	}{
		{"fix the login crash", 2, 5, 0, ClassFix},
		{"refactor the parser into smaller files", 3, 2, 0, ClassRefactor},
		{"add retry support to the client", 1, 1, 0, ClassFeature},
		{"how does the scheduler work", 0, 8, 0, ClassExplore},
		// No word cue: writes imply a feature.
		{"update things", 2, 1, 0, ClassFeature},
		// No word cue, failures dominate writes: treat as a fix.
		{"run the suite", 0, 3, 4, ClassFix},
	}
	for _, tc := range cases {
		got := Classify(tc.prompt, tc.writes, tc.reads, tc.failures)
		if got != tc.want {
			t.Errorf("Classify(%q, w=%d, r=%d, f=%d) = %s, want %s",
				tc.prompt, tc.writes, tc.reads, tc.failures, got, tc.want)
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	req := Request{
		UserPrompt:      "fix the flaky websocket reconnect",
		FilesModified:   []string{"internal/ws/conn.go"},
		FilesRead:       []string{"internal/ws/conn_test.go"},
		CommandsRun:     []string{"go test ./internal/ws"},
		ActivityLines:   []string{"Edit internal/ws/conn.go", "Bash go test ./internal/ws [FAILED: exit 1]"},
		DurationMinutes: 12,
		PriorContext:    "previous batch established the reconnect backoff",
	}
	prompt := BuildPrompt(req, ClassFix, ComputeBudget(mediumWindow))

	for _, want := range []string{
		"fixing a problem",
		"## User Prompt",
		"fix the flaky websocket reconnect",
		"Files modified: internal/ws/conn.go",
		"Commands run: go test ./internal/ws",
		"### Tool activity",
		"## Prior Context",
		"memory_type",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.Contains(prompt, "(12 minutes)") {
		t.Error("prompt missing duration")
	}
}

func TestBuildPrompt_TruncatesOversizedActivity(t *testing.T) {
	lines := make([]string, 5000)
	for i := range lines {
		lines[i] = "Read some/long/path/file.go"
	}
	req := Request{ActivityLines: lines}
	prompt := BuildPrompt(req, ClassExplore, ComputeBudget(smallWindow))

	budget := ComputeBudget(smallWindow)
	// Activity section is capped near its budget, not the raw join.
	if len(prompt) > budget.Activities*4+2000 {
		t.Errorf("prompt length = %d, activity budget allows ~%d chars", len(prompt), budget.Activities*4)
	}
	if !strings.Contains(prompt, "[truncated]") {
		t.Error("oversized activity should carry the truncation marker")
	}
}

func TestParseResponse(t *testing.T) {
	content := "Here is the summary:\n```json\n" +
		`{"observations":[{"observation":"the reconnect loop swallows context cancellation","memory_type":"gotcha","importance":4}],` +
		`"session_summary":"Fixed websocket reconnect"}` + "\n```\nDone."
	resp, err := parseResponse(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(resp.Observations) != 1 || resp.Observations[0].MemoryType != "gotcha" {
		t.Errorf("observations = %+v", resp.Observations)
	}
	if resp.SessionSummary != "Fixed websocket reconnect" {
		t.Errorf("summary = %q", resp.SessionSummary)
	}
}

func TestParseResponse_DefaultsImportance(t *testing.T) {
	resp, err := parseResponse(`{"observations":[{"observation":"x","memory_type":"discovery"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Observations[0].Importance != 3 {
		t.Errorf("importance = %d, want the default 3", resp.Observations[0].Importance)
	}
}

func TestParseResponse_NoJSON(t *testing.T) {
	if _, err := parseResponse("I could not produce a summary."); err == nil {
		t.Error("prose without JSON should fail")
	}
}

func TestStatic_RecordsCalls(t *testing.T) {
	s := NewStatic(Response{SessionSummary: "canned"})
	resp, err := s.Summarize(context.Background(), Request{UserPrompt: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.SessionSummary != "canned" {
		t.Errorf("summary = %q", resp.SessionSummary)
	}
	if len(s.Calls) != 1 || s.Calls[0].UserPrompt != "anything" {
		t.Errorf("calls = %+v", s.Calls)
	}
	if s.ContextWindow() != smallWindow {
		t.Errorf("window = %d", s.ContextWindow())
	}
}
