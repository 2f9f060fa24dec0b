package summarize

import "context"

// Static is a canned summarizer used in tests and offline setups. It
// returns the configured response for every request, or the configured
// error.
type Static struct {
	Window   int
	Response Response
	Err      error

	// Calls records every request, for assertions.
	Calls []Request
}

// NewStatic creates a canned summarizer with a small context window.
func NewStatic(resp Response) *Static {
	return &Static{Window: smallWindow, Response: resp}
}

func (s *Static) ContextWindow() int {
	if s.Window <= 0 {
		return smallWindow
	}
	return s.Window
}

func (s *Static) Summarize(_ context.Context, req Request) (*Response, error) {
	s.Calls = append(s.Calls, req)
	if s.Err != nil {
		return nil, s.Err
	}
	resp := s.Response
	return &resp, nil
}
