package llm

import (
	"context"
	"sync/atomic"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

// StaticRewriter is a scriptable Rewriter for tests and dry runs.
// Transform defaults to identity; Err, when set, is returned for every
// call (after ErrCount calls have failed, subsequent calls succeed when
// ErrCount > 0).
//
// # Thread Safety
//
// Safe for concurrent use; pool workers share one instance.
type StaticRewriter struct {
	Transform func(text, prompt string) string
	Err       error
	ErrCount  int

	calls atomic.Int64
}

// Calls returns how many times Rewrite has been invoked.
func (s *StaticRewriter) Calls() int { return int(s.calls.Load()) }

func (s *StaticRewriter) Rewrite(ctx context.Context, text, prompt string, params GenerationParams) (*RewriteResult, error) {
	n := int(s.calls.Add(1))
	if s.Err != nil {
		if s.ErrCount == 0 || n <= s.ErrCount {
			return nil, s.Err
		}
	}
	out := text
	if s.Transform != nil {
		out = s.Transform(text, prompt)
	}
	return &RewriteResult{
		Text: out,
		TokenUsage: datatypes.TokenUsage{
			Prompt:     len(text) / 4,
			Completion: len(out) / 4,
			Total:      (len(text) + len(out)) / 4,
		},
		Model: "static",
	}, nil
}

func (s *StaticRewriter) HealthCheck(ctx context.Context) error { return nil }

var _ Rewriter = (*StaticRewriter)(nil)
