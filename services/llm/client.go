package llm

import (
	"context"

	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// RewriteResult carries the rewritten text plus the usage accounting
// the pipeline aggregates per job.
type RewriteResult struct {
	Text       string               `json:"text"`
	TokenUsage datatypes.TokenUsage `json:"token_usage"`
	Model      string               `json:"model"`
}

// Rewriter defines the standard interface for any generative rewrite backend.
// TODO: add a streaming variant for very long documents.
type Rewriter interface {
	Rewrite(ctx context.Context, text, prompt string, params GenerationParams) (*RewriteResult, error)
	HealthCheck(ctx context.Context) error
}
