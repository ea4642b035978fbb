package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/HumanizerFOSS/pkg/secrets"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/datatypes"
	"github.com/AleutianAI/HumanizerFOSS/services/pipeline/faults"
)

type OpenAIRewriter struct {
	client *openai.Client
	model  string
}

// NewOpenAIRewriter builds a rewriter backed by the OpenAI chat API.
// The API key comes from OPENAI_API_KEY, falling back to the container
// secret at /run/secrets/openai_api_key.
func NewOpenAIRewriter() (*OpenAIRewriter, error) {
	enclave, err := secrets.Load("OPENAI_API_KEY", "/run/secrets/openai_api_key")
	if err != nil {
		slog.Error("OpenAI API key not found", "error", err)
		return nil, fmt.Errorf("OPENAI_API_KEY not set: %w", err)
	}
	return NewOpenAIRewriterWithKey(enclave)
}

// NewOpenAIRewriterWithKey builds a rewriter from an already-loaded key
// enclave. The model comes from OPENAI_MODEL, defaulting to gpt-4o-mini.
func NewOpenAIRewriterWithKey(enclave *memguard.Enclave) (*OpenAIRewriter, error) {
	key, release, err := secrets.Open(enclave)
	if err != nil {
		return nil, err
	}
	defer release()

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI rewriter", "model", model)
	return &OpenAIRewriter{
		client: openai.NewClient(key),
		model:  model,
	}, nil
}

// Rewrite implements the Rewriter interface. The humanization prompt
// rides as the system message, the chunk text as the user message.
func (o *OpenAIRewriter) Rewrite(ctx context.Context, text, prompt string, params GenerationParams) (*RewriteResult, error) {
	slog.Debug("Rewriting text via OpenAI", "model", o.model, "text_chars", len(text))
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		classified := classifyOpenAIError(err)
		slog.Error("OpenAI API call failed", "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", classified)
	}

	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return nil, faults.NewTransient(faults.CodeUnknownError, 0, "OpenAI returned no choices", nil)
	}

	return &RewriteResult{
		Text: resp.Choices[0].Message.Content,
		TokenUsage: datatypes.TokenUsage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		Model: o.model,
	}, nil
}

// HealthCheck verifies the API is reachable with the configured key.
func (o *OpenAIRewriter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := o.client.ListModels(ctx); err != nil {
		return fmt.Errorf("OpenAI health check failed: %w", err)
	}
	return nil
}

// classifyOpenAIError maps an API error onto the pipeline taxonomy.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return faults.ClassifyStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	// No status available: network-level fault, retryable
	return faults.NewTransient(faults.CodeUnknownError, 0, err.Error(), err)
}

var _ Rewriter = (*OpenAIRewriter)(nil)
