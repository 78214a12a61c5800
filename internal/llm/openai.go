// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/northbound/hiverag/internal/errs"
)

type openAIClient struct {
	client     openai.Client
	model      string
	maxRetries int
}

func newOpenAIClient(apiKey, model string, maxRetries int) *openAIClient {
	return &openAIClient{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:      model,
		maxRetries: maxRetries,
	}
}

func (c *openAIClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(req.Messages),
		Model:    model,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}

	var completion *openai.ChatCompletion
	err := withRetry(ctx, c.maxRetries, func() error {
		var callErr error
		completion, callErr = c.client.Chat.Completions.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "llm.openai", err, "chat completion")
	}
	if len(completion.Choices) == 0 {
		return nil, errs.New(errs.Transient, "llm.openai", "no completion choices returned")
	}

	raw := completion.Choices[0].Message.Content
	structured, stage := coerce(raw, req.Schema)
	return &GenerateResult{Raw: raw, Structured: structured, FallbackStage: stage}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type openAIEmbedder struct {
	client openai.Client
	model  string
	dim    int
}

func newOpenAIEmbedder(apiKey, model string) *openAIEmbedder {
	dim := 1536
	switch model {
	case "text-embedding-3-large":
		dim = 3072
	case "text-embedding-ada-002":
		dim = 1536
	}
	return &openAIEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		dim:    dim,
	}
}

func (e *openAIEmbedder) Dimension() int { return e.dim }

func (e *openAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: e.model,
	})
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "llm.openai", err, "embeddings")
	}
	if len(resp.Data) != len(texts) {
		return nil, errs.New(errs.Transient, "llm.openai", "expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			out[i][j] = float32(v)
		}
	}
	return out, nil
}

func withRetry(ctx context.Context, maxRetries int, fn func() error) error {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("exhausted %d attempts: %w", maxRetries, lastErr)
}
