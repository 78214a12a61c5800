// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/northbound/hiverag/internal/errs"
)

type ollamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
}

func newOllamaClient(baseURL, model string, maxRetries int) *ollamaClient {
	return &ollamaClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		maxRetries: maxRetries,
	}
}

func (c *ollamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	type chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	payload := struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
		Stream   bool          `json:"stream"`
	}{Model: model, Stream: false}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "llm.ollama", err, "marshal request")
	}

	var raw string
	err = withRetry(ctx, c.maxRetries, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(b))
		}

		var response struct {
			Message chatMessage `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return err
		}
		raw = response.Message.Content
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "llm.ollama", err, "chat")
	}

	structured, stage := coerce(raw, req.Schema)
	return &GenerateResult{Raw: raw, Structured: structured, FallbackStage: stage}, nil
}

type ollamaEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
	dim        int
}

func newOllamaEmbedder(baseURL, model string) *ollamaEmbedder {
	return &ollamaEmbedder{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		dim:        768,
	}
}

func (e *ollamaEmbedder) Dimension() int { return e.dim }

func (e *ollamaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	payload := struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{Model: e.model, Prompt: text}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "llm.ollama", err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "llm.ollama", err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "llm.ollama", err, "embeddings request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, errs.New(errs.Transient, "llm.ollama", "embeddings API error (status %d): %s", resp.StatusCode, string(b))
	}

	var response struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errs.Wrap(errs.Transient, "llm.ollama", err, "decode response")
	}

	out := make([]float32, len(response.Embedding))
	for i, v := range response.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

func (e *ollamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, errs.Wrap(errs.Transient, "llm.ollama", err, fmt.Sprintf("embed text %d", i))
		}
		out[i] = v
	}
	return out, nil
}
