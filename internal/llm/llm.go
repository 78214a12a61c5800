// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package llm is the engine's single LLM access point: every planner,
// judge, synthesizer, and evaluator call funnels through Client so the
// provider switch, schema-constrained output, and retry/backoff policy
// live in one place instead of being re-implemented per caller.
package llm

import (
	"context"
	"fmt"
)

// Role mirrors the chat message roles every supported provider accepts.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a prompt.
type Message struct {
	Role    Role
	Content string
}

// GenerateRequest describes one structured-or-free-form completion call.
// When Schema is non-nil the client runs the layered fallback chain in
// schema.go to coerce the response into that shape.
type GenerateRequest struct {
	Messages    []Message
	Model       string
	Temperature float32
	MaxTokens   int
	Schema      *ResponseSchema
}

// ResponseSchema names a JSON Schema (as raw JSON) the caller expects the
// completion to conform to, plus a human label used in logs and in the
// Unstructured fallback tag.
type ResponseSchema struct {
	Name   string
	Schema []byte
}

// GenerateResult is what every Client.Generate call returns. Raw always
// carries the model's literal text; Structured is populated only when a
// Schema was requested and some stage of the fallback chain produced a
// conforming value. FallbackStage records which stage succeeded, for
// observability.
type GenerateResult struct {
	Raw          string
	Structured   map[string]interface{}
	FallbackStage string // "schema", "normalized", "" (raw/unstructured)
}

// Client is the behavior every part of the query and ingestion pipeline
// needs from a language model.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// Embedder generates vector embeddings from text, generalizing the
// teacher's embeddings.Embedder across providers.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config selects and configures the provider for both Client and Embedder.
type Config struct {
	Provider    string // "openai", "ollama", "mock"
	APIKey      string
	ChatModel   string
	EmbedModel  string
	BaseURL     string // ollama base URL
	MaxRetries  int
}

// NewClient builds a chat Client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm: openai api key is required")
		}
		model := cfg.ChatModel
		if model == "" {
			model = "gpt-4o-mini"
		}
		return newOpenAIClient(cfg.APIKey, model, cfg.MaxRetries), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.ChatModel
		if model == "" {
			model = "llama3"
		}
		return newOllamaClient(baseURL, model, cfg.MaxRetries), nil
	case "mock", "":
		return newMockClient(), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// NewEmbedder builds an Embedder for the configured provider.
func NewEmbedder(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm: openai api key is required")
		}
		model := cfg.EmbedModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		return newOpenAIEmbedder(cfg.APIKey, model), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.EmbedModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return newOllamaEmbedder(baseURL, model), nil
	case "mock", "":
		return newMockEmbedder(384), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
