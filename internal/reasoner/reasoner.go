// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package reasoner abstracts the external reasoning capability. The
// pipeline treats it as an opaque, untrusted text-in/text-out service;
// everything that interprets its output lives in the planner.
package reasoner

import (
	"context"

	"github.com/sentra-dev/sentra/internal/reasoner/anthropic"
	"github.com/sentra-dev/sentra/internal/reasoner/openai"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// Client is one reasoning provider. Generate blocks until the provider
// replies or ctx ends; replies may be structured JSON or free text.
type Client interface {
	Name() string
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// New constructs the configured provider client.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	default:
		return nil, sentraerr.Errorf(sentraerr.CodeReasonerNotConfigured, "unknown reasoning provider %q", cfg.Provider)
	}
}
