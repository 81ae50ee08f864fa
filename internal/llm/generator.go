package llm

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/docgen/internal/generation"
	"github.com/nikhilbhutani/docgen/internal/models"
	"github.com/nikhilbhutani/docgen/internal/prompt"
)

var (
	_ generation.ClassifiedError = (*TransientError)(nil)
	_ generation.ClassifiedError = (*FatalError)(nil)
)

// Generator adapts the gateway to the generation pipeline. A template's
// model config wins over the configured defaults.
type Generator struct {
	gateway         Gateway
	defaultProvider string
	defaultModel    string
}

func NewGenerator(gw Gateway, defaultProvider, defaultModel string) *Generator {
	return &Generator{gateway: gw, defaultProvider: defaultProvider, defaultModel: defaultModel}
}

func (g *Generator) Generate(ctx context.Context, p prompt.Compiled, cfg models.ModelConfig) (*generation.Output, error) {
	req := ChatRequest{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages: []Message{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
	}
	if req.Provider == "" {
		req.Provider = g.defaultProvider
		if req.Model == "" {
			req.Model = g.defaultModel
		}
	}

	resp, err := g.gateway.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm chat: %w", err)
	}

	return &generation.Output{
		Content: resp.Content,
		Usage: models.Usage{
			Provider:     resp.Provider,
			Model:        resp.Model,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			CostUSD:      resp.CostUSD,
			LatencyMs:    resp.LatencyMs,
		},
	}, nil
}
