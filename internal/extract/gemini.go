package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini calls generateContent through the genai SDK.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int32
	timeout   time.Duration
	log       *zap.Logger
}

func NewGemini(ctx context.Context, cfg Config, log *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key required")
	}
	cfg = withDefaults(cfg)
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if log == nil {
		log = zap.NewNop()
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Gemini{
		client:    client,
		model:     cfg.Model,
		maxTokens: int32(cfg.MaxTokens),
		timeout:   cfg.Timeout,
		log:       log.Named("gemini"),
	}, nil
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Extract(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	switch {
	case len(req.Image) > 0:
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(req.Image, mime))
	case req.Text != "":
		parts = append(parts, genai.NewPartFromText(req.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	g.log.Debug("completion received",
		zap.String("model", g.model),
		zap.Int("chars", len(text)),
		zap.Duration("took", time.Since(start)),
	)
	return text, nil
}
