// Package extract talks to the vision/text models that read timetables.
// Extractors return the model's free text untouched; making sense of it is
// the parser's job.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 1000
)

// Request is one extraction call. Exactly one of Image and Text is set.
type Request struct {
	Prompt    string
	Image     []byte
	ImageMIME string
	Text      string
}

type Extractor interface {
	Name() string
	Extract(ctx context.Context, req Request) (string, error)
}

type Config struct {
	Provider      string
	APIKey        string
	Model         string
	BaseURL       string
	Timeout       time.Duration
	MaxTokens     int
	RatePerMinute int
	Burst         int
}

// New builds the extractor named by cfg.Provider.
func New(ctx context.Context, cfg Config, log *zap.Logger) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg, log)
	case ProviderGemini:
		return NewGemini(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown extraction provider %q", cfg.Provider)
	}
}

// FailedError is the only error an extraction surfaces to callers.
type FailedError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *FailedError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("extraction via %s timed out: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("extraction via %s failed: %v", e.Provider, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Fail wraps err as a FailedError, detecting deadline and network
// timeouts. An err that already is a FailedError is returned as is.
func Fail(provider string, err error) *FailedError {
	var fe *FailedError
	if errors.As(err, &fe) {
		return fe
	}
	return &FailedError{Provider: provider, Timeout: isTimeout(err), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func withDefaults(cfg Config) Config {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return cfg
}
