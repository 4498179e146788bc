package llm

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/config"
)

// ErrNotConfigured is returned when no API key or model is configured.
var ErrNotConfigured = errors.New("llm is not configured")

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewClientFromConfig creates the client selected by cfg.Provider.
func NewClientFromConfig(cfg config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	if !cfg.IsAvailable() {
		return nil, ErrNotConfigured
	}

	c := &Config{
		Provider: strings.ToLower(cfg.Provider),
		Endpoint: cfg.BaseURL,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}

	switch c.Provider {
	case ProviderOpenAI, "":
		return NewClient(c, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(c, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
