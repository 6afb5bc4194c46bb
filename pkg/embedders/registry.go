package embedders

import (
	"fmt"
	"time"

	"github.com/owasp/nest-search/pkg/config"
)

// NewFromConfig builds the configured provider wrapped in the process-wide
// rate budget.
func NewFromConfig(cfg *config.EmbedderConfig) (Provider, error) {
	var inner Provider
	var err error

	switch cfg.Type {
	case "openai", "":
		inner, err = NewOpenAIEmbedderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unknown embedder type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	interval := time.Duration(cfg.MinIntervalMS) * time.Millisecond
	return NewRateLimited(inner, interval), nil
}
