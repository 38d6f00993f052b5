package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/dialogd/internal/history"
)

// Client produces an assistant reply for an ordered turn sequence.
type Client interface {
	GenerateReply(ctx context.Context, turns []history.Turn) (string, error)
}

// Config controls client construction.
type Config struct {
	Mode    string
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIURL) != "" {
			return NewHTTPClient(cfg), nil
		}
		return NewMockClient(), nil
	case "http":
		if strings.TrimSpace(cfg.APIURL) == "" {
			return nil, errors.New("llm API url is required for http mode")
		}
		return NewHTTPClient(cfg), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm client mode %q", cfg.Mode)
	}
}
