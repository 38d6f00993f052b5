package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/dialogd/internal/chat"
	"github.com/ent0n29/dialogd/internal/config"
	"github.com/ent0n29/dialogd/internal/history"
	"github.com/ent0n29/dialogd/internal/httpapi"
	"github.com/ent0n29/dialogd/internal/llm"
	"github.com/ent0n29/dialogd/internal/observability"
	"github.com/ent0n29/dialogd/internal/telegram"
	"github.com/ent0n29/dialogd/internal/transcript"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *chat.Orchestrator
	Poller       *telegram.Poller
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB, etc).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	archive, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}

	client, err := llm.NewClient(llm.Config{
		Mode:    cfg.LLMClientMode,
		APIURL:  cfg.LLMAPIURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("llm client init failed: %w", err)
	}

	store := history.NewStore(cfg.MaxHistoryTurns)
	orchestrator := chat.NewOrchestrator(store, client, archive, metrics, cfg.LLMTimeout)

	var poller *telegram.Poller
	if strings.TrimSpace(cfg.TelegramBotToken) != "" {
		poller = telegram.NewPoller(telegram.Config{
			Token:       cfg.TelegramBotToken,
			APIBaseURL:  cfg.TelegramAPIBaseURL,
			PollTimeout: cfg.TelegramPollTimeout,
		}, orchestrator)
	}

	api := httpapi.New(cfg, orchestrator, metrics)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Poller:       poller,
		Metrics:      metrics,
		Cleanup:      archive.Close,
	}, nil
}
