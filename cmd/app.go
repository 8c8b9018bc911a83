// File: cmd/app.go
package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/answerbook/api/schemas"
	"github.com/xkilldash9x/answerbook/internal/answer"
	"github.com/xkilldash9x/answerbook/internal/browser"
	"github.com/xkilldash9x/answerbook/internal/config"
	"github.com/xkilldash9x/answerbook/internal/diagnostic"
	"github.com/xkilldash9x/answerbook/internal/metrics"
	"github.com/xkilldash9x/answerbook/internal/network"
	"github.com/xkilldash9x/answerbook/internal/retry"
)

// stopTimeout bounds browser shutdown once the command is done.
const stopTimeout = 15 * time.Second

// components is the wired engine shared by the open and serve commands.
type components struct {
	Manager *browser.Manager
	Service *answer.Service
	Metrics *metrics.Recorder
}

// newComponents wires the engine. Nothing is started.
func newComponents(cfg *config.Config, logger *zap.Logger) *components {
	rec := metrics.New()
	manager := browser.NewManager(cfg.Browser, logger, browser.WithPageGauge(rec))

	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay}

	clientCfg := network.NewDefaultClientConfig()
	clientCfg.RequestTimeout = cfg.Diagnostic.Timeout
	clientCfg.UserAgent = "answerbook/" + Version
	clientCfg.Logger = logger
	notifier := diagnostic.New(cfg.Diagnostic, policy, logger,
		diagnostic.WithHTTPClient(network.NewClient(clientCfg)),
		diagnostic.WithObserver(rec))

	persona := schemas.Persona{
		Languages: cfg.Browser.Languages,
		Width:     cfg.Browser.Viewport.Width,
		Height:    cfg.Browser.Viewport.Height,
	}
	controller := answer.NewController(manager, cfg.Answer, policy, logger,
		answer.WithPersona(persona),
		answer.WithRetryHook(rec.ObserveRetry),
		answer.WithRetryHook(notifier.OnRetry))

	return &components{
		Manager: manager,
		Service: answer.NewService(controller, cfg.Answer, logger, answer.WithRecorder(rec)),
		Metrics: rec,
	}
}

// Shutdown stops the browser with a fresh deadline so it still runs after
// the command context has been cancelled.
func (c *components) Shutdown(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := c.Manager.Stop(ctx); err != nil {
		logger.Warn("Browser shutdown reported an error", zap.Error(err))
	}
}
