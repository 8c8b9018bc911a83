// internal/diagnostic/notifier.go
package diagnostic

import (
	"context"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/answerbook/internal/config"
	"github.com/xkilldash9x/answerbook/internal/retry"
)

// maxQuoteBody caps how much of the quote response is read.
const maxQuoteBody = 64 << 10

// Outcomes reported to an Observer.
const (
	OutcomeQuote    = "quote"
	OutcomeFailed   = "failed"
	OutcomeDisabled = "disabled"
)

// Observer is told how each notification ended.
type Observer interface {
	ObserveDiagnostic(outcome string)
}

// Notifier fetches a short quote from a remote endpoint and logs it at error
// level whenever a retried operation fails. It is an operator heartbeat and
// never reports failure to its caller.
type Notifier struct {
	client   *http.Client
	cfg      config.DiagnosticConfig
	policy   retry.Policy
	logger   *zap.Logger
	observer Observer
	timer    retry.Timer
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithObserver reports each outcome to o.
func WithObserver(o Observer) Option {
	return func(n *Notifier) { n.observer = o }
}

// WithTimer sets the timer used by the nested retry.
func WithTimer(t retry.Timer) Option {
	return func(n *Notifier) { n.timer = t }
}

// New creates a Notifier. The nested quote fetch is retried with policy.
func New(cfg config.DiagnosticConfig, policy retry.Policy, logger *zap.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Field == "" {
		cfg.Field = "hitokoto"
	}
	n := &Notifier{
		client: http.DefaultClient,
		cfg:    cfg,
		policy: policy,
		logger: logger.Named("diagnostic"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// OnRetry satisfies retry.Hook.
func (n *Notifier) OnRetry(ctx context.Context, _ retry.Attempt) {
	n.Notify(ctx)
}

// Notify fetches a quote, retrying with the notifier's own policy, and logs
// either the quote or the final error. The nested retry carries no hook, so
// a failing quote endpoint cannot trigger further notifications.
func (n *Notifier) Notify(ctx context.Context) {
	if !n.cfg.Enabled {
		n.observe(OutcomeDisabled)
		return
	}

	opts := []retry.Option{retry.WithName("diagnostic quote"), retry.WithLogger(n.logger)}
	if n.timer != nil {
		opts = append(opts, retry.WithTimer(n.timer))
	}

	quote, err := retry.Run(ctx, n.policy, n.FetchQuote, opts...)
	if err != nil {
		n.logger.Error(err.Error())
		n.observe(OutcomeFailed)
		return
	}
	n.logger.Error(quote)
	n.observe(OutcomeQuote)
}

// FetchQuote performs a single request to the quote endpoint and returns the
// configured string field. Non-2xx statuses are errors.
func (n *Notifier) FetchQuote(ctx context.Context) (string, error) {
	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.URL, nil)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to build quote request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxQuoteBody))
		return "", fmt.Errorf("request failed, status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxQuoteBody))
	if err != nil {
		return "", fmt.Errorf("failed to read quote body: %w", err)
	}

	field := jsoniter.Get(body, n.cfg.Field)
	if err := field.LastError(); err != nil {
		return "", fmt.Errorf("quote field %q not found: %w", n.cfg.Field, err)
	}
	if field.ValueType() != jsoniter.StringValue {
		return "", fmt.Errorf("quote field %q is not a string", n.cfg.Field)
	}
	return field.ToString(), nil
}

func (n *Notifier) observe(outcome string) {
	if n.observer != nil {
		n.observer.ObserveDiagnostic(outcome)
	}
}
