package answer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/answerbook/api/schemas"
	"github.com/xkilldash9x/answerbook/internal/browser/stealth"
	"github.com/xkilldash9x/answerbook/internal/config"
	"github.com/xkilldash9x/answerbook/internal/retry"
)

// Controller drives one page per request through the answer page:
// navigate, locate the trigger, click its centre, wait for the result and
// capture it. The page is always closed before Open returns.
type Controller struct {
	pages   schemas.PageSource
	cfg     config.AnswerConfig
	policy  retry.Policy
	persona schemas.Persona
	agents  *stealth.UserAgentGenerator
	hooks   []retry.Hook
	timer   retry.Timer
	logger  *zap.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRetryHook is called after every failed navigation attempt but the last.
func WithRetryHook(h retry.Hook) ControllerOption {
	return func(c *Controller) {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
}

// WithRetryTimer replaces the timer used between navigation attempts.
func WithRetryTimer(t retry.Timer) ControllerOption {
	return func(c *Controller) { c.timer = t }
}

// WithUserAgentGenerator replaces the crypto-seeded generator.
func WithUserAgentGenerator(g *stealth.UserAgentGenerator) ControllerOption {
	return func(c *Controller) { c.agents = g }
}

// WithPersona sets the languages and viewport every page starts from.
func WithPersona(p schemas.Persona) ControllerOption {
	return func(c *Controller) { c.persona = p }
}

// NewController builds a controller that borrows pages from pages.
func NewController(pages schemas.PageSource, cfg config.AnswerConfig, policy retry.Policy, logger *zap.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		pages:   pages,
		cfg:     cfg,
		policy:  policy,
		persona: schemas.DefaultPersona,
		logger:  logger.Named("answer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.agents == nil {
		c.agents = stealth.NewUserAgentGenerator(nil)
	}
	return c
}

// Open runs one request and returns the capture for mode.
func (c *Controller) Open(ctx context.Context, mode Mode) (*schemas.CaptureResult, error) {
	logger := c.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("mode", string(mode)))
	start := time.Now()

	page, err := c.pages.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	logger = logger.With(zap.String("page_id", page.ID()))
	defer func() {
		// Closing must survive a cancelled request.
		if cerr := page.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("Failed to close page", zap.Error(cerr))
		}
	}()

	persona, err := c.agents.Persona(c.persona)
	if err != nil {
		return nil, fmt.Errorf("failed to generate user agent: %w", err)
	}
	if err := page.ApplyPersona(ctx, persona); err != nil {
		return nil, fmt.Errorf("failed to apply persona: %w", err)
	}
	logger.Debug("Persona applied", zap.String("user_agent", persona.UserAgent))

	if err := c.navigate(ctx, page, logger); err != nil {
		return nil, err
	}

	box, err := page.BoundingBox(ctx, c.cfg.TriggerSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to locate %q: %w", c.cfg.TriggerSelector, err)
	}
	if box == nil || box.Width <= 0 || box.Height <= 0 {
		return nil, ErrElementNotFound
	}

	x, y := box.Center()
	if err := page.ClickAt(ctx, x, y); err != nil {
		return nil, fmt.Errorf("failed to click the book: %w", err)
	}
	logger.Debug("Book clicked", zap.Float64("x", x), zap.Float64("y", y))

	if err := c.waitForResult(ctx, page); err != nil {
		return nil, err
	}

	res, err := Capture(ctx, page, mode, c.cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Answer captured",
		zap.Bool("image", res.IsImage()),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (c *Controller) navigate(ctx context.Context, page schemas.Page, logger *zap.Logger) error {
	opts := []retry.Option{retry.WithName("navigate"), retry.WithLogger(logger)}
	for _, h := range c.hooks {
		opts = append(opts, retry.WithHook(h))
	}
	if c.timer != nil {
		opts = append(opts, retry.WithTimer(c.timer))
	}

	attempts := 0
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		attempts++
		return page.Navigate(ctx, c.cfg.URL)
	}, opts...)
	if err != nil {
		return &NavigationError{URL: c.cfg.URL, Attempts: attempts, Err: err}
	}
	return nil
}

func (c *Controller) waitForResult(ctx context.Context, page schemas.Page) error {
	waitCtx := ctx
	if c.cfg.ResultTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.ResultTimeout)
		defer cancel()
	}

	err := page.WaitFor(waitCtx, c.cfg.ResultSelector)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s not shown within %s", ErrResultTimeout, c.cfg.ResultSelector, c.cfg.ResultTimeout)
	}
	return fmt.Errorf("failed waiting for %q: %w", c.cfg.ResultSelector, err)
}
