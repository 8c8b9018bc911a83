// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/answerbook/api/schemas"
	"github.com/xkilldash9x/answerbook/internal/config"
)

var (
	// ErrNotStarted is returned by NewPage before Start or after Stop.
	ErrNotStarted = errors.New("browser session not started")
	// ErrAlreadyStarted is returned by a second Start without a Stop.
	ErrAlreadyStarted = errors.New("browser session already started")
)

// PageGauge tracks how many pages are open.
type PageGauge interface {
	PageOpened()
	PageClosed()
}

// Manager owns the single browser process shared by every request. Start
// and Stop are bound to the host's lifecycle; NewPage lends a fresh tab.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	gauge  PageGauge

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	pages         map[string]*Page
	slots         *semaphore.Weighted
}

// Option configures a Manager.
type Option func(*Manager)

// WithPageGauge reports page opens and closes to g.
func WithPageGauge(g PageGauge) Option {
	return func(m *Manager) { m.gauge = g }
}

// NewManager creates a stopped manager.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// allocatorFlags resolves the command line switches for the browser.
// Values are bool (present/absent) or string.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"no-sandbox":             true,
		"disable-setuid-sandbox": true,
		"headless":               cfg.Headless,
		"hide-scrollbars":        cfg.Headless,
		"mute-audio":             cfg.Headless,
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			flags[key] = value
		} else {
			flags[key] = true
		}
	}
	return flags
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for key, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(key, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Start launches the browser. ctx bounds the launch only; the process lives
// until Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browserCtx != nil {
		return ErrAlreadyStarted
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(m.cfg)...)
	sugar := m.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	m.logger.Info("Launching browser",
		zap.String("exec_path", m.cfg.ExecPath),
		zap.Bool("headless", m.cfg.Headless))

	if err := startTarget(ctx, browserCtx, browserCancel); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	m.pages = make(map[string]*Page)
	if m.cfg.MaxPages > 0 {
		m.slots = semaphore.NewWeighted(int64(m.cfg.MaxPages))
	} else {
		m.slots = nil
	}
	m.logger.Info("Browser started")
	return nil
}

// Stop closes every open page and the browser. Stopping a stopped manager
// is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.browserCtx == nil {
		m.mu.Unlock()
		return nil
	}
	browserCtx, browserCancel, allocCancel := m.browserCtx, m.browserCancel, m.allocCancel
	pages := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		pages = append(pages, p)
	}
	m.browserCtx, m.browserCancel, m.allocCancel = nil, nil, nil
	m.pages = nil
	m.mu.Unlock()

	for _, p := range pages {
		if err := p.Close(ctx); err != nil {
			m.logger.Warn("Failed to close page during shutdown", zap.String("page_id", p.ID()), zap.Error(err))
		}
	}

	closed := make(chan error, 1)
	go func() { closed <- chromedp.Cancel(browserCtx) }()

	var err error
	select {
	case cerr := <-closed:
		if cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("failed to close browser: %w", cerr)
		}
	case <-ctx.Done():
		err = ctx.Err()
		browserCancel()
		<-closed
	}
	browserCancel()
	allocCancel()

	m.logger.Info("Browser stopped", zap.Int("pages_closed", len(pages)))
	return err
}

// Running reports whether Start has succeeded without a matching Stop.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browserCtx != nil
}

// NewPage opens a new tab. When browser.max_pages is set it blocks until a
// slot is free or ctx ends.
func (m *Manager) NewPage(ctx context.Context) (schemas.Page, error) {
	m.mu.Lock()
	browserCtx, slots := m.browserCtx, m.slots
	m.mu.Unlock()

	if browserCtx == nil {
		return nil, ErrNotStarted
	}

	if slots != nil {
		if err := slots.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	release := func() {
		if slots != nil {
			slots.Release(1)
		}
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	if err := startTarget(ctx, tabCtx, tabCancel); err != nil {
		tabCancel()
		release()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	p := &Page{
		id:         uuid.NewString(),
		ctx:        tabCtx,
		cancel:     tabCancel,
		navTimeout: m.cfg.NavigationTimeout,
	}
	p.logger = m.logger.Named("page").With(zap.String("page_id", p.id))
	p.onClose = func() {
		release()
		m.forget(p.id)
		if m.gauge != nil {
			m.gauge.PageClosed()
		}
	}

	m.mu.Lock()
	if m.browserCtx != browserCtx {
		// Stop ran while the tab was being created.
		m.mu.Unlock()
		tabCancel()
		release()
		return nil, ErrNotStarted
	}
	m.pages[p.id] = p
	m.mu.Unlock()

	if m.gauge != nil {
		m.gauge.PageOpened()
	}
	p.logger.Debug("Page opened")
	return p, nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pages != nil {
		delete(m.pages, id)
	}
}
