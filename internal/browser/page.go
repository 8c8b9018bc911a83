// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/answerbook/api/schemas"
	"github.com/xkilldash9x/answerbook/internal/browser/stealth"
)

// ErrNoElement is returned by Screenshot when the selector matches nothing.
var ErrNoElement = errors.New("no element matches selector")

const (
	boundingBoxJS = `(() => {
	const el = document.querySelector(%s);
	if (!el) return null;
	const r = el.getBoundingClientRect();
	return {x: r.x + %s, y: r.y + %s, width: r.width, height: r.height};
})()`

	sampleJS = `Array.from(document.querySelectorAll(%s)).map(el => ({
	text: el.textContent || "",
	width: el.offsetWidth || 0,
	height: el.offsetHeight || 0,
}))`

	hideJS = `(() => {
	for (const sel of %s) {
		document.querySelectorAll(sel).forEach(el => { el.style.display = 'none'; });
	}
	return true;
})()`
)

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	out, err := jsoniter.MarshalToString(s)
	if err != nil {
		// Strings always marshal.
		panic(err)
	}
	return out
}

// Page is a browser tab driven through chromedp. It implements schemas.Page.
type Page struct {
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	navTimeout time.Duration
	onClose    func()

	mu     sync.Mutex
	closed bool
}

var _ schemas.Page = (*Page)(nil)

// ID returns the page identifier used in logs.
func (p *Page) ID() string { return p.id }

// run executes actions against the tab while honouring ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("page %s is closed", p.id)
	}

	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *Page) ApplyPersona(ctx context.Context, persona schemas.Persona) error {
	return p.run(ctx, stealth.Apply(persona, p.logger))
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.navTimeout)
		defer cancel()
	}
	p.logger.Debug("Navigating", zap.String("url", url))
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// BoundingBox returns the viewport-relative box of the first match.
func (p *Page) BoundingBox(ctx context.Context, selector string) (*schemas.Box, error) {
	return p.box(ctx, selector, false)
}

// box evaluates the bounding rect; withScroll shifts it into document
// coordinates as required by screenshot clips.
func (p *Page) box(ctx context.Context, selector string, withScroll bool) (*schemas.Box, error) {
	dx, dy := "0", "0"
	if withScroll {
		dx, dy = "window.scrollX", "window.scrollY"
	}
	var box *schemas.Box
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(boundingBoxJS, jsString(selector), dx, dy), &box)); err != nil {
		return nil, fmt.Errorf("failed to measure %q: %w", selector, err)
	}
	return box, nil
}

func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	return p.run(ctx, chromedp.MouseClickXY(x, y))
}

func (p *Page) WaitFor(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *Page) Sample(ctx context.Context, selector string) ([]schemas.NodeSample, error) {
	var samples []schemas.NodeSample
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(sampleJS, jsString(selector)), &samples)); err != nil {
		return nil, fmt.Errorf("failed to sample %q: %w", selector, err)
	}
	return samples, nil
}

func (p *Page) Hide(ctx context.Context, selectors []string) error {
	if len(selectors) == 0 {
		return nil
	}
	list, err := jsoniter.MarshalToString(selectors)
	if err != nil {
		return err
	}
	var ok bool
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf(hideJS, list), &ok))
}

// Screenshot clips the capture to the first match of selector.
func (p *Page) Screenshot(ctx context.Context, selector string, opts schemas.ScreenshotOptions) ([]byte, error) {
	box, err := p.box(ctx, selector, true)
	if err != nil {
		return nil, err
	}
	if box == nil || box.Width <= 0 || box.Height <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, selector)
	}

	capture := page.CaptureScreenshot().
		WithClip(&page.Viewport{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height, Scale: 1}).
		WithCaptureBeyondViewport(true)
	if opts.Format == schemas.ImageFormatJPEG {
		capture = capture.WithFormat(page.CaptureScreenshotFormatJpeg).WithQuality(int64(opts.Quality))
	} else {
		capture = capture.WithFormat(page.CaptureScreenshotFormatPng)
	}

	var buf []byte
	err = p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = capture.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture %q: %w", selector, err)
	}
	return buf, nil
}

// Close closes the tab. Later calls return nil.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if p.onClose != nil {
		p.onClose()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Debug("Tab close reported an error", zap.Error(err))
		return fmt.Errorf("failed to close page: %w", err)
	}
	p.logger.Debug("Page closed")
	return nil
}
