// internal/browser/context_utils.go
package browser

import (
	"context"

	"github.com/chromedp/chromedp"
)

// CombineContext derives a context from ctx1, inheriting its values (the
// chromedp target among them), that is also cancelled when ctx2 is done.
// Cancelling the result never closes the tab that ctx1 belongs to.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// startTarget performs the first Run on a chromedp context, which allocates
// the browser or creates the tab. That Run must receive the chromedp context
// itself, since chromedp ties the process and target lifetimes to it, so ctx
// is honoured by abandoning the target instead.
func startTarget(ctx, target context.Context, cancelTarget context.CancelFunc) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(target) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancelTarget()
		<-done
		return ctx.Err()
	}
}
