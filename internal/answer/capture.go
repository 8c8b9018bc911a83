package answer

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/answerbook/api/schemas"
	"github.com/xkilldash9x/answerbook/internal/config"
)

// ScreenshotOptions maps the compression settings to a capture format: JPEG
// at the configured quality when enabled, lossless PNG otherwise.
func ScreenshotOptions(c config.CompressionConfig) schemas.ScreenshotOptions {
	if c.Enabled {
		return schemas.ScreenshotOptions{Format: schemas.ImageFormatJPEG, Quality: c.Quality}
	}
	return schemas.ScreenshotOptions{Format: schemas.ImageFormatPNG}
}

// Capture reads the revealed answer from page. Image mode hides the overlays
// and screenshots the capture container; every other mode, unknown ones
// included, extracts the classified text.
func Capture(ctx context.Context, page schemas.Page, mode Mode, cfg config.AnswerConfig) (*schemas.CaptureResult, error) {
	if !mode.IsImage() {
		text, err := Extract(ctx, page, cfg.ResultSelector)
		if err != nil {
			return nil, err
		}
		return &schemas.CaptureResult{Text: &text}, nil
	}

	if err := page.Hide(ctx, cfg.HideSelectors); err != nil {
		return nil, fmt.Errorf("failed to hide overlays: %w", err)
	}
	opts := ScreenshotOptions(cfg.Compression)
	img, err := page.Screenshot(ctx, cfg.CaptureSelector, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to capture answer: %w", err)
	}
	return &schemas.CaptureResult{Image: img, MIMEType: opts.Format.MIMEType()}, nil
}

// Present turns a capture into what the host returns.
func Present(mode Mode, res *schemas.CaptureResult) schemas.Payload {
	if mode.IsImage() {
		if res.IsImage() {
			return schemas.Payload{Image: res.Image, MIMEType: res.MIMEType}
		}
		return schemas.Payload{}
	}
	var text schemas.TextResult
	if res != nil && res.Text != nil {
		text = *res.Text
	}
	return schemas.Payload{Text: Render(mode, text), Answer: &text}
}
