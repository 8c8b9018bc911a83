package schemas

import (
	"context"
)

// -- Browser Persona Schemas --

// Persona encapsulates the fingerprint applied to a single page before navigation.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Languages []string `json:"languages"`
	Width     int64    `json:"width"`
	Height    int64    `json:"height"`
}

// DefaultPersona provides a fallback persona if none is specified.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Languages: []string{"zh-CN", "zh"},
	Width:     1200,
	Height:    800,
}

// -- Geometry --

// Box is an element's bounding box in CSS pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the centroid of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// NodeSample is the rendered state of one DOM node matched by a selector.
type NodeSample struct {
	Text   string  `json:"text"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// -- Screenshot Schemas --

// ImageFormat selects the encoding of a captured screenshot.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "png"
	ImageFormatJPEG ImageFormat = "jpeg"
)

// MIMEType returns the content type for the format.
func (f ImageFormat) MIMEType() string {
	if f == ImageFormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// ScreenshotOptions controls a clipped element capture. Quality is only
// meaningful for JPEG and is ignored for PNG.
type ScreenshotOptions struct {
	Format  ImageFormat
	Quality int
}

// -- Page Interface --

// Page is one interactive browsing context (a tab) owned by a single request.
// Implementations must make Close safe to call more than once.
type Page interface {
	ID() string
	// ApplyPersona sets the user agent and viewport.
	ApplyPersona(ctx context.Context, persona Persona) error
	// Navigate loads the URL and waits for the DOM.
	Navigate(ctx context.Context, url string) error
	// BoundingBox returns the viewport-relative box of the first match, or nil if absent.
	BoundingBox(ctx context.Context, selector string) (*Box, error)
	// ClickAt dispatches a left click at the point.
	ClickAt(ctx context.Context, x, y float64) error
	// WaitFor blocks until the selector matches.
	WaitFor(ctx context.Context, selector string) error
	// Sample returns the text and rendered size of every match, in DOM order.
	Sample(ctx context.Context, selector string) ([]NodeSample, error)
	// Hide sets display:none on every match of every selector.
	Hide(ctx context.Context, selectors []string) error
	// Screenshot captures the region covered by the first match.
	Screenshot(ctx context.Context, selector string, opts ScreenshotOptions) ([]byte, error)
	Close(ctx context.Context) error
}

// PageSource lends fresh pages from a running browser.
type PageSource interface {
	NewPage(ctx context.Context) (Page, error)
}
