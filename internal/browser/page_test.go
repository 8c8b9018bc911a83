package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/answerbook/api/schemas"
	"github.com/xkilldash9x/answerbook/internal/config"
)

const fixtureHTML = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
body { margin: 0; }
.content-box { width: 320px; height: 200px; background: #fafafa; }
.hidden { display: none; }
</style></head>
<body>
<a class="book-box" href="#" style="display:block;width:200px;height:100px"
   onclick="document.getElementById('out').innerHTML='<div class=&quot;content-en&quot;>Yes</div><div class=&quot;content-en&quot;>是的</div><div class=&quot;content-en hidden&quot;>No</div>'; return false;">open</a>
<div class="content-box" id="out"></div>
<div class="layui-layer-content layui-layer-padding">overlay</div>
</body></html>`

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
	jpegMagic = []byte{0xff, 0xd8, 0xff}
)

// findBrowser locates a Chrome binary or skips the test.
func findBrowser(t *testing.T) string {
	t.Helper()
	if path := os.Getenv("ANSWERBOOK_BROWSER_EXEC_PATH"); path != "" {
		return path
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome or Chromium binary found; set ANSWERBOOK_BROWSER_EXEC_PATH to run")
	return ""
}

type countingGauge struct{ open atomic.Int64 }

func (g *countingGauge) PageOpened() { g.open.Add(1) }
func (g *countingGauge) PageClosed() { g.open.Add(-1) }

func TestManager_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	execPath := findBrowser(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, fixtureHTML)
	}))
	defer srv.Close()

	gauge := &countingGauge{}
	cfg := config.BrowserConfig{
		ExecPath:          execPath,
		Headless:          true,
		MaxPages:          2,
		Viewport:          config.ViewportConfig{Width: 1200, Height: 800},
		NavigationTimeout: 30 * time.Second,
	}
	m := NewManager(cfg, zaptest.NewLogger(t), WithPageGauge(gauge))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	require.NoError(t, m.Start(ctx))
	defer func() { assert.NoError(t, m.Stop(context.Background())) }()
	assert.ErrorIs(t, m.Start(ctx), ErrAlreadyStarted)
	assert.True(t, m.Running())

	p, err := m.NewPage(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID())
	assert.EqualValues(t, 1, gauge.open.Load())

	require.NoError(t, p.ApplyPersona(ctx, schemas.DefaultPersona))
	require.NoError(t, p.Navigate(ctx, srv.URL))

	t.Run("missing element has no box", func(t *testing.T) {
		box, err := p.BoundingBox(ctx, ".does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, box)
	})

	t.Run("click reveals the result", func(t *testing.T) {
		box, err := p.BoundingBox(ctx, "a.book-box")
		require.NoError(t, err)
		require.NotNil(t, box)
		assert.InDelta(t, 200, box.Width, 0.5)

		x, y := box.Center()
		require.NoError(t, p.ClickAt(ctx, x, y))

		waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
		defer waitCancel()
		require.NoError(t, p.WaitFor(waitCtx, ".content-en"))

		samples, err := p.Sample(ctx, ".content-en")
		require.NoError(t, err)
		require.Len(t, samples, 3)
		assert.Equal(t, "Yes", samples[0].Text)
		assert.Equal(t, "是的", samples[1].Text)
		assert.Zero(t, samples[2].Width, "display:none nodes render with no size")
	})

	t.Run("hide removes overlays", func(t *testing.T) {
		require.NoError(t, p.Hide(ctx, []string{".layui-layer-content.layui-layer-padding"}))
		samples, err := p.Sample(ctx, ".layui-layer-content")
		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Zero(t, samples[0].Height)
		assert.NoError(t, p.Hide(ctx, nil))
	})

	t.Run("screenshots honour the format", func(t *testing.T) {
		png, err := p.Screenshot(ctx, ".content-box", schemas.ScreenshotOptions{Format: schemas.ImageFormatPNG})
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, pngMagic))

		jpg, err := p.Screenshot(ctx, ".content-box", schemas.ScreenshotOptions{Format: schemas.ImageFormatJPEG, Quality: 80})
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(jpg, jpegMagic))

		_, err = p.Screenshot(ctx, ".does-not-exist", schemas.ScreenshotOptions{})
		assert.ErrorIs(t, err, ErrNoElement)
	})

	t.Run("request cancellation leaves the page usable", func(t *testing.T) {
		reqCtx, reqCancel := context.WithCancel(ctx)
		reqCancel()
		_, err := p.Sample(reqCtx, "a")
		assert.Error(t, err)

		_, err = p.Sample(ctx, "a")
		assert.NoError(t, err)
	})

	require.NoError(t, p.Close(ctx))
	require.NoError(t, p.Close(ctx), "close is idempotent")
	assert.EqualValues(t, 0, gauge.open.Load())
	_, err = p.Sample(ctx, "a")
	assert.Error(t, err, "closed pages refuse work")
}
