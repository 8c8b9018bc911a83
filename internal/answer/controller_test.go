package answer

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/answerbook/api/schemas"
	"github.com/xkilldash9x/answerbook/internal/browser/stealth"
	"github.com/xkilldash9x/answerbook/internal/config"
	"github.com/xkilldash9x/answerbook/internal/mocks"
	"github.com/xkilldash9x/answerbook/internal/retry"
)

// uaSeed makes the generated user agent predictable.
var uaSeed = []byte{0x7e, 0x01, 0xff, 0x00}

const seededUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.1.0.0 Safari/537.36 Edg/255.0.0.0"

var bookBox = &schemas.Box{X: 10, Y: 20, Width: 200, Height: 100}

func newPage() *mocks.MockPage {
	page := mocks.NewMockPage()
	page.On("ID").Return("page-1").Maybe()
	page.On("Close", mock.Anything).Return(nil).Maybe()
	return page
}

type controllerFixture struct {
	page    *mocks.MockPage
	source  *mocks.MockPageSource
	cfg     config.AnswerConfig
	retries atomic.Int32
}

func newFixture() *controllerFixture {
	f := &controllerFixture{
		page:   newPage(),
		source: &mocks.MockPageSource{},
		cfg:    testAnswerConfig(),
	}
	f.source.On("NewPage", mock.Anything).Return(f.page, nil).Maybe()
	return f
}

func (f *controllerFixture) controller(t *testing.T, logger *zap.Logger) *Controller {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	return NewController(f.source, f.cfg, retry.Policy{MaxAttempts: 3}, logger,
		WithUserAgentGenerator(stealth.NewUserAgentGenerator(bytes.NewReader(uaSeed))),
		WithRetryHook(func(context.Context, retry.Attempt) { f.retries.Add(1) }),
	)
}

// expectUpToClick wires the happy path through the click.
func (f *controllerFixture) expectUpToClick() {
	f.page.On("ApplyPersona", mock.Anything, mock.Anything).Return(nil).Once()
	f.page.On("Navigate", mock.Anything, config.DefaultAnswerURL).Return(nil).Once()
	f.page.On("BoundingBox", mock.Anything, "a.book-box").Return(bookBox, nil).Once()
	f.page.On("ClickAt", mock.Anything, 110.0, 70.0).Return(nil).Once()
}

func TestController_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("image mode drives the page in order", func(t *testing.T) {
		f := newFixture()
		f.page.On("ApplyPersona", mock.Anything, mock.MatchedBy(func(p schemas.Persona) bool {
			return p.UserAgent == seededUA && p.Width == 1200 && p.Height == 800
		})).Return(nil).Once()
		f.page.On("Navigate", mock.Anything, config.DefaultAnswerURL).Return(nil).Once()
		f.page.On("BoundingBox", mock.Anything, "a.book-box").Return(bookBox, nil).Once()
		f.page.On("ClickAt", mock.Anything, 110.0, 70.0).Return(nil).Once()
		f.page.On("WaitFor", mock.Anything, ".content-en").Return(nil).Once()
		f.page.On("Hide", mock.Anything, config.DefaultHideSelectors).Return(nil).Once()
		f.page.On("Screenshot", mock.Anything, ".content-box", mock.Anything).Return([]byte("jpeg"), nil).Once()

		res, err := f.controller(t, nil).Open(ctx, ModeImage)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg"), res.Image)
		assert.Equal(t, "image/jpeg", res.MIMEType)
		assert.Equal(t, 1, f.page.CloseCount())
		assert.Zero(t, f.retries.Load())
		f.page.AssertExpectations(t)
	})

	t.Run("text mode extracts classified text", func(t *testing.T) {
		f := newFixture()
		f.expectUpToClick()
		f.page.On("WaitFor", mock.Anything, ".content-en").Return(nil).Once()
		f.page.On("Sample", mock.Anything, ".content-en").
			Return([]schemas.NodeSample{node("hello"), node("你好")}, nil).Once()

		res, err := f.controller(t, nil).Open(ctx, ModeBilingualUpperSpaced)
		require.NoError(t, err)
		assert.Equal(t, "HELLO\n你 好 ", Present(ModeBilingualUpperSpaced, res).Text)
		assert.Equal(t, 1, f.page.CloseCount())
	})

	t.Run("navigation is retried then surfaced and the page closed", func(t *testing.T) {
		f := newFixture()
		boom := errors.New("net::ERR_CONNECTION_RESET")
		f.page.On("ApplyPersona", mock.Anything, mock.Anything).Return(nil).Once()
		f.page.On("Navigate", mock.Anything, config.DefaultAnswerURL).Return(boom).Times(3)

		_, err := f.controller(t, nil).Open(ctx, ModeImage)
		require.Error(t, err)

		var navErr *NavigationError
		require.ErrorAs(t, err, &navErr)
		assert.Equal(t, 3, navErr.Attempts)
		assert.Same(t, boom, navErr.Err, "the last error is kept unchanged")
		assert.ErrorIs(t, err, boom)
		assert.EqualValues(t, 2, f.retries.Load(), "hook runs after every failure but the last")
		assert.Equal(t, 1, f.page.CloseCount())
		f.page.AssertNotCalled(t, "BoundingBox", mock.Anything, mock.Anything)
		f.page.AssertExpectations(t)
	})

	t.Run("transient navigation failure recovers", func(t *testing.T) {
		f := newFixture()
		f.page.On("ApplyPersona", mock.Anything, mock.Anything).Return(nil).Once()
		f.page.On("Navigate", mock.Anything, config.DefaultAnswerURL).Return(errors.New("timeout")).Once()
		f.page.On("Navigate", mock.Anything, config.DefaultAnswerURL).Return(nil).Once()
		f.page.On("BoundingBox", mock.Anything, "a.book-box").Return(bookBox, nil).Once()
		f.page.On("ClickAt", mock.Anything, 110.0, 70.0).Return(nil).Once()
		f.page.On("WaitFor", mock.Anything, ".content-en").Return(nil).Once()
		f.page.On("Sample", mock.Anything, ".content-en").Return([]schemas.NodeSample{node("Yes")}, nil).Once()

		res, err := f.controller(t, nil).Open(ctx, ModeEnglish)
		require.NoError(t, err)
		assert.Equal(t, "Yes", res.Text.EnglishText)
		assert.EqualValues(t, 1, f.retries.Load())
	})

	t.Run("missing trigger is not retried and the page closed", func(t *testing.T) {
		f := newFixture()
		f.page.On("ApplyPersona", mock.Anything, mock.Anything).Return(nil).Once()
		f.page.On("Navigate", mock.Anything, config.DefaultAnswerURL).Return(nil).Once()
		f.page.On("BoundingBox", mock.Anything, "a.book-box").Return(nil, nil).Once()

		_, err := f.controller(t, nil).Open(ctx, ModeImage)
		assert.ErrorIs(t, err, ErrElementNotFound)
		assert.Zero(t, f.retries.Load())
		assert.Equal(t, 1, f.page.CloseCount())
		f.page.AssertNumberOfCalls(t, "Navigate", 1)
		f.page.AssertNotCalled(t, "ClickAt", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("zero sized trigger counts as missing", func(t *testing.T) {
		f := newFixture()
		f.page.On("ApplyPersona", mock.Anything, mock.Anything).Return(nil).Once()
		f.page.On("Navigate", mock.Anything, mock.Anything).Return(nil).Once()
		f.page.On("BoundingBox", mock.Anything, "a.book-box").Return(&schemas.Box{X: 5, Y: 5}, nil).Once()

		_, err := f.controller(t, nil).Open(ctx, ModeImage)
		assert.ErrorIs(t, err, ErrElementNotFound)
	})

	t.Run("result wait is bounded by result_timeout", func(t *testing.T) {
		f := newFixture()
		f.cfg.ResultTimeout = 20 * time.Millisecond
		f.expectUpToClick()
		f.page.On("WaitFor", mock.Anything, ".content-en").
			Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
			Return(context.DeadlineExceeded).Once()

		_, err := f.controller(t, nil).Open(ctx, ModeImage)
		assert.ErrorIs(t, err, ErrResultTimeout)
		assert.Equal(t, 1, f.page.CloseCount())
	})

	t.Run("cancelled request still closes with a live context", func(t *testing.T) {
		f := newFixture()
		f.cfg.ResultTimeout = 0
		reqCtx, cancel := context.WithCancel(ctx)

		page := mocks.NewMockPage()
		page.On("ID").Return("page-2").Maybe()
		page.On("Close", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil })).Return(nil).Once()
		page.On("ApplyPersona", mock.Anything, mock.Anything).Return(nil).Once()
		page.On("Navigate", mock.Anything, mock.Anything).Return(nil).Once()
		page.On("BoundingBox", mock.Anything, mock.Anything).Return(bookBox, nil).Once()
		page.On("ClickAt", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
		page.On("WaitFor", mock.Anything, ".content-en").
			Run(func(args mock.Arguments) {
				cancel()
				<-args.Get(0).(context.Context).Done()
			}).
			Return(context.Canceled).Once()
		f.source = &mocks.MockPageSource{}
		f.source.On("NewPage", mock.Anything).Return(page, nil).Once()

		_, err := f.controller(t, nil).Open(reqCtx, ModeImage)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrResultTimeout)
		page.AssertExpectations(t)
	})

	t.Run("page allocation failure has nothing to close", func(t *testing.T) {
		f := newFixture()
		f.source = &mocks.MockPageSource{}
		f.source.On("NewPage", mock.Anything).Return(nil, errors.New("browser session not started")).Once()

		_, err := f.controller(t, nil).Open(ctx, ModeImage)
		assert.ErrorContains(t, err, "not started")
		assert.Zero(t, f.page.CloseCount())
	})

	t.Run("persona failure closes the page", func(t *testing.T) {
		f := newFixture()
		f.page.On("ApplyPersona", mock.Anything, mock.Anything).Return(errors.New("target crashed")).Once()

		_, err := f.controller(t, nil).Open(ctx, ModeImage)
		assert.ErrorContains(t, err, "target crashed")
		assert.Equal(t, 1, f.page.CloseCount())
		f.page.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything)
	})

	t.Run("close errors are logged not returned", func(t *testing.T) {
		f := newFixture()
		page := mocks.NewMockPage()
		page.On("ID").Return("page-3").Maybe()
		page.On("Close", mock.Anything).Return(errors.New("already gone")).Once()
		page.On("ApplyPersona", mock.Anything, mock.Anything).Return(nil).Once()
		page.On("Navigate", mock.Anything, mock.Anything).Return(nil).Once()
		page.On("BoundingBox", mock.Anything, mock.Anything).Return(bookBox, nil).Once()
		page.On("ClickAt", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
		page.On("WaitFor", mock.Anything, mock.Anything).Return(nil).Once()
		page.On("Sample", mock.Anything, mock.Anything).Return([]schemas.NodeSample{node("Yes")}, nil).Once()
		f.source = &mocks.MockPageSource{}
		f.source.On("NewPage", mock.Anything).Return(page, nil).Once()

		core, logs := observer.New(zap.DebugLevel)
		_, err := f.controller(t, zap.New(core)).Open(ctx, ModeEnglish)
		require.NoError(t, err)
		assert.Equal(t, 1, logs.FilterMessage("Failed to close page").Len())

		captured := logs.FilterMessage("Answer captured").All()
		require.Len(t, captured, 1)
		fields := captured[0].ContextMap()
		assert.NotEmpty(t, fields["request_id"])
		assert.Equal(t, "page-3", fields["page_id"])
		assert.Equal(t, "english", fields["mode"])
	})
}

func TestNavigationError(t *testing.T) {
	inner := errors.New("dns failure")
	err := &NavigationError{URL: "https://example.com", Attempts: 3, Err: inner}
	assert.Equal(t, "navigation to https://example.com failed after 3 attempt(s): dns failure", err.Error())
	assert.ErrorIs(t, err, inner)
}
