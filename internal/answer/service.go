package answer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/answerbook/api/schemas"
	"github.com/xkilldash9x/answerbook/internal/config"
)

// Request outcomes reported to a Recorder.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeInvalidMode = "invalid_mode"
)

// Opener produces a capture for a mode. *Controller implements it.
type Opener interface {
	Open(ctx context.Context, mode Mode) (*schemas.CaptureResult, error)
}

// Recorder observes finished requests.
type Recorder interface {
	ObserveRequest(outcome string, elapsed time.Duration)
}

// Service is what hosts call: it resolves the mode, opens the book, waits
// the configured pacing delay and renders the payload.
type Service struct {
	opener   Opener
	cfg      config.AnswerConfig
	recorder Recorder
	logger   *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRecorder reports every request to r.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

func NewService(opener Opener, cfg config.AnswerConfig, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{opener: opener, cfg: cfg, logger: logger.Named("answer_service")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultMode is the configured presentation mode.
func (s *Service) DefaultMode() Mode {
	m, _ := ParseMode(s.cfg.Mode)
	return m
}

// Greeting returns the text shown before the book is opened, or false when
// it is suppressed.
func (s *Service) Greeting() (string, bool) {
	if !s.cfg.SendText || s.cfg.SentText == "" {
		return "", false
	}
	return s.cfg.SentText, true
}

// Answer opens the book and renders the result for mode. An unknown mode
// yields the InvalidMode text without touching the browser.
func (s *Service) Answer(ctx context.Context, mode Mode) (schemas.Payload, error) {
	start := time.Now()
	if !mode.Valid() {
		s.logger.Warn("Unknown presentation mode", zap.String("mode", string(mode)))
		s.observe(OutcomeInvalidMode, start)
		return schemas.Payload{Text: InvalidMode}, nil
	}

	res, err := s.opener.Open(ctx, mode)
	if err != nil {
		s.logger.Error("Failed to open the answer book", zap.String("mode", string(mode)), zap.Error(err))
		s.observe(OutcomeError, start)
		return schemas.Payload{}, err
	}

	if err := sleep(ctx, s.cfg.Wait); err != nil {
		s.observe(OutcomeError, start)
		return schemas.Payload{}, err
	}

	s.observe(OutcomeSuccess, start)
	return Present(mode, res), nil
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.recorder != nil {
		s.recorder.ObserveRequest(outcome, time.Since(start))
	}
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
