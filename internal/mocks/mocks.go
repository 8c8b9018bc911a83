// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/answerbook/api/schemas"
)

// -- Page Mock --

// MockPage implements schemas.Page for testing.
type MockPage struct {
	mock.Mock

	mu     sync.Mutex
	closed int
}

func NewMockPage() *MockPage {
	return &MockPage{}
}

func (m *MockPage) ID() string { return m.Called().String(0) }

func (m *MockPage) ApplyPersona(ctx context.Context, persona schemas.Persona) error {
	return m.Called(ctx, persona).Error(0)
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) BoundingBox(ctx context.Context, selector string) (*schemas.Box, error) {
	args := m.Called(ctx, selector)
	var box *schemas.Box
	if b := args.Get(0); b != nil {
		box = b.(*schemas.Box)
	}
	return box, args.Error(1)
}

func (m *MockPage) ClickAt(ctx context.Context, x, y float64) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockPage) WaitFor(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Sample(ctx context.Context, selector string) ([]schemas.NodeSample, error) {
	args := m.Called(ctx, selector)
	var samples []schemas.NodeSample
	if s := args.Get(0); s != nil {
		samples = s.([]schemas.NodeSample)
	}
	return samples, args.Error(1)
}

func (m *MockPage) Hide(ctx context.Context, selectors []string) error {
	return m.Called(ctx, selectors).Error(0)
}

func (m *MockPage) Screenshot(ctx context.Context, selector string, opts schemas.ScreenshotOptions) ([]byte, error) {
	args := m.Called(ctx, selector, opts)
	var buf []byte
	if b := args.Get(0); b != nil {
		buf = b.([]byte)
	}
	return buf, args.Error(1)
}

// Close records the call so tests can assert pages never leak.
func (m *MockPage) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	return m.Called(ctx).Error(0)
}

// CloseCount reports how many times Close was called.
func (m *MockPage) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// -- Page Source Mock --

// MockPageSource implements schemas.PageSource.
type MockPageSource struct {
	mock.Mock
}

func (m *MockPageSource) NewPage(ctx context.Context) (schemas.Page, error) {
	args := m.Called(ctx)
	var p schemas.Page
	if v := args.Get(0); v != nil {
		p = v.(schemas.Page)
	}
	return p, args.Error(1)
}
