package stealth

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/xkilldash9x/answerbook/api/schemas"
)

const uaBase = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko)"

// UserAgentGenerator synthesizes an Edge-on-Windows user agent whose Chrome
// and Edge versions come from two random bytes each. The output is fully
// determined by the byte source, so tests can pass a fixed reader.
type UserAgentGenerator struct {
	mu  sync.Mutex
	src io.Reader
}

// NewUserAgentGenerator reads entropy from src, or crypto/rand when nil.
func NewUserAgentGenerator(src io.Reader) *UserAgentGenerator {
	if src == nil {
		src = rand.Reader
	}
	return &UserAgentGenerator{src: src}
}

// Version formats two bytes as "<major>.<minor>.0.0" with the high byte as
// the major version.
func Version(b [2]byte) string {
	return fmt.Sprintf("%d.%d.0.0", b[0], b[1])
}

// FormatUserAgent builds the user agent from the Chrome and Edge version bytes.
func FormatUserAgent(chrome, edge [2]byte) string {
	return fmt.Sprintf("%s Chrome/%s Safari/537.36 Edg/%s", uaBase, Version(chrome), Version(edge))
}

// Generate consumes four bytes and returns a new user agent.
func (g *UserAgentGenerator) Generate() (string, error) {
	var buf [4]byte
	g.mu.Lock()
	_, err := io.ReadFull(g.src, buf[:])
	g.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to read user agent entropy: %w", err)
	}
	return FormatUserAgent([2]byte{buf[0], buf[1]}, [2]byte{buf[2], buf[3]}), nil
}

// Persona returns base with a freshly generated user agent.
func (g *UserAgentGenerator) Persona(base schemas.Persona) (schemas.Persona, error) {
	ua, err := g.Generate()
	if err != nil {
		return schemas.Persona{}, err
	}
	base.UserAgent = ua
	base.Languages = append([]string(nil), base.Languages...)
	return base, nil
}
