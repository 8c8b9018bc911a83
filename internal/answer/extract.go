package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/answerbook/api/schemas"
)

// CJK Unified Ideographs. unicode.Han is wider than this block and would
// classify extension and compatibility ideographs as Chinese too.
const (
	hanFirst = '\u4e00'
	hanLast  = '\u9fff'
)

func isHan(r rune) bool { return r >= hanFirst && r <= hanLast }

// ContainsHan reports whether s has at least one CJK Unified Ideograph.
func ContainsHan(s string) bool {
	return strings.IndexFunc(s, isHan) >= 0
}

// SpaceHan inserts a space after every CJK Unified Ideograph, including the
// last one, so "你好" becomes "你 好 ".
func SpaceHan(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/3)
	for _, r := range s {
		b.WriteRune(r)
		if isHan(r) {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Visible reports whether a node is rendered with a non-zero size and has
// non-blank text.
func Visible(n schemas.NodeSample) bool {
	return n.Width > 0 && n.Height > 0 && strings.TrimSpace(n.Text) != ""
}

// Classify buckets the visible nodes by script. A node with any Han
// character is Chinese, everything else English. Each bucket keeps the last
// node assigned to it in DOM order; text is kept untrimmed.
func Classify(nodes []schemas.NodeSample) schemas.TextResult {
	var res schemas.TextResult
	for _, n := range nodes {
		if !Visible(n) {
			continue
		}
		if ContainsHan(n.Text) {
			res.ChineseText = n.Text
		} else {
			res.EnglishText = n.Text
		}
	}
	return res
}

// Extract samples every node matching selector and classifies them.
func Extract(ctx context.Context, page schemas.Page, selector string) (schemas.TextResult, error) {
	nodes, err := page.Sample(ctx, selector)
	if err != nil {
		return schemas.TextResult{}, fmt.Errorf("failed to read result nodes: %w", err)
	}
	return Classify(nodes), nil
}
