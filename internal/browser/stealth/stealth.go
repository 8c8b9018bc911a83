package stealth

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/answerbook/api/schemas"
)

// evasionsScript hides the automation flag and aligns navigator.languages
// with the Accept-Language header. %s is a JSON array of languages.
const evasionsScript = `(() => {
	Object.defineProperty(Navigator.prototype, 'webdriver', { get: () => undefined });
	const langs = %s;
	if (langs.length > 0) {
		Object.defineProperty(Navigator.prototype, 'languages', { get: () => langs.slice() });
		Object.defineProperty(Navigator.prototype, 'language', { get: () => langs[0] });
	}
})();`

// AcceptLanguage renders languages as an Accept-Language value with
// descending q-weights, e.g. "zh-CN,zh;q=0.9".
func AcceptLanguage(languages []string) string {
	parts := make([]string, 0, len(languages))
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 10 - i
		if q < 1 {
			q = 1
		}
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", lang, q))
	}
	return strings.Join(parts, ",")
}

func languagesLiteral(languages []string) string {
	quoted := make([]string, len(languages))
	for i, l := range languages {
		quoted[i] = fmt.Sprintf("%q", l)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// Apply returns the actions that dress a fresh tab in persona p: user agent
// and Accept-Language, viewport size, and the navigator evasions. Run them
// before the first navigation.
func Apply(p schemas.Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser persona",
		zap.String("userAgent", p.UserAgent),
		zap.Strings("languages", p.Languages),
		zap.Int64("width", p.Width),
		zap.Int64("height", p.Height),
	)

	ua := emulation.SetUserAgentOverride(p.UserAgent)
	if len(p.Languages) > 0 {
		ua = ua.WithAcceptLanguage(AcceptLanguage(p.Languages))
	}

	tasks := chromedp.Tasks{ua}
	if p.Width > 0 && p.Height > 0 {
		tasks = append(tasks, chromedp.EmulateViewport(p.Width, p.Height))
	}
	tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(fmt.Sprintf(evasionsScript, languagesLiteral(p.Languages))).Do(ctx); err != nil {
			return fmt.Errorf("failed to inject evasions script: %w", err)
		}
		return nil
	}))
	return tasks
}
