package answer

import (
	"strings"

	"github.com/xkilldash9x/answerbook/api/schemas"
)

// Mode is a presentation mode: how a captured answer is returned.
type Mode string

const (
	ModeImage                Mode = "image"
	ModeChinese              Mode = "chinese"
	ModeChineseSpaced        Mode = "chinese-spaced"
	ModeEnglish              Mode = "english"
	ModeEnglishUpper         Mode = "english-upper"
	ModeBilingual            Mode = "bilingual"
	ModeBilingualSpaced      Mode = "bilingual-spaced"
	ModeBilingualUpper       Mode = "bilingual-upper"
	ModeBilingualUpperSpaced Mode = "bilingual-upper-spaced"
)

// InvalidMode is returned by Render for a mode it does not know.
const InvalidMode = "invalid mode"

type modeInfo struct {
	mode  Mode
	label string
}

// modeTable keeps the listing order stable.
var modeTable = []modeInfo{
	{ModeImage, "图片模式"},
	{ModeChinese, "中文文本模式"},
	{ModeChineseSpaced, "中文文本模式(带空格)"},
	{ModeEnglish, "英文(小写)文本模式"},
	{ModeEnglishUpper, "英文(大写)文本模式"},
	{ModeBilingual, "中英文(小写)文本模式"},
	{ModeBilingualSpaced, "中英文(小写)文本模式(带空格)"},
	{ModeBilingualUpper, "中英文(大写)文本模式"},
	{ModeBilingualUpperSpaced, "中英文(大写)文本模式(带空格)"},
}

// Modes lists every known mode.
func Modes() []Mode {
	out := make([]Mode, len(modeTable))
	for i, m := range modeTable {
		out[i] = m.mode
	}
	return out
}

// Label returns the Chinese alias of m, or "" for an unknown mode.
func (m Mode) Label() string {
	for _, info := range modeTable {
		if info.mode == m {
			return info.label
		}
	}
	return ""
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m.Label() != "" }

// IsImage reports whether m produces a screenshot.
func (m Mode) IsImage() bool { return m == ModeImage }

// ParseMode resolves a mode name or its Chinese alias. Names are matched
// case-insensitively. Unknown input is returned as-is with ok false so that
// Render can answer with InvalidMode.
func ParseMode(s string) (Mode, bool) {
	s = strings.TrimSpace(s)
	for _, info := range modeTable {
		if strings.EqualFold(s, string(info.mode)) || s == info.label {
			return info.mode, true
		}
	}
	return Mode(s), false
}

// Render formats text for a text mode. Image and unknown modes yield
// InvalidMode; image payloads never go through Render.
func Render(mode Mode, text schemas.TextResult) string {
	switch mode {
	case ModeChinese:
		return text.ChineseText
	case ModeChineseSpaced:
		return SpaceHan(text.ChineseText)
	case ModeEnglish:
		return text.EnglishText
	case ModeEnglishUpper:
		return strings.ToUpper(text.EnglishText)
	case ModeBilingual:
		return text.EnglishText + "\n" + text.ChineseText
	case ModeBilingualSpaced:
		return text.EnglishText + "\n" + SpaceHan(text.ChineseText)
	case ModeBilingualUpper:
		return strings.ToUpper(text.EnglishText) + "\n" + text.ChineseText
	case ModeBilingualUpperSpaced:
		return strings.ToUpper(text.EnglishText) + "\n" + SpaceHan(text.ChineseText)
	default:
		return InvalidMode
	}
}
