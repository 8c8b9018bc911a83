package schemas

// TextResult holds the answer text split by script. Each field holds the last
// visible node classified into that bucket, not a concatenation.
type TextResult struct {
	ChineseText string `json:"chineseText"`
	EnglishText string `json:"englishText"`
}

// CaptureResult carries either an image payload or the extracted text,
// depending on the requested presentation mode.
type CaptureResult struct {
	Image    []byte      `json:"-"`
	MIMEType string      `json:"mimeType,omitempty"`
	Text     *TextResult `json:"text,omitempty"`
}

// IsImage reports whether the capture carries image bytes.
func (c *CaptureResult) IsImage() bool {
	return c != nil && len(c.Image) > 0
}

// Payload is what a host returns to the caller: image bytes tagged with a
// MIME type, or a plain string. Answer keeps the unrendered text for hosts
// that return structured output.
type Payload struct {
	Image    []byte      `json:"-"`
	MIMEType string      `json:"mimeType,omitempty"`
	Text     string      `json:"text"`
	Answer   *TextResult `json:"answer,omitempty"`
}
