package convert

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

func markdownToHTML(payload []byte, _ string) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
	)
	var buf bytes.Buffer
	if err := md.Convert(payload, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
