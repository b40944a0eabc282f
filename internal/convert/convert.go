// Package convert transforms fragment payloads between media types.
//
// Conversion is a pure function of (source type, payload, target type).
// Nothing here keeps state between calls: renderers and parsers are built
// per call, and input slices are never written to.
package convert

import (
	"errors"
	"fmt"

	"github.com/AndyChoi4495/fragments/internal/mediatype"
)

// ErrUnsupported is returned when no conversion rule exists for the
// requested pair. It is a policy refusal, not a runtime failure.
var ErrUnsupported = errors.New("unsupported conversion")

// Error is a conversion that was attempted and failed: malformed JSON,
// corrupt image data, encoder errors.
type Error struct {
	Source string
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("convert %s to %s: %v", e.Source, e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type rule func(payload []byte, target string) ([]byte, error)

// Convert returns payload rendered as targetType. A conversion to the
// payload's own type returns it unchanged. Pairs outside the registry's
// conversion matrix yield an error wrapping ErrUnsupported.
func Convert(sourceType string, payload []byte, targetType string) ([]byte, error) {
	src, err := mediatype.BaseType(sourceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	dst, err := mediatype.BaseType(targetType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if !mediatype.CanConvert(src, dst) {
		return nil, fmt.Errorf("%s to %s: %w", src, dst, ErrUnsupported)
	}
	if src == dst {
		return payload, nil
	}

	fn := lookup(src, dst)
	if fn == nil {
		return nil, fmt.Errorf("%s to %s: %w", src, dst, ErrUnsupported)
	}
	out, err := fn(payload, dst)
	if err != nil {
		return nil, &Error{Source: src, Target: dst, Err: err}
	}
	return out, nil
}

// Supports reports whether the engine has a rule for the pair. It agrees
// with mediatype.CanConvert for every registered type.
func Supports(sourceType, targetType string) bool {
	src, err := mediatype.BaseType(sourceType)
	if err != nil {
		return false
	}
	dst, err := mediatype.BaseType(targetType)
	if err != nil {
		return false
	}
	return src == dst || lookup(src, dst) != nil
}

func lookup(src, dst string) rule {
	switch {
	case dst == mediatype.TextPlain && mediatype.IsText(src):
		return passthrough
	case src == mediatype.TextMarkdown && dst == mediatype.TextHTML:
		return markdownToHTML
	case src == mediatype.JSON && dst == mediatype.TextCSV:
		return jsonToCSV
	case src == mediatype.TextCSV && dst == mediatype.JSON:
		return csvToJSON
	case src == mediatype.JSON && dst == mediatype.YAML:
		return jsonToYAML
	case src == mediatype.YAML && dst == mediatype.JSON:
		return yamlToJSON
	case mediatype.IsImage(src) && mediatype.IsImage(dst):
		return transcodeImage
	}
	return nil
}

// passthrough serves textual payloads as text/plain byte for byte.
func passthrough(payload []byte, _ string) ([]byte, error) {
	return payload, nil
}
