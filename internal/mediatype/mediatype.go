// Package mediatype is the registry of fragment media types: which types can
// be stored, which file extensions address which types, and which
// conversions between them are allowed.
package mediatype

import (
	"fmt"
	"mime"
	"sort"
	"strings"
)

// Media types accepted at ingest.
const (
	TextPlain    = "text/plain"
	TextMarkdown = "text/markdown"
	TextHTML     = "text/html"
	TextCSV      = "text/csv"
	JSON         = "application/json"
	YAML         = "application/yaml"
	PNG          = "image/png"
	JPEG         = "image/jpeg"
	WebP         = "image/webp"
	GIF          = "image/gif"
	AVIF         = "image/avif"
)

var ingestible = map[string]bool{
	TextPlain:    true,
	TextMarkdown: true,
	TextHTML:     true,
	TextCSV:      true,
	JSON:         true,
	YAML:         true,
	PNG:          true,
	JPEG:         true,
	WebP:         true,
	GIF:          true,
	AVIF:         true,
}

var extensions = map[string]string{
	"txt":  TextPlain,
	"md":   TextMarkdown,
	"html": TextHTML,
	"csv":  TextCSV,
	"json": JSON,
	"yaml": YAML,
	"yml":  YAML,
	"png":  PNG,
	"jpg":  JPEG,
	"jpeg": JPEG,
	"webp": WebP,
	"gif":  GIF,
	"avif": AVIF,
}

// canonical extension per type, used when naming converted output
var canonicalExt = map[string]string{
	TextPlain:    "txt",
	TextMarkdown: "md",
	TextHTML:     "html",
	TextCSV:      "csv",
	JSON:         "json",
	YAML:         "yaml",
	PNG:          "png",
	JPEG:         "jpg",
	WebP:         "webp",
	GIF:          "gif",
	AVIF:         "avif",
}

// Images lists the raster types, all of which convert into each other.
var Images = []string{PNG, JPEG, WebP, GIF, AVIF}

// routes holds the non-identity conversions. Identity is always allowed.
var routes = map[string][]string{
	TextMarkdown: {TextHTML, TextPlain},
	TextHTML:     {TextPlain},
	JSON:         {TextCSV, TextPlain, YAML},
	TextCSV:      {TextPlain, JSON},
	YAML:         {JSON, TextPlain},
	TextPlain:    {},
}

func init() {
	for _, src := range Images {
		for _, dst := range Images {
			if src != dst {
				routes[src] = append(routes[src], dst)
			}
		}
	}
}

// BaseType strips parameters from a Content-Type value and lowercases it:
// "text/html; charset=utf-8" becomes "text/html".
func BaseType(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("empty media type")
	}
	mt, _, err := mime.ParseMediaType(value)
	if err != nil {
		return "", fmt.Errorf("parse media type %q: %w", value, err)
	}
	return mt, nil
}

// base is BaseType for internal comparisons, where a malformed value simply
// never matches anything.
func base(value string) string {
	mt, err := BaseType(value)
	if err != nil {
		return ""
	}
	return mt
}

// IsIngestible reports whether a fragment may be created with this type.
// Parameters such as charset are ignored.
func IsIngestible(value string) bool {
	return ingestible[base(value)]
}

// IsText reports whether the type is one of the textual ingestible types.
func IsText(value string) bool {
	mt := base(value)
	return ingestible[mt] && !IsImage(mt)
}

// IsImage reports whether the type is one of the raster ingestible types.
func IsImage(value string) bool {
	return strings.HasPrefix(base(value), "image/") && ingestible[base(value)]
}

// ForExtension maps a file extension (without the dot) to its media type.
func ForExtension(ext string) (string, bool) {
	mt, ok := extensions[strings.ToLower(ext)]
	return mt, ok
}

// ExtensionFor returns the canonical extension for a media type, or "" when
// the type is not registered.
func ExtensionFor(value string) string {
	return canonicalExt[base(value)]
}

// CanConvert reports whether a fragment of type source can be represented
// as target. A type always converts to itself.
func CanConvert(source, target string) bool {
	src, dst := base(source), base(target)
	if !ingestible[src] || !ingestible[dst] {
		return false
	}
	if src == dst {
		return true
	}
	for _, t := range routes[src] {
		if t == dst {
			return true
		}
	}
	return false
}

// Formats returns every type a fragment of the given type can be converted
// to, including itself, sorted.
func Formats(source string) []string {
	src := base(source)
	if !ingestible[src] {
		return nil
	}
	out := append([]string{src}, routes[src]...)
	sort.Strings(out)
	return out
}

// Ingestible returns the ingestible types, sorted.
func Ingestible() []string {
	out := make([]string, 0, len(ingestible))
	for mt := range ingestible {
		out = append(out, mt)
	}
	sort.Strings(out)
	return out
}
