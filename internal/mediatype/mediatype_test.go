package mediatype

import (
	"testing"
)

func TestIsIngestible(t *testing.T) {
	for _, mt := range Ingestible() {
		if !IsIngestible(mt) {
			t.Errorf("%s should be ingestible", mt)
		}
		if !IsIngestible(mt + "; charset=utf-8") {
			t.Errorf("%s with charset should be ingestible", mt)
		}
	}

	for _, mt := range []string{"", "text", "application/xml", "image/bmp", "video/mp4"} {
		if IsIngestible(mt) {
			t.Errorf("%q should not be ingestible", mt)
		}
	}
}

func TestIngestibleSetSize(t *testing.T) {
	if got := len(Ingestible()); got != 11 {
		t.Fatalf("expected 11 ingestible types, got %d", got)
	}
}

func TestBaseType(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"text/html; charset=utf-8", "text/html"},
		{"TEXT/Markdown", "text/markdown"},
		{"application/json", "application/json"},
	}
	for _, tt := range tests {
		got, err := BaseType(tt.in)
		if err != nil {
			t.Fatalf("BaseType(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("BaseType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := BaseType(""); err == nil {
		t.Error("expected error for empty type")
	}
}

func TestForExtension(t *testing.T) {
	tests := map[string]string{
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
	for ext, want := range tests {
		got, ok := ForExtension(ext)
		if !ok || got != want {
			t.Errorf("ForExtension(%q) = %q, %v; want %q", ext, got, ok, want)
		}
	}

	if _, ok := ForExtension("xyz"); ok {
		t.Error("xyz should be unknown")
	}
}

func TestCanConvert(t *testing.T) {
	allowed := [][2]string{
		{TextMarkdown, TextHTML},
		{TextMarkdown, TextPlain},
		{TextHTML, TextPlain},
		{JSON, TextCSV},
		{JSON, TextPlain},
		{JSON, YAML},
		{TextCSV, TextPlain},
		{TextCSV, JSON},
		{YAML, JSON},
		{YAML, TextPlain},
		{PNG, JPEG},
		{AVIF, GIF},
		{"text/markdown; charset=utf-8", TextHTML},
	}
	for _, p := range allowed {
		if !CanConvert(p[0], p[1]) {
			t.Errorf("%s -> %s should be allowed", p[0], p[1])
		}
	}

	refused := [][2]string{
		{TextPlain, PNG},
		{TextPlain, TextHTML},
		{TextHTML, TextMarkdown},
		{PNG, TextPlain},
		{JSON, TextHTML},
		{YAML, TextCSV},
		{TextPlain, "application/xml"},
	}
	for _, p := range refused {
		if CanConvert(p[0], p[1]) {
			t.Errorf("%s -> %s should be refused", p[0], p[1])
		}
	}
}

func TestIdentityAlwaysAllowed(t *testing.T) {
	for _, mt := range Ingestible() {
		if !CanConvert(mt, mt) {
			t.Errorf("identity conversion refused for %s", mt)
		}
	}
}

func TestFormats(t *testing.T) {
	got := Formats("text/markdown; charset=utf-8")
	want := []string{TextHTML, TextMarkdown, TextPlain}
	if len(got) != len(want) {
		t.Fatalf("Formats = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Formats[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if len(Formats(PNG)) != len(Images) {
		t.Errorf("png should reach every image type, got %v", Formats(PNG))
	}
	if Formats("video/mp4") != nil {
		t.Error("unknown type should have no formats")
	}
}

func TestExtensionFor(t *testing.T) {
	if got := ExtensionFor("image/jpeg"); got != "jpg" {
		t.Errorf("ExtensionFor(image/jpeg) = %q", got)
	}
	if got := ExtensionFor("application/xml"); got != "" {
		t.Errorf("ExtensionFor(application/xml) = %q", got)
	}
}
