package convert

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"strings"
	"testing"

	"github.com/AndyChoi4495/fragments/internal/mediatype"
)

func TestIdentityReturnsPayloadUnchanged(t *testing.T) {
	payload := []byte("not even valid for most types \x00\xff")
	for _, mt := range mediatype.Ingestible() {
		out, err := Convert(mt, payload, mt)
		if err != nil {
			t.Fatalf("identity %s: %v", mt, err)
		}
		if !bytes.Equal(out, payload) {
			t.Errorf("identity %s changed the payload", mt)
		}
	}
}

func TestEngineAgreesWithRegistry(t *testing.T) {
	types := mediatype.Ingestible()
	for _, src := range types {
		for _, dst := range types {
			if mediatype.CanConvert(src, dst) != Supports(src, dst) {
				t.Errorf("%s -> %s: registry says %v, engine says %v",
					src, dst, mediatype.CanConvert(src, dst), Supports(src, dst))
			}
		}
	}
}

func TestUnsupportedPairs(t *testing.T) {
	tests := [][2]string{
		{mediatype.TextPlain, mediatype.PNG},
		{mediatype.TextPlain, mediatype.TextHTML},
		{mediatype.PNG, mediatype.TextPlain},
		{mediatype.TextHTML, mediatype.TextMarkdown},
		{mediatype.JSON, "application/xml"},
		{"garbage", mediatype.TextPlain},
	}
	for _, tt := range tests {
		_, err := Convert(tt[0], []byte("x"), tt[1])
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s -> %s: expected ErrUnsupported, got %v", tt[0], tt[1], err)
		}
		var convErr *Error
		if errors.As(err, &convErr) {
			t.Errorf("%s -> %s: refusal must not be a conversion error", tt[0], tt[1])
		}
	}
}

func TestMarkdownToHTML(t *testing.T) {
	out, err := Convert("text/markdown", []byte("# Title\n\nBody."), "text/html")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	html := string(out)
	for _, want := range []string{"<h1>Title</h1>", "<p>Body.</p>"} {
		if !strings.Contains(html, want) {
			t.Errorf("output %q missing %q", html, want)
		}
	}
}

func TestMarkdownElements(t *testing.T) {
	src := "*em* **strong**\n\n- one\n- two\n\n[link](https://example.com)\n\n```\ncode\n```\n"
	out, err := Convert("text/markdown; charset=utf-8", []byte(src), "text/html")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	html := string(out)
	for _, want := range []string{
		"<em>em</em>",
		"<strong>strong</strong>",
		"<li>one</li>",
		`<a href="https://example.com">link</a>`,
		"<pre><code>code\n</code></pre>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("output %q missing %q", html, want)
		}
	}
}

func TestTextToPlainIsPassthrough(t *testing.T) {
	payloads := map[string]string{
		mediatype.TextMarkdown: "# heading *kept*",
		mediatype.TextHTML:     "<p>kept</p>",
		mediatype.JSON:         `{"a": 1}`,
		mediatype.YAML:         "a: 1\n",
		mediatype.TextCSV:      "a,b\n1,2",
	}
	for src, payload := range payloads {
		out, err := Convert(src, []byte(payload), mediatype.TextPlain)
		if err != nil {
			t.Fatalf("%s -> text/plain: %v", src, err)
		}
		if string(out) != payload {
			t.Errorf("%s -> text/plain = %q, want %q", src, out, payload)
		}
	}
}

func TestJSONToCSV(t *testing.T) {
	in := `[{"name":"John","age":30},{"name":"Jane","age":25}]`
	out, err := Convert("application/json", []byte(in), "text/csv")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got, want := string(out), "name,age\nJohn,30\nJane,25"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJSONToCSVKeyOrderAndQuoting(t *testing.T) {
	in := `[{"z":"a,b","a":null,"m":true},{"m":{"k":1},"z":"say \"hi\""}]`
	out, err := Convert("application/json", []byte(in), "text/csv")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := "z,a,m\n\"a,b\",,true\n\"say \"\"hi\"\"\",,\"{\"\"k\"\":1}\""
	if string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestJSONToCSVHeaderComesFromFirstObject(t *testing.T) {
	out, err := Convert("application/json", []byte(`[{"a":1},{"a":2,"b":3}]`), "text/csv")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got, want := string(out), "a\n1\n2"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJSONToCSVFailures(t *testing.T) {
	inputs := []string{
		`[]`,
		`{"name":"John"}`,
		`not json`,
		`[1, 2]`,
		`[{"a":1}, 5]`,
		`[{}]`,
	}
	for _, in := range inputs {
		_, err := Convert("application/json", []byte(in), "text/csv")
		var convErr *Error
		if !errors.As(err, &convErr) {
			t.Errorf("%s: expected conversion error, got %v", in, err)
		}
	}
}

func TestCSVToJSON(t *testing.T) {
	in := "name,age\nJohn,30\n\"Doe, Jane\",25\n"
	out, err := Convert("text/csv", []byte(in), "application/json")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := `[{"name":"John","age":"30"},{"name":"Doe, Jane","age":"25"}]`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestCSVToJSONRaggedRows(t *testing.T) {
	_, err := Convert("text/csv", []byte("a,b\n1\n"), "application/json")
	var convErr *Error
	if !errors.As(err, &convErr) {
		t.Fatalf("expected conversion error, got %v", err)
	}
}

func TestJSONYAMLRoundTrip(t *testing.T) {
	inputs := []string{
		`{"name":"fragment","size":42,"ratio":0.5,"tags":["a","b"],"nested":{"ok":true,"none":null}}`,
		`[1,"two",{"three":3},[4]]`,
		`{"looks_like_number":"123","looks_like_bool":"true","empty":"","obj":{},"arr":[]}`,
		`{"z":1,"a":2}`,
		`{"big":12345678901234567890,"exp":1e3,"neg":-0,"tiny":1e-300,"":"blank key"}`,
		`{"tilde":"~","hex":"0x1F"}`,
	}
	for _, in := range inputs {
		y, err := Convert("application/json", []byte(in), "application/yaml")
		if err != nil {
			t.Fatalf("json -> yaml %s: %v", in, err)
		}
		back, err := Convert("application/yaml", y, "application/json")
		if err != nil {
			t.Fatalf("yaml -> json %s: %v", y, err)
		}

		var want, got interface{}
		if err := json.Unmarshal([]byte(in), &want); err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(back, &got); err != nil {
			t.Fatalf("round trip produced invalid JSON %s: %v", back, err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Errorf("round trip mismatch:\n in: %s\nout: %s", in, back)
		}
	}
}

func TestJSONToYAMLKeepsKeyOrder(t *testing.T) {
	out, err := Convert("application/json", []byte(`{"zeta":1,"alpha":"x"}`), "application/yaml")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got, want := string(out), "zeta: 1\nalpha: x\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestYAMLToJSONAnchorsAndMerge(t *testing.T) {
	in := "base: &b\n  a: 1\n  b: 2\nchild:\n  <<: *b\n  b: 3\n"
	out, err := Convert("application/yaml", []byte(in), "application/json")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := `{"base":{"a":1,"b":2},"child":{"b":3,"a":1}}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestStructuredFailures(t *testing.T) {
	if _, err := Convert("application/json", []byte(`{"a":`), "application/yaml"); err == nil {
		t.Error("expected error for truncated json")
	}
	if _, err := Convert("application/json", []byte(`{} {}`), "application/yaml"); err == nil {
		t.Error("expected error for trailing data")
	}
	if _, err := Convert("application/yaml", []byte("a: [1, 2"), "application/json"); err == nil {
		t.Error("expected error for malformed yaml")
	}
	if _, err := Convert("application/yaml", []byte("a: .inf"), "application/json"); err == nil {
		t.Error("expected error for infinity")
	}
}

func TestJSONToYAMLRejectsOutOfRangeNumbers(t *testing.T) {
	for _, in := range []string{`[1e400]`, `{"n":-1e309}`, `[1` + strings.Repeat("0", 400) + `]`} {
		_, err := Convert("application/json", []byte(in), "application/yaml")
		var convErr *Error
		if !errors.As(err, &convErr) {
			t.Errorf("%.20s: expected conversion error, got %v", in, err)
		}
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestImageTranscodeKeepsDimensions(t *testing.T) {
	src := testPNG(t, 17, 9)
	targets := map[string]string{
		mediatype.JPEG: "jpeg",
		mediatype.GIF:  "gif",
		mediatype.WebP: "webp",
	}
	for target, format := range targets {
		out, err := Convert(mediatype.PNG, src, target)
		if err != nil {
			t.Fatalf("png -> %s: %v", target, err)
		}
		cfg, gotFormat, err := image.DecodeConfig(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("decode %s output: %v", target, err)
		}
		if gotFormat != format {
			t.Errorf("png -> %s produced %s", target, gotFormat)
		}
		if cfg.Width != 17 || cfg.Height != 9 {
			t.Errorf("png -> %s: got %dx%d, want 17x9", target, cfg.Width, cfg.Height)
		}
	}
}

func TestImageTranscodeDoesNotMutateInput(t *testing.T) {
	src := testPNG(t, 4, 4)
	orig := append([]byte(nil), src...)
	if _, err := Convert(mediatype.PNG, src, mediatype.JPEG); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !bytes.Equal(src, orig) {
		t.Error("input payload was modified")
	}
}

func TestCorruptImage(t *testing.T) {
	_, err := Convert(mediatype.PNG, []byte("definitely not a png"), mediatype.JPEG)
	var convErr *Error
	if !errors.As(err, &convErr) {
		t.Fatalf("expected conversion error, got %v", err)
	}
	if convErr.Source != mediatype.PNG || convErr.Target != mediatype.JPEG {
		t.Errorf("unexpected error fields: %+v", convErr)
	}
}

func TestDeterministic(t *testing.T) {
	in := []byte(`[{"a":1,"b":"x"}]`)
	first, err := Convert("application/json", in, "text/csv")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Convert("application/json", in, "text/csv")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("run %d differs: %q vs %q", i, again, first)
		}
	}
}
