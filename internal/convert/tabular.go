package convert

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// jsonToCSV renders an array of flat objects as CSV. The first element's
// keys, in document order, form the header and fix the column order for
// every row. Fields that need it are quoted per RFC 4180. The final record
// has no trailing newline.
func jsonToCSV(payload []byte, _ string) ([]byte, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("parse json array: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("json array is empty")
	}

	header, err := objectKeys(rows[0])
	if err != nil {
		return nil, fmt.Errorf("row 0: %w", err)
	}
	if len(header) == 0 {
		return nil, errors.New("first object has no fields")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for i, raw := range rows {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			return nil, fmt.Errorf("row %d is not an object", i)
		}
		record := make([]string, len(header))
		for j, key := range header {
			record[j], err = cell(obj[key])
			if err != nil {
				return nil, fmt.Errorf("row %d field %q: %w", i, key, err)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// objectKeys returns the keys of a JSON object in document order, first
// occurrence wins.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not an object")
	}

	seen := make(map[string]bool)
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// cell stringifies one JSON value for a CSV field. Strings are unquoted,
// numbers keep their literal text, null and missing fields are empty, and
// nested values are written as compact JSON.
func cell(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	return string(raw), nil
}

// csvToJSON parses CSV with a header row into an array of objects whose
// keys are the header fields, in header order. All values are strings.
func csvToJSON(payload []byte, _ string) ([]byte, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(payload, utf8BOM)))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no header row")
	}

	header := records[0]
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, record := range records[1:] {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, key := range header {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(&buf, key)
			buf.WriteByte(':')
			writeJSONString(&buf, record[j])
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	// Marshal of a string cannot fail.
	b, _ := json.Marshal(s)
	buf.Write(b)
}
