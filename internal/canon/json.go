package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// normalizeJSON parses text, sorts object keys lexically (Go's encoding/json
// already does this for map[string]any on Marshal), and serializes with
// canonical whitespace (compact, trailing newline, numbers preserved via
// json.Number to avoid float round-trip precision loss).
func normalizeJSON(text string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return "", fmt.Errorf("canon: json parse: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "", fmt.Errorf("canon: json encode: %w", err)
	}

	return buf.String(), nil
}
