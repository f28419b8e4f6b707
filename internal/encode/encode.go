// Package encode renders the four stable, schema-versioned JSON views a
// caller can ask of a spec workspace — status, resume, spec, and gate — each
// excluding packet content, raw LLM output, and stderr, and each passed
// through the Redactor before being handed back for printing.
package encode

import (
	"encoding/json"
	"fmt"

	"xchecker/internal/redact"
)

// marshalRedacted indents v as JSON, then redacts the rendered text before
// returning it, so no caller can accidentally print an unredacted encoding.
func marshalRedacted(v any, redactor *redact.Redactor) ([]byte, error) {
	if redactor == nil {
		redactor = redact.Default()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode: marshal: %w", err)
	}
	return []byte(redactor.RedactString(string(data))), nil
}

// blake3Prefix returns the first 8 hex characters of a full BLAKE3 digest,
// the truncation Status JSON uses for its artifact list.
func blake3Prefix(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
