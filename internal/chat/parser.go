package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

const (
	jsonFenceOpen  = "```json"
	jsonFenceClose = "```"
)

// findStructuredBlock locates the first ```json fenced block. It returns the
// byte offsets of the whole block and of its body.
func findStructuredBlock(raw string) (start, end, bodyStart, bodyEnd int, ok bool) {
	start = strings.Index(raw, jsonFenceOpen)
	if start < 0 {
		return 0, 0, 0, 0, false
	}
	bodyStart = start + len(jsonFenceOpen)
	rel := strings.Index(raw[bodyStart:], jsonFenceClose)
	if rel < 0 {
		return 0, 0, 0, 0, false
	}
	bodyEnd = bodyStart + rel
	end = bodyEnd + len(jsonFenceClose)
	return start, end, bodyStart, bodyEnd, true
}

// ParseStructured extracts the payload from the first ```json block of raw.
// Missing blocks and malformed JSON both yield nil. Later blocks are ignored.
func ParseStructured(raw string) *StructuredPayload {
	_, _, bodyStart, bodyEnd, ok := findStructuredBlock(raw)
	if !ok {
		return nil
	}

	payload, err := decodeStructured([]byte(strings.TrimSpace(raw[bodyStart:bodyEnd])))
	if err != nil {
		return nil
	}
	return payload
}

func decodeStructured(b []byte) (*StructuredPayload, error) {
	if !json.Valid(b) {
		return nil, errors.New("invalid structured payload")
	}
	var record bytes.Buffer
	if err := json.Compact(&record, b); err != nil {
		return nil, err
	}

	payload := &StructuredPayload{Kind: KindGeneral, Record: record.Bytes()}
	var fields struct {
		Type Kind            `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	// Arrays, scalars and records with a non-string type stay general.
	if json.Unmarshal(b, &fields) == nil {
		if fields.Type.valid() {
			payload.Kind = fields.Type
		}
		payload.Data = fields.Data
	}
	return payload, nil
}

// StripStructuredBlock removes the first ```json block from raw, well-formed
// or not, and trims the surrounding whitespace.
func StripStructuredBlock(raw string) string {
	start, end, _, _, ok := findStructuredBlock(raw)
	if !ok {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(raw[:start] + raw[end:])
}
