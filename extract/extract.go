// Package extract turns raw generation output into structured data.
// Models routinely wrap JSON in markdown code fences or surrounding
// prose, and sometimes emit JSON that is almost but not quite valid.
// Extract applies a layered recovery strategy (fence stripping, direct
// parse, automatic repair) and degrades to a raw-text capture instead of
// returning an error, so a malformed payload can never abort a run.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// rawCaptureLimit bounds how much of an unparseable response is kept in
// the fallback payload.
const rawCaptureLimit = 500

// KeyRaw is the payload key holding the truncated original text when
// parsing failed.
const KeyRaw = "raw"

// Result is the outcome of a parse attempt. OK reports whether Payload
// holds structured data; when OK is false, Payload contains only the
// KeyRaw capture and callers must fall back to defaults.
type Result struct {
	Payload map[string]any
	OK      bool
}

// Extract parses raw generation output into a JSON object. It never
// returns an error: any failure yields a Result with OK=false and a
// truncated copy of the input under KeyRaw.
func Extract(raw string) Result {
	candidate := stripFences(raw)

	var payload map[string]any
	if err := json.Unmarshal([]byte(candidate), &payload); err == nil {
		return Result{Payload: payload, OK: true}
	}

	// The first parse failed; try automatic repair before giving up.
	if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
		if err := json.Unmarshal([]byte(repaired), &payload); err == nil {
			return Result{Payload: payload, OK: true}
		}
	}

	capture := raw
	if len(capture) > rawCaptureLimit {
		capture = capture[:rawCaptureLimit]
	}
	return Result{Payload: map[string]any{KeyRaw: capture}, OK: false}
}

// stripFences removes a surrounding markdown code fence, with or without
// a language tag, and trims whitespace. Text without fences is returned
// trimmed but otherwise untouched.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag such as "json" on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || isLanguageTag(first) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// Bool reads a boolean field from a payload, tolerating absence and
// wrong types. The second return reports whether the key held a bool.
func Bool(payload map[string]any, key string) (bool, bool) {
	if payload == nil {
		return false, false
	}
	v, ok := payload[key].(bool)
	return v, ok
}

// String reads a string field from a payload, tolerating absence and
// wrong types.
func String(payload map[string]any, key string) (string, bool) {
	if payload == nil {
		return "", false
	}
	v, ok := payload[key].(string)
	return v, ok
}
