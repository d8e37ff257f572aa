package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSONObject is returned when model output holds no balanced object.
var ErrNoJSONObject = errors.New("llm: no complete JSON object in model output")

var (
	fenceOpen  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("```\\s*$")
)

// ExtractFirstJSONObject strips code fences and returns the first balanced
// {...} object in text. Braces inside JSON strings are ignored. The object
// must parse as JSON.
func ExtractFirstJSONObject(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	s = fenceOpen.ReplaceAllString(s, "")
	s = strings.TrimSpace(fenceClose.ReplaceAllString(s, ""))

	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				cand := s[start : i+1]
				if !json.Valid([]byte(cand)) {
					return nil, ErrNoJSONObject
				}
				return json.RawMessage(cand), nil
			}
		}
	}
	return nil, ErrNoJSONObject
}
