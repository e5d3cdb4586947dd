package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoValidJSON is returned when no parseable JSON object can be found
// in the model output
var ErrNoValidJSON = errors.New("no valid JSON object in LLM output")

// ExtractJSON locates the outermost brace-balanced JSON object inside
// arbitrary model output and unmarshals it into target. Markdown code
// fences are stripped first; prose before and after the object is
// ignored.
func ExtractJSON(content string, target any) error {
	content = stripFences(content)

	// Fast path: the whole content is the object
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), target); err == nil {
			return nil
		}
	}

	candidate, ok := outermostObject(content)
	if !ok {
		return ErrNoValidJSON
	}
	if err := json.Unmarshal([]byte(candidate), target); err != nil {
		return fmt.Errorf("%w: %v", ErrNoValidJSON, err)
	}
	return nil
}

// stripFences removes a ```json ... ``` or ``` ... ``` wrapper when present
func stripFences(content string) string {
	idx := strings.Index(content, "```json")
	offset := 7
	if idx < 0 {
		idx = strings.Index(content, "```")
		offset = 3
	}
	if idx < 0 {
		return content
	}
	rest := content[idx+offset:]
	if end := strings.Index(rest, "```"); end >= 0 {
		return strings.TrimSpace(rest[:end])
	}
	return strings.TrimSpace(rest)
}

// outermostObject returns the first brace-balanced {...} substring,
// honoring string literals and escapes
func outermostObject(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return content[start : i+1], true
				}
			}
		}
	}
	return "", false
}
