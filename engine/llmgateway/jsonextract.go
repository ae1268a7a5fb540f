package llmgateway

import (
	"fmt"
	"strings"
)

// ExtractJSON pulls the largest balanced top-level {...} or [...] region out
// of s, tolerating the surrounding prose and markdown code fences LLMs
// routinely wrap JSON-mode output in. It is the one place every JSON-
// consuming caller (planner, healer) goes through, per spec §4.3(b)'s
// "extract the largest balanced region before decoding" rule - a model
// that echoes a short example before its real answer must not have the
// example win.
func ExtractJSON(s string) (string, error) {
	trimmed := stripCodeFences(s)

	var best string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			if depth == 0 {
				start = i
			}
			depth++
		case '}', ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				if candidate := trimmed[start : i+1]; len(candidate) > len(best) {
					best = candidate
				}
				start = -1
			}
		}
	}
	if best == "" {
		return "", fmt.Errorf("no JSON object or array found in llm output")
	}
	return best, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if last := len(lines) - 1; last >= 0 && strings.HasPrefix(strings.TrimSpace(lines[last]), "```") {
		lines = lines[:last]
	}
	return strings.Join(lines, "\n")
}
