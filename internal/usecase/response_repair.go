package usecase

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pricelens/backend/internal/domain"
)

// RepairStage names the step of the repair chain that produced valid JSON
type RepairStage string

const (
	RepairStrict      RepairStage = "strict"
	RepairStripped    RepairStage = "stripped"
	RepairBracketScan RepairStage = "bracket_scan"
)

var trailingSeparatorRegex = regexp.MustCompile(`,\s*([}\]])`)

// RepairJSON runs the fallback chain strict parse -> strip wrapping ->
// bracket scan -> give up. The returned stage tells which step succeeded.
func RepairJSON(text string) (json.RawMessage, RepairStage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", domain.ErrUnrepairableResponse
	}

	if json.Valid([]byte(text)) {
		return json.RawMessage(text), RepairStrict, nil
	}

	stripped := stripWrapping(text)
	if json.Valid([]byte(stripped)) {
		return json.RawMessage(stripped), RepairStripped, nil
	}

	if scanned, ok := scanObject(stripped); ok {
		scanned = removeTrailingSeparators(closeUnbalanced(scanned))
		if json.Valid([]byte(scanned)) {
			return json.RawMessage(scanned), RepairBracketScan, nil
		}
	}

	return nil, "", domain.ErrUnrepairableResponse
}

// stripWrapping removes markdown fences and trailing separators
func stripWrapping(text string) string {
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```JSON")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimRight(text, ",; \t\r\n")
	return removeTrailingSeparators(text)
}

func removeTrailingSeparators(text string) string {
	return trailingSeparatorRegex.ReplaceAllString(text, "$1")
}

// scanObject extracts the first top-level JSON object or array from prose.
// When the closing bracket is missing the remainder is returned for closeUnbalanced.
func scanObject(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escape := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return text[start:], true
}

// closeUnbalanced closes any unclosed brackets or braces in truncated JSON
func closeUnbalanced(text string) string {
	var stack []byte
	inString, escape := false, false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		text += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		text = strings.TrimRight(text, " \t\n\r,")
		text += string(stack[i])
	}
	return text
}
