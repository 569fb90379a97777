package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFencePattern  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	rolePrefixPattern = regexp.MustCompile(`(?mi)^[ \t]*(assistant|ai|user|system|human)[ \t]*:[ \t]*`)
	blankRunPattern   = regexp.MustCompile(`\n{3,}`)
)

// SanitizeChatResponse turns a raw model reply into plain prose.
// Fenced blocks holding JSON are dropped, other fences are unwrapped, bare JSON
// objects are removed, role prefixes are stripped and runs of 3+ newlines collapse to 2.
func SanitizeChatResponse(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")

	text = codeFencePattern.ReplaceAllStringFunc(text, func(block string) string {
		inner := strings.TrimSpace(codeFencePattern.FindStringSubmatch(block)[1])
		if looksLikeJSON(inner) {
			return ""
		}
		return inner
	})
	text = strings.ReplaceAll(text, "```", "")
	text = stripJSONObjects(text)
	text = rolePrefixPattern.ReplaceAllString(text, "")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

func looksLikeJSON(s string) bool {
	if s == "" {
		return false
	}
	if s[0] != '{' && s[0] != '[' {
		return false
	}
	return json.Valid([]byte(s))
}

// stripJSONObjects removes every balanced {...} span that parses as JSON
func stripJSONObjects(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	for i := 0; i < len(s); {
		if s[i] == '{' {
			if end := matchingBrace(s, i); end > i && json.Valid([]byte(s[i:end+1])) {
				i = end + 1
				continue
			}
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String()
}

// matchingBrace returns the index of the brace closing s[start], or -1
func matchingBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ExtractJSONObject returns the first JSON object in a reply, unwrapping code fences
func ExtractJSONObject(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if end := matchingBrace(text, i); end > i {
			candidate := text[i : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
	}
	return "", false
}
