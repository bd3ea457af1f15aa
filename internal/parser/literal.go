package parser

import (
	"encoding/json"
	"strings"
	"unicode"
)

// LooksLikeContainer reports whether a string value begins with '[' or '{'
// and ends with the matching bracket, i.e. it plausibly holds structured data
// exported with Python-style repr quoting.
func LooksLikeContainer(value string) bool {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 2 {
		return false
	}
	switch trimmed[0] {
	case '[':
		return trimmed[len(trimmed)-1] == ']'
	case '{':
		return trimmed[len(trimmed)-1] == '}'
	}
	return false
}

// NormalizeLiteral parses a container-shaped string into structured data.
// Strict JSON is accepted as-is; otherwise the value is rewritten (single
// quotes to double quotes, None/True/False to their JSON forms) and reparsed.
// The second return is false when the value cannot be repaired.
func NormalizeLiteral(value string) (any, bool) {
	trimmed := strings.TrimSpace(value)
	if !LooksLikeContainer(trimmed) {
		return nil, false
	}

	var out any
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, true
	}

	rewritten := rewriteLiteral(trimmed)
	if err := json.Unmarshal([]byte(rewritten), &out); err != nil {
		return nil, false
	}
	return out, true
}

// rewriteLiteral converts quasi-JSON into strict JSON. Single-quoted strings
// become double-quoted (inner double quotes escaped, escaped single quotes
// unescaped), and the bare words None, True, and False are mapped to null,
// true, and false. Bare numeric tokens pass through untouched.
func rewriteLiteral(value string) string {
	var b strings.Builder
	b.Grow(len(value))

	runes := []rune(value)
	inSingle := false
	inDouble := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case inSingle:
			if r == '\\' && i+1 < len(runes) {
				next := runes[i+1]
				if next == '\'' {
					b.WriteRune('\'')
					i++
					continue
				}
				b.WriteRune(r)
				b.WriteRune(next)
				i++
				continue
			}
			if r == '\'' {
				b.WriteRune('"')
				inSingle = false
				continue
			}
			if r == '"' {
				b.WriteString(`\"`)
				continue
			}
			b.WriteRune(r)

		case inDouble:
			if r == '\\' && i+1 < len(runes) {
				b.WriteRune(r)
				b.WriteRune(runes[i+1])
				i++
				continue
			}
			if r == '"' {
				inDouble = false
			}
			b.WriteRune(r)

		default:
			switch {
			case r == '\'':
				inSingle = true
				b.WriteRune('"')
			case r == '"':
				inDouble = true
				b.WriteRune(r)
			case unicode.IsLetter(r):
				word, width := readBareWord(runes[i:])
				b.WriteString(mapBareWord(word))
				i += width - 1
			default:
				b.WriteRune(r)
			}
		}
	}

	return b.String()
}

func readBareWord(runes []rune) (string, int) {
	var b strings.Builder
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return b.String(), i
		}
		b.WriteRune(r)
	}
	return b.String(), len(runes)
}

func mapBareWord(word string) string {
	switch word {
	case "None":
		return "null"
	case "True":
		return "true"
	case "False":
		return "false"
	default:
		return word
	}
}
