package normalize

import (
	"encoding/json"
	"strings"
)

// maxRootCandidates bounds how many top-level spans CleanJSON inspects
// when looking past preamble brackets.
const maxRootCandidates = 16

// CleanJSON repairs a raw completion into parseable JSON where possible.
// The result is not guaranteed to be valid; callers must still check
// Unmarshal errors and fall back instead of cleaning again.
func CleanJSON(raw string) string {
	s := stripFences(strings.TrimSpace(raw))
	s = selectRoot(s)
	if json.Valid([]byte(s)) {
		return s
	}

	repaired := repair(s)
	if json.Valid([]byte(repaired)) {
		return repaired
	}

	if unescaped := unescape(s); unescaped != s {
		if r := repair(unescaped); json.Valid([]byte(r)) {
			return r
		}
	}
	return repaired
}

func stripFences(s string) string {
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// selectRoot drops text before the first JSON root and after it closes.
// A small bracketed aside in the preamble, such as "[3]", is skipped in
// favour of a later object or array of objects.
func selectRoot(s string) string {
	first := ""
	rest := s
	for i := 0; i < maxRootCandidates; i++ {
		start := strings.IndexAny(rest, "[{")
		if start < 0 {
			break
		}
		span, closed := scanSpan(rest[start:])
		if first == "" {
			first = span
		}
		if !closed {
			// Truncated roots run to the end of input.
			if i == 0 {
				return span
			}
			if preferredRoot(span) {
				return span
			}
			break
		}
		if preferredRoot(span) && json.Valid([]byte(span)) {
			return span
		}
		rest = rest[start+len(span):]
	}
	if first == "" {
		return s
	}
	return first
}

// scanSpan returns the prefix of s holding one bracketed value, and whether
// the value closed before the input ended. s must start with '[' or '{'.
func scanSpan(s string) (string, bool) {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
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
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return s, false
}

func preferredRoot(span string) bool {
	if strings.HasPrefix(span, "{") {
		return true
	}
	inner := strings.TrimSpace(strings.TrimPrefix(span, "["))
	return strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "]")
}

func unescape(s string) string {
	r := strings.NewReplacer(`\\"`, `"`, `\"`, `"`, `\\n`, `\n`)
	return r.Replace(s)
}

var pythonLiterals = map[string]string{
	"None":  "null",
	"True":  "true",
	"False": "false",
}

type frame struct {
	closer       byte
	expectKey    bool
	pendingColon bool
}

// repair rewrites s in one pass, tracking string and container state so
// edits only touch structural text.
func repair(s string) string {
	var out strings.Builder
	out.Grow(len(s) + 8)

	var stack []frame
	inString, escaped := false, false

	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return &stack[len(stack)-1]
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				if f := top(); f != nil && f.closer == '}' && f.expectKey {
					f.expectKey = false
					f.pendingColon = true
				}
			}
			out.WriteByte(c)
			continue
		}

		switch {
		case c == '"':
			inString = true
			out.WriteByte(c)
		case c == '{':
			stack = append(stack, frame{closer: '}', expectKey: true})
			out.WriteByte(c)
		case c == '[':
			stack = append(stack, frame{closer: ']'})
			out.WriteByte(c)
		case c == '}' || c == ']':
			for len(stack) > 0 && stack[len(stack)-1].closer != c {
				closeFrame(&out, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				continue
			}
			closeFrame(&out, stack[len(stack)-1])
			stack = stack[:len(stack)-1]
		case c == ':':
			if f := top(); f != nil {
				f.pendingColon = false
			}
			out.WriteByte(c)
		case c == ',':
			if nextSignificant(s, i+1) == 0 || isCloser(nextSignificant(s, i+1)) {
				continue
			}
			if f := top(); f != nil && f.closer == '}' {
				f.expectKey = true
			}
			out.WriteByte(c)
		case isLetter(c):
			j := i
			for j < len(s) && isLetter(s[j]) {
				j++
			}
			word := s[i:j]
			if lit, ok := pythonLiterals[word]; ok {
				word = lit
			}
			out.WriteString(word)
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}

	if inString {
		if escaped {
			str := out.String()
			out.Reset()
			out.WriteString(str[:len(str)-1])
		}
		out.WriteByte('"')
		if f := top(); f != nil && f.closer == '}' && f.expectKey {
			f.expectKey = false
			f.pendingColon = true
		}
	}

	result := strings.TrimRight(out.String(), " \t\r\n")
	result = strings.TrimSuffix(result, ",")
	if strings.HasSuffix(result, ":") {
		result += "null"
	} else if f := top(); f != nil && f.pendingColon {
		result += ":null"
	}

	var tail strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		tail.WriteByte(stack[i].closer)
	}
	return result + tail.String()
}

func closeFrame(out *strings.Builder, f frame) {
	if f.pendingColon {
		out.WriteString(":null")
	}
	trimTrailingComma(out)
	out.WriteByte(f.closer)
}

func trimTrailingComma(out *strings.Builder) {
	str := out.String()
	trimmed := strings.TrimRight(str, " \t\r\n")
	if strings.HasSuffix(trimmed, ",") {
		out.Reset()
		out.WriteString(trimmed[:len(trimmed)-1])
	}
}

func nextSignificant(s string, from int) byte {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return s[i]
	}
	return 0
}

func isCloser(c byte) bool { return c == '}' || c == ']' }

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

// Decode unmarshals cleaned JSON into a generic value.
func Decode(cleaned string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, err
	}
	return v, nil
}
