// Package reportfmt tokenizes the text reports printed by the benchmark runner
// and the aggregate batch reports built from them.
//
// The grammar is line oriented:
//
//	rule        = "#" * 20.. ;                       (a line of only '#')
//	modelHeader = "# Model " int "/" int ":" name ;   (follows a rule)
//	coreMarker  = "Npu core:" ws (int | "All") ;      (may share a line)
//	pair        = key ":" ws token ;                  (any number per line)
package reportfmt

import (
	"strconv"
	"strings"
)

// MinRuleLen is the shortest run of '#' accepted as a section rule.
const MinRuleLen = 20

const (
	modelHeaderPrefix = "# Model "
	coreMarkerKey     = "Npu core:"
	CoreAll           = "All"
)

// Lines splits text into lines without their terminators.
func Lines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// IsRule reports whether line is a section rule.
func IsRule(line string) bool {
	line = strings.TrimRight(line, " \t")
	if len(line) < MinRuleLen {
		return false
	}
	return strings.Trim(line, "#") == ""
}

// ModelHeader parses "# Model i/N: rest". ok is false for any other line.
func ModelHeader(line string) (index, total int, rest string, ok bool) {
	s, found := strings.CutPrefix(line, modelHeaderPrefix)
	if !found {
		return 0, 0, "", false
	}
	num, s, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, "", false
	}
	a, b, found := strings.Cut(num, "/")
	if !found || !allDigits(a) || !allDigits(b) {
		return 0, 0, "", false
	}
	index, _ = strconv.Atoi(a)
	total, _ = strconv.Atoi(b)
	return index, total, strings.TrimSpace(s), true
}

// Value returns the first token following "key:" on line. The key must start
// the line or follow a non-word byte, and the token must be on the same line.
func Value(line, key string) (string, bool) {
	tok, _, ok := nextValue(line, key)
	return tok, ok
}

// FirstValue returns the first value of key across lines.
func FirstValue(lines []string, key string) (string, bool) {
	for _, l := range lines {
		if v, ok := Value(l, key); ok {
			return v, true
		}
	}
	return "", false
}

// Numbers collects every numeric value of key in text, in order. Tokens that
// do not start with a decimal number are skipped.
func Numbers(text, key string) []float64 {
	var out []float64
	for _, line := range Lines(text) {
		for rest := line; ; {
			tok, next, ok := nextValue(rest, key)
			if !ok {
				break
			}
			if f, ok := LeadingNumber(tok); ok {
				out = append(out, f)
			}
			rest = next
		}
	}
	return out
}

// LeadingNumber parses the unsigned decimal prefix of tok ("65.82ms" -> 65.82).
func LeadingNumber(tok string) (float64, bool) {
	end := 0
	for end < len(tok) && isDigit(tok[end]) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	if end+1 < len(tok) && tok[end] == '.' && isDigit(tok[end+1]) {
		end++
		for end < len(tok) && isDigit(tok[end]) {
			end++
		}
	}
	f, err := strconv.ParseFloat(tok[:end], 64)
	return f, err == nil
}

// CoreMarker finds the first "Npu core: <id>" on line. before is the text
// preceding the marker and after the text following the id.
func CoreMarker(line string) (id, before, after string, ok bool) {
	for off := 0; off < len(line); {
		i := strings.Index(line[off:], coreMarkerKey)
		if i < 0 {
			return "", "", "", false
		}
		i += off
		rest := strings.TrimLeft(line[i+len(coreMarkerKey):], " \t")
		n := 0
		for n < len(rest) && isDigit(rest[n]) {
			n++
		}
		switch {
		case n > 0:
			return rest[:n], line[:i], rest[n:], true
		case strings.HasPrefix(rest, CoreAll):
			return CoreAll, line[:i], rest[len(CoreAll):], true
		}
		off = i + 1
	}
	return "", "", "", false
}

func nextValue(line, key string) (tok, rest string, ok bool) {
	needle := key + ":"
	for off := 0; off < len(line); {
		i := strings.Index(line[off:], needle)
		if i < 0 {
			return "", "", false
		}
		i += off
		after := line[i+len(needle):]
		if i == 0 || !isWordByte(line[i-1]) {
			if tok := firstToken(after); tok != "" {
				return tok, after, true
			}
		}
		off = i + 1
	}
	return "", "", false
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isWordByte(b byte) bool {
	return isDigit(b) || b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
