package surface

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ParseINI decodes Latin-1 key=value text. Each line is split on the first
// '='. Lines without '=' are ignored; those that are neither blank nor a
// [section] header are reported as warnings. Blank values are dropped so
// a later empty duplicate never clobbers an earlier value.
func ParseINI(data []byte) (map[string]string, []string) {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return map[string]string{}, []string{fmt.Sprintf("decode failed: %v", err)}
	}

	values := make(map[string]string)
	var warnings []string
	sc := bufio.NewScanner(bytes.NewReader(decoded))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n")
		key, value, found := strings.Cut(line, "=")
		if !found {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
				warnings = append(warnings, fmt.Sprintf("line %d: no '=' in %q", lineNo, trimmed))
			}
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.TrimSpace(value) == "" {
			continue
		}
		values[key] = value
	}
	if err := sc.Err(); err != nil {
		warnings = append(warnings, fmt.Sprintf("line %d: %v", lineNo+1, err))
	}
	return values, warnings
}

// Unquote strips one leading and one trailing quote character when the
// value is wrapped in matching quotes.
func Unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
