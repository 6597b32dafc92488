package json

import (
	"bytes"
	"encoding/json"
)

// Repair closes whatever a truncated JSON value left open: an unterminated
// string, then arrays and objects in nesting order. It returns the fixed
// bytes and whether they now form valid JSON. A dangling comma or colon is
// dropped before closing.
func Repair(b []byte) ([]byte, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, false
	}
	var stack []byte
	inStr, esc := false, false
	for _, c := range b {
		switch {
		case esc:
			esc = false
		case inStr && c == '\\':
			esc = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == '{':
			stack = append(stack, '}')
		case c == '[':
			stack = append(stack, ']')
		case c == '}' || c == ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return nil, false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if !inStr && len(stack) == 0 {
		return nil, false
	}

	out := append([]byte(nil), b...)
	if inStr {
		out = append(out, '"')
	}
	out = bytes.TrimRight(out, " \t,:")
	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, stack[i])
	}
	return out, json.Valid(out)
}
