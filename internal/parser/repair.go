package parser

import (
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// repair recovers the object starting at the first '{'. If the object
// closes, the text up to its closing brace is returned, which drops
// trailing prose that fooled the brace-span tier. If it was cut off
// mid-stream, jsonrepair closes the open strings and containers. A closing
// bracket that does not match its opener means the text is not a
// truncated object and nothing is returned.
func repair(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}
	s := raw[start:]

	end, ok := scan(s)
	if !ok {
		return "", false
	}
	if end > 0 {
		return s[:end], true
	}

	fixed, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return "", false
	}
	return fixed, true
}

// scan walks s, which starts with '{', and returns the offset just past
// the brace closing it, or 0 when s ends first. ok is false on a closer
// that does not match the innermost open container.
func scan(s string) (end int, ok bool) {
	var (
		stack []byte
		inStr bool
		esc   bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 || closer(stack[len(stack)-1]) != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1, true
			}
		}
	}
	return 0, true
}

func closer(open byte) byte {
	if open == '[' {
		return ']'
	}
	return '}'
}
