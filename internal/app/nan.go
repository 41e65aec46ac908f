package app

import "bytes"

var (
	nullToken        = []byte("null")
	nonFiniteTokens  = [][]byte{[]byte("-Infinity"), []byte("Infinity"), []byte("NaN")}
	nonFiniteMarkers = [][]byte{[]byte("NaN"), []byte("Infinity")}
)

// sanitizeNonFinite rewrites the bare NaN, Infinity and -Infinity tokens
// that Python's json module emits into null. Text inside JSON strings is
// left alone.
func sanitizeNonFinite(body []byte) []byte {
	found := false
	for _, marker := range nonFiniteMarkers {
		if bytes.Contains(body, marker) {
			found = true
			break
		}
	}
	if !found {
		return body
	}

	out := make([]byte, 0, len(body))
	inString, escaped := false, false
next:
	for i := 0; i < len(body); i++ {
		c := body[i]
		if inString {
			out = append(out, c)
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
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		for _, token := range nonFiniteTokens {
			if bytes.HasPrefix(body[i:], token) {
				out = append(out, nullToken...)
				i += len(token) - 1
				continue next
			}
		}
		out = append(out, c)
	}
	return out
}
