package pane

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Canonical returns the canonical serialization of a JSON value: object keys
// sorted, compact separators, no HTML escaping, and integer-valued floats
// written without a fractional part. The input is round-tripped through a
// generic decode first so struct field order and int/float typing never
// leak into the output. Integer literals are kept exact at any size.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}
	generic, err = canonicalNumbers(generic)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(generic); err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// canonicalNumbers leaves integer literals as json.Number and turns every
// other number into a float64, in place.
func canonicalNumbers(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			out, err := canonicalNumbers(item)
			if err != nil {
				return nil, err
			}
			t[k] = out
		}
	case []any:
		for i, item := range t {
			out, err := canonicalNumbers(item)
			if err != nil {
				return nil, err
			}
			t[i] = out
		}
	case json.Number:
		if !strings.ContainsAny(string(t), ".eE") {
			return t, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("canonical number %s: %w", t, err)
		}
		return f, nil
	}
	return v, nil
}

// Hash returns the hex md5 of the canonical form of p. Consumers compare it
// against their locally patched copy after applying a window_update.
func Hash(p *Pane) (string, error) {
	canonical, err := Canonical(p.Map())
	if err != nil {
		return "", err
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}
