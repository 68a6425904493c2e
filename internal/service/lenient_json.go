package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedJSON means the completion fell outside the accepted deviations.
var ErrMalformedJSON = errors.New("completion is not valid JSON")

// LenientDecode decodes a model completion into v. Accepted deviations from
// strict JSON, applied in this order:
//
//  1. surrounding whitespace;
//  2. a Markdown code fence around the payload (```json ... ``` or ``` ... ```),
//     recognised only when it opens before the first '{' or '[';
//  3. prose before the first '{' or '[' and after its matching closer;
//  4. a trailing comma directly before '}' or ']' outside string literals.
//
// Anything else is rejected with ErrMalformedJSON.
func LenientDecode(raw string, v interface{}) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ErrEmptyCompletion
	}

	s = unfence(s)

	payload, err := outermostValue(s)
	if err != nil {
		return err
	}

	payload = dropTrailingCommas(payload)

	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return nil
}

// unfence drops an opening code fence that precedes the payload. The closing
// fence is left for outermostValue to skip as trailing prose, so fences inside
// string values survive.
func unfence(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	if first := strings.IndexAny(s, "{["); first >= 0 && first < open {
		return s
	}
	rest := s[open+3:]
	// language tag runs to the end of the fence line
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return s
	}
	return rest[nl+1:]
}

// outermostValue slices the first balanced object or array out of s.
func outermostValue(s string) ([]byte, error) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, fmt.Errorf("%w: no object or array found", ErrMalformedJSON)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return []byte(s[start : i+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: unbalanced brackets", ErrMalformedJSON)
}

func dropTrailingCommas(b []byte) []byte {
	out := make([]byte, 0, len(b))
	inString := false
	escaped := false
	for i := 0; i < len(b); i++ {
		ch := b[i]
		if inString {
			out = append(out, ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
		}
		if ch == ',' {
			j := i + 1
			for j < len(b) && isJSONSpace(b[j]) {
				j++
			}
			if j < len(b) && (b[j] == '}' || b[j] == ']') {
				continue
			}
		}
		out = append(out, ch)
	}
	return out
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
