// Package jsonx recovers JSON from completion-service output. Models wrap
// payloads in code fences or prose often enough that a bare json.Unmarshal
// is not a workable contract, so decoding runs as a layered pipeline:
// strict parse, then code-fence stripping, then substring salvage. Each
// tier is exposed on its own so its contract stays independently testable.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier identifies which recovery layer produced a successful decode.
type Tier int

const (
	TierStrict Tier = iota
	TierLenient
	TierSalvage
)

func (t Tier) String() string {
	switch t {
	case TierStrict:
		return "strict"
	case TierLenient:
		return "lenient"
	case TierSalvage:
		return "salvage"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseStrict decodes text exactly as given.
func ParseStrict(text string, v any) error {
	return json.Unmarshal([]byte(text), v)
}

// ParseLenient strips surrounding whitespace and Markdown code fences,
// then decodes.
func ParseLenient(text string, v any) error {
	return json.Unmarshal([]byte(StripCodeFences(text)), v)
}

// ParseSalvage extracts the largest balanced object or array substring and
// decodes it. It is the last resort for responses where the model wrapped
// the payload in prose.
func ParseSalvage(text string, v any) error {
	frag, ok := salvageFragment(text)
	if !ok {
		return fmt.Errorf("no JSON object or array found in %d bytes of text", len(text))
	}
	return json.Unmarshal([]byte(frag), v)
}

// Decode runs the recovery pipeline and reports the tier that succeeded.
// The returned error is the strict tier's, since that is the contract the
// prompt asked the model to honor.
func Decode(text string, v any) (Tier, error) {
	strictErr := ParseStrict(text, v)
	if strictErr == nil {
		return TierStrict, nil
	}
	if err := ParseLenient(text, v); err == nil {
		return TierLenient, nil
	}
	if err := ParseSalvage(text, v); err == nil {
		return TierSalvage, nil
	}
	return TierStrict, fmt.Errorf("decode response: %w", strictErr)
}

// StripCodeFences removes a single surrounding Markdown code fence, with
// or without a language tag.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop a language tag like "json" on the opening fence line.
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

// salvageFragment returns the widest span from the first opening brace or
// bracket to the matching last closer. Object and array candidates are
// both considered; the longer fragment wins.
func salvageFragment(s string) (string, bool) {
	obj := spanBetween(s, '{', '}')
	arr := spanBetween(s, '[', ']')
	if len(arr) > len(obj) {
		obj = arr
	}
	if obj == "" {
		return "", false
	}
	return obj, true
}

func spanBetween(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, close)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
