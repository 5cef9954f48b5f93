// Package normalize turns raw vision-model responses into typed results.
//
// Model output is untrusted: it may be wrapped in a markdown code fence,
// surrounded by prose, or missing optional keys. Parsing is a two-stage
// pipeline (strict parse, then a single first-brace/last-brace extraction)
// that ends in a hard ParseError. The package performs no I/O and holds no
// state, so every function is safe for concurrent use.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const fence = "```"

// StripCodeFences removes a leading ``` (with an optional language tag) and
// a trailing ```, then trims surrounding whitespace. Either fence may be
// missing.
func StripCodeFences(text string) string {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, fence) {
		s = s[len(fence):]
		s = s[fenceTagLen(s):]
	}

	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, fence) {
		s = s[:len(s)-len(fence)]
	}

	return strings.TrimSpace(s)
}

// fenceTagLen returns the length of the language tag (e.g. "json") that
// directly follows an opening fence.
func fenceTagLen(s string) int {
	n := 0
	for n < len(s) {
		c := s[n]
		isTag := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '_' || c == '-' || c == '+' || c == '.'
		if !isTag {
			break
		}
		n++
	}
	return n
}

// object is a decoded top-level JSON object whose values are left raw so
// each key can be projected independently.
type object map[string]json.RawMessage

// parseObject strips fences and recovers a single JSON object from text.
func parseObject(raw string) (object, error) {
	cleaned := StripCodeFences(raw)

	obj, err := decodeObject(cleaned)
	if err == nil {
		return obj, nil
	}

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return nil, newParseError(cleaned, err)
	}

	obj, extractErr := decodeObject(cleaned[start : end+1])
	if extractErr != nil {
		return nil, newParseError(cleaned, extractErr)
	}

	zap.L().Debug("normalize: recovered JSON object by brace extraction",
		zap.Int("offset", start),
		zap.Int("length", end+1-start),
	)
	return obj, nil
}

func decodeObject(s string) (object, error) {
	var obj object
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, eris.Wrap(err, "decode object")
	}
	if obj == nil {
		return nil, eris.New("decode object: top-level value is null")
	}
	return obj, nil
}
