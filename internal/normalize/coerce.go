package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numberPattern finds the first decimal number in free text such as
// "36,000 BTU/h" (after thousands separators are removed) or "SEER 16.5".
var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// textValue projects a scalar JSON value onto text. Numbers keep their
// literal spelling so "3.5" tons is not reformatted.
func textValue(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}

// floatValue projects a JSON number or numeric string onto a float.
func floatValue(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	m := numberPattern.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// intValue projects a JSON number or numeric string onto an integer.
// Fractional values are not integers and are rejected.
func intValue(raw json.RawMessage) (int, bool) {
	f, ok := floatValue(raw)
	if !ok || math.Abs(f) > math.MaxInt32 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// stringList projects a JSON array onto its text elements, skipping
// non-scalar entries. Anything that is not an array yields an empty list.
func stringList(raw json.RawMessage) []string {
	out := []string{}
	if isNull(raw) {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s, ok := textValue(raw); ok && s != "" {
			out = append(out, s)
		}
		return out
	}
	for _, item := range items {
		if s, ok := textValue(item); ok {
			out = append(out, s)
		}
	}
	return out
}

// subObject decodes raw as a JSON object; anything else yields nil.
func subObject(raw json.RawMessage) object {
	if isNull(raw) {
		return nil
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

// anyValue decodes raw into a generic value for pass-through storage.
func anyValue(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// clampConfidence maps a model-reported confidence into [0,1]. Values in
// (1,100] are read as percentages.
func clampConfidence(c float64) float64 {
	if c > 1 && c <= 100 {
		c /= 100
	}
	return math.Max(0, math.Min(1, c))
}
