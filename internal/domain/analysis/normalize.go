package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// strategy turns raw model text into the fields of a Result. The timestamp
// is filled in by Normalize afterwards.
type strategy func(raw string, shape Shape) (Result, error)

var errRejected = errors.New("strategy rejected input")

// strategies run in order; the first success wins.
var strategies = []strategy{
	parseWhole,
	parseEmbedded,
	wrapVerbatim,
}

const maxQuoted = 200

// Normalize converts raw model output into a Result of the requested shape.
// now is stamped onto the result regardless of any timestamp in raw.
func Normalize(raw string, now time.Time, shape Shape) (Result, error) {
	for _, try := range strategies {
		r, err := try(raw, shape)
		if err != nil {
			continue
		}
		r.Timestamp = now.UTC()
		return r, nil
	}
	return Result{}, &ParseError{Content: clip(raw, maxQuoted)}
}

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func parseWhole(raw string, shape Shape) (Result, error) {
	return fromObject(strings.TrimSpace(raw), shape)
}

// parseEmbedded looks for a JSON object inside surrounding prose or a
// markdown fence. The first balanced object is tried before the widest
// first-brace to last-brace span.
func parseEmbedded(raw string, shape Shape) (Result, error) {
	if obj, ok := firstBalancedObject(raw); ok {
		if r, err := fromObject(obj, shape); err == nil {
			return r, nil
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Result{}, errRejected
	}
	return fromObject(raw[start:end+1], shape)
}

func wrapVerbatim(raw string, shape Shape) (Result, error) {
	if shape != ShapeFreeText {
		return Result{}, errRejected
	}
	return Result{Shape: ShapeFreeText, Narrative: &Narrative{Content: raw}}, nil
}

var structuredKeys = []string{"description", "diagnosis", "extra_comments"}

func fromObject(text string, shape Shape) (Result, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return Result{}, err
	}
	if obj == nil {
		return Result{}, errRejected
	}

	if shape == ShapeFreeText {
		raw, ok := obj["content"]
		if !ok {
			return Result{}, errRejected
		}
		var content string
		if err := json.Unmarshal(raw, &content); err != nil {
			return Result{}, err
		}
		return Result{Shape: ShapeFreeText, Narrative: &Narrative{Content: content}}, nil
	}

	found := false
	values := make(map[string]string, len(structuredKeys))
	for _, k := range structuredKeys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		found = true
		values[k] = fieldText(raw)
	}
	if !found {
		return Result{}, errRejected
	}
	return Result{Shape: ShapeStructured, Findings: &Findings{
		Description:   values["description"],
		Diagnosis:     values["diagnosis"],
		ExtraComments: values["extra_comments"],
	}}, nil
}

// fieldText keeps strings as-is; other JSON values are kept as compact JSON.
func fieldText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// firstBalancedObject returns the first {...} span whose braces balance,
// ignoring braces inside JSON strings.
func firstBalancedObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
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
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		next := strings.Index(s[start+1:], "{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}
