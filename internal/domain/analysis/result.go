package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Shape selects which form of Result the model is asked to produce.
type Shape string

const (
	ShapeStructured Shape = "structured"
	ShapeFreeText   Shape = "free_text"
)

// ParseShape maps a request value to a Shape. Empty input yields fallback.
func ParseShape(s string, fallback Shape) (Shape, error) {
	switch Shape(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return fallback, nil
	case ShapeStructured:
		return ShapeStructured, nil
	case ShapeFreeText, "freetext", "text":
		return ShapeFreeText, nil
	}
	return "", fmt.Errorf("unknown result shape %q", s)
}

// TimestampLayout is the wire format of Result.Timestamp (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Findings is the structured interpretation of an image.
type Findings struct {
	Description   string `json:"description"`
	Diagnosis     string `json:"diagnosis"`
	ExtraComments string `json:"extra_comments"`
}

// Narrative is a single free-text observation block.
type Narrative struct {
	Content string `json:"content"`
}

// Result is the normalized model output. Exactly one of Findings or Narrative
// is set, matching Shape. Timestamp is always assigned by the server.
type Result struct {
	Shape     Shape
	Findings  *Findings
	Narrative *Narrative
	Timestamp time.Time
}

func NewStructured(f Findings, at time.Time) Result {
	return Result{Shape: ShapeStructured, Findings: &f, Timestamp: at}
}

func NewFreeText(content string, at time.Time) Result {
	return Result{Shape: ShapeFreeText, Narrative: &Narrative{Content: content}, Timestamp: at}
}

// FormatTimestamp renders t the same way Result timestamps appear on the wire.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type structuredJSON struct {
	Description   string `json:"description"`
	Diagnosis     string `json:"diagnosis"`
	ExtraComments string `json:"extra_comments"`
	Timestamp     string `json:"timestamp,omitempty"`
}

type freeTextJSON struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// MarshalJSON flattens the union into the field set of its shape.
// A zero Timestamp is left out rather than rendered as year one.
func (r Result) MarshalJSON() ([]byte, error) {
	var ts string
	if !r.Timestamp.IsZero() {
		ts = FormatTimestamp(r.Timestamp)
	}
	switch r.Shape {
	case ShapeStructured:
		if r.Findings == nil {
			return nil, fmt.Errorf("structured result without findings")
		}
		return json.Marshal(structuredJSON{
			Description:   r.Findings.Description,
			Diagnosis:     r.Findings.Diagnosis,
			ExtraComments: r.Findings.ExtraComments,
			Timestamp:     ts,
		})
	case ShapeFreeText:
		if r.Narrative == nil {
			return nil, fmt.Errorf("free-text result without content")
		}
		return json.Marshal(freeTextJSON{Content: r.Narrative.Content, Timestamp: ts})
	}
	return nil, fmt.Errorf("unknown result shape %q", r.Shape)
}

// UnmarshalJSON detects the shape from the keys present: an object with a
// "content" key is free text, anything else is structured.
func (r *Result) UnmarshalJSON(b []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	if keys == nil {
		return fmt.Errorf("result must be a JSON object")
	}

	// a missing or unreadable timestamp decodes as zero; DecodeStoredResult
	// replaces it with the row's creation time
	var at time.Time
	if raw, ok := keys["timestamp"]; ok {
		var ts string
		if json.Unmarshal(raw, &ts) == nil {
			if t, err := parseTimestamp(ts); err == nil {
				at = t
			}
		}
	}

	if _, ok := keys["content"]; ok {
		var v freeTextJSON
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*r = NewFreeText(v.Content, at)
		return nil
	}
	var v structuredJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = NewStructured(Findings{
		Description:   v.Description,
		Diagnosis:     v.Diagnosis,
		ExtraComments: v.ExtraComments,
	}, at)
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// DecodeStoredResult reads a result column. Older rows hold the result as a
// JSON string instead of an object; those are unquoted first, and a string
// that is not itself JSON becomes a free-text result. Rows without a usable
// timestamp get storedAt.
func DecodeStoredResult(raw []byte, storedAt time.Time) (Result, error) {
	r, err := decodeStored(raw)
	if err != nil {
		return Result{}, err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = storedAt.UTC()
	}
	return r, nil
}

func decodeStored(raw []byte) (Result, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			return Result{}, err
		}
		var r Result
		if err := json.Unmarshal([]byte(s), &r); err == nil {
			return r, nil
		}
		return NewFreeText(s, time.Time{}), nil
	}
	var r Result
	if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
		return Result{}, err
	}
	return r, nil
}
