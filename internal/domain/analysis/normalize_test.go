package analysis

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

func TestNormalizeStructuredDirect(t *testing.T) {
	raw := `{"description":"d","diagnosis":"x","extra_comments":"c","timestamp":"1999-01-01T00:00:00Z","confidence":0.3}`

	r, err := Normalize(raw, fixedNow, ShapeStructured)
	require.NoError(t, err)
	require.NotNil(t, r.Findings)
	assert.Equal(t, ShapeStructured, r.Shape)
	assert.Equal(t, Findings{Description: "d", Diagnosis: "x", ExtraComments: "c"}, *r.Findings)
	assert.True(t, r.Timestamp.Equal(fixedNow), "model timestamp must be replaced")

	b, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"description":"d","diagnosis":"x","extra_comments":"c","timestamp":"2025-03-14T09:26:53.589Z"}`, string(b))
}

func TestNormalizeEmbeddedObject(t *testing.T) {
	raw := `Here you go: {"description":"d","diagnosis":"x","extra_comments":"c"} hope it helps`

	r, err := Normalize(raw, fixedNow, ShapeStructured)
	require.NoError(t, err)
	assert.Equal(t, "d", r.Findings.Description)
	assert.Equal(t, "x", r.Findings.Diagnosis)
	assert.Equal(t, "c", r.Findings.ExtraComments)
	assert.True(t, r.Timestamp.Equal(fixedNow))
}

func TestNormalizeMarkdownFence(t *testing.T) {
	raw := "```json\n{\"description\":\"a {braced} note\",\"diagnosis\":\"none\",\"extra_comments\":\"\"}\n```"

	r, err := Normalize(raw, fixedNow, ShapeStructured)
	require.NoError(t, err)
	assert.Equal(t, "a {braced} note", r.Findings.Description)
	assert.Equal(t, "none", r.Findings.Diagnosis)
}

func TestNormalizeNonStringFields(t *testing.T) {
	raw := `{"description":"d","diagnosis":["a","b"],"extra_comments":null}`

	r, err := Normalize(raw, fixedNow, ShapeStructured)
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, r.Findings.Diagnosis)
	assert.Equal(t, "", r.Findings.ExtraComments)
}

func TestNormalizeFreeTextVerbatim(t *testing.T) {
	raw := "The image shows a hand."

	r, err := Normalize(raw, fixedNow, ShapeFreeText)
	require.NoError(t, err)
	assert.Equal(t, ShapeFreeText, r.Shape)
	assert.Nil(t, r.Findings)
	assert.Equal(t, raw, r.Narrative.Content)
	assert.True(t, r.Timestamp.Equal(fixedNow))
}

func TestNormalizeFreeTextFromJSON(t *testing.T) {
	r, err := Normalize(`{"content":"x","timestamp":"T"}`, fixedNow, ShapeFreeText)
	require.NoError(t, err)
	assert.Equal(t, "x", r.Narrative.Content)
	assert.True(t, r.Timestamp.Equal(fixedNow))
}

func TestNormalizeFreeTextKeepsUnrelatedJSONVerbatim(t *testing.T) {
	raw := `{"description":"d"}`

	r, err := Normalize(raw, fixedNow, ShapeFreeText)
	require.NoError(t, err)
	assert.Equal(t, raw, r.Narrative.Content)
}

func TestNormalizeUnparseable(t *testing.T) {
	tests := map[string]string{
		"prose":          "I cannot help with that.",
		"unrelated json": `{"answer":42}`,
		"broken json":    `{"description": "d"`,
		"array":          `["description"]`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(raw, fixedNow, ShapeStructured)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Contains(t, pe.Content, raw[:5])
		})
	}
}

func TestNormalizeTruncatesQuotedContent(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	_, err := Normalize(string(long), fixedNow, ShapeStructured)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Content, maxQuoted+3)
}

func TestNormalizeTruncationKeepsRunesWhole(t *testing.T) {
	raw := strings.Repeat("a", maxQuoted-1) + "é" + strings.Repeat("b", 50)

	_, err := Normalize(raw, fixedNow, ShapeStructured)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.True(t, utf8.ValidString(pe.Content), "content %q", pe.Content)
	assert.Equal(t, strings.Repeat("a", maxQuoted-1)+"...", pe.Content)
}

func TestFirstBalancedObject(t *testing.T) {
	obj, ok := firstBalancedObject(`x {"a":"}"} {"b":1}`)
	require.True(t, ok)
	assert.Equal(t, `{"a":"}"}`, obj)

	_, ok = firstBalancedObject(`{ unterminated`)
	assert.False(t, ok)
}
