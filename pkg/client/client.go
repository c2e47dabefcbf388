// Package client calls the analysis API and flattens the result envelope,
// including records written by older servers that stored the result as a
// JSON string.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const defaultPath = "/v1/analyze"

// Result is the canonical analysis result. Either Content is set (free text)
// or the three structured fields are.
type Result struct {
	Description   string `json:"description,omitempty"`
	Diagnosis     string `json:"diagnosis,omitempty"`
	ExtraComments string `json:"extra_comments,omitempty"`
	Content       string `json:"content,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

func (r Result) IsFreeText() bool { return r.Content != "" }

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis request failed: %s: %s", e.Status, e.Body)
}

var ErrEmptyResult = errors.New("response carries no result")

type Client struct {
	BaseURL    string
	Token      string
	Path       string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Analyze submits one image and returns the unwrapped result.
func (c *Client) Analyze(ctx context.Context, imageBase64, imageType string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{
		"imageBase64": imageBase64,
		"imageType":   imageType,
	})
	if err != nil {
		return nil, err
	}

	path := c.Path
	if path == "" {
		path = defaultPath
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()
	return Unwrap(resp)
}

// Unwrap reads an analysis response. It fails on non-2xx with the status and
// body text, and otherwise flattens {result: {result: ...}} envelopes.
func Unwrap(resp *http.Response) (*Result, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return UnwrapBody(body)
}

// UnwrapBody applies the envelope rules to a successful response body.
func UnwrapBody(body []byte) (*Result, error) {
	var env struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, ErrEmptyResult
	}

	inner := env.Result
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Result, &fields); err == nil {
		if nested, ok := fields["result"]; ok {
			inner = nested
		}
	}
	return decodeResult(inner)
}

func decodeResult(raw json.RawMessage) (*Result, error) {
	var legacy string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		// double-encoded: the result was stored as a JSON string
		if r, err := decodeObject([]byte(legacy)); err == nil {
			return r, nil
		}
		if strings.TrimSpace(legacy) == "" {
			return nil, ErrEmptyResult
		}
		return &Result{Content: legacy}, nil
	}
	return decodeObject(raw)
}

func decodeObject(raw []byte) (*Result, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if !hasAny(keys, "content", "description", "diagnosis", "extra_comments") {
		return nil, fmt.Errorf("decode result: no result fields in %s", truncate(string(raw), 120))
	}

	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}

func hasAny(m map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
