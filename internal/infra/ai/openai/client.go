package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/medimage-insight/internal/domain/ai"
)

const (
	defaultModel     = "gpt-4.1-mini"
	defaultMaxTokens = 1000
	defaultAPIKeyEnv = "OPENAI_API_KEY"
)

// CredentialFunc returns the API key to use for one request. An empty
// result means no key is configured.
type CredentialFunc func() string

// FromEnv reads the key from the named environment variable on every call.
func FromEnv(name string) CredentialFunc {
	if name == "" {
		name = defaultAPIKeyEnv
	}
	return func() string { return strings.TrimSpace(os.Getenv(name)) }
}

type Options struct {
	Model      string
	BaseURL    string
	MaxTokens  int
	Detail     string
	Timeout    time.Duration
	Credential CredentialFunc
	HTTPClient *http.Client
}

// Client calls the chat completions endpoint with one text part and one image part.
type Client struct {
	opts Options
}

func NewClient(opts Options) *Client {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Detail == "" {
		opts.Detail = string(openai.ImageURLDetailAuto)
	}
	if opts.Credential == nil {
		opts.Credential = FromEnv(defaultAPIKeyEnv)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{opts: opts}
}

// Complete sends one request and returns the first choice's content. It never retries.
func (c *Client) Complete(ctx context.Context, in ai.Request) (string, error) {
	key := c.opts.Credential()
	if key == "" {
		return "", ai.ErrMissingCredential
	}

	cfg := openai.DefaultConfig(key)
	if c.opts.BaseURL != "" {
		cfg.BaseURL = c.opts.BaseURL
	}
	cfg.HTTPClient = c.opts.HTTPClient
	cli := openai.NewClientWithConfig(cfg)

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	resp, err := cli.CreateChatCompletion(ctx, c.buildRequest(in))
	if err != nil {
		return "", upstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ai.UpstreamError{Err: errors.New("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) buildRequest(in ai.Request) openai.ChatCompletionRequest {
	model := c.opts.Model
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: in.Instruction},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    in.ImageURL,
							Detail: openai.ImageURLDetail(c.opts.Detail),
						},
					},
				},
			},
		},
	}
	if in.Schema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   in.SchemaName,
				Schema: in.Schema,
				Strict: true,
			},
		}
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = c.opts.MaxTokens
	} else {
		req.MaxTokens = c.opts.MaxTokens
	}
	return req
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// upstreamError keeps the status code and body of non-2xx replies.
func upstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ai.UpstreamError{
			StatusCode: apiErr.HTTPStatusCode,
			Status:     http.StatusText(apiErr.HTTPStatusCode),
			Body:       apiErrorBody(apiErr),
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ai.UpstreamError{
			StatusCode: reqErr.HTTPStatusCode,
			Status:     http.StatusText(reqErr.HTTPStatusCode),
			Body:       string(reqErr.Body),
			Err:        err,
		}
	}
	return &ai.UpstreamError{Err: err}
}

// apiErrorBody rebuilds a readable body from the decoded error envelope; the
// raw reply is not kept by the SDK once it has been parsed.
func apiErrorBody(e *openai.APIError) string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Type != "" {
		fmt.Fprintf(&b, " [type: %s]", e.Type)
	}
	if e.Code != nil {
		fmt.Fprintf(&b, " [code: %v]", e.Code)
	}
	return b.String()
}
