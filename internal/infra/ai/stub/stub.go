package stub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/medimage-insight/internal/domain/ai"
)

// Client is a deterministic, no-network model stub for local runs and
// end-to-end tests. Structured requests get schema-valid JSON, free-text
// requests get a sentence.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) Complete(_ context.Context, req ai.Request) (string, error) {
	sum := sha256.Sum256([]byte(req.Instruction + req.ImageURL))
	short := hex.EncodeToString(sum[:8])

	if req.Schema == nil {
		return fmt.Sprintf("Stubbed observations for image %s. No findings were produced by a real model.", short), nil
	}

	b, err := json.Marshal(map[string]string{
		"description":    fmt.Sprintf("Stub analysis (%s)", short),
		"diagnosis":      "No diagnosis: stub model",
		"extra_comments": "Configure model.provider=openai for real results.",
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
