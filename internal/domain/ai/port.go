package ai

import (
	"context"
	"encoding/json"
)

// Request is one vision completion: an instruction, an inline image and an
// optional JSON schema the reply must follow.
type Request struct {
	Instruction string
	ImageURL    string

	// Schema is nil when the reply is free text.
	SchemaName string
	Schema     json.Marshaler
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
