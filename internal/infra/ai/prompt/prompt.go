package prompt

import (
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/bryanwahyu/medimage-insight/internal/domain/ai"
	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
)

// SchemaName is sent with structured requests as the json_schema name.
const SchemaName = "medical_image_analysis"

// GetStructuredPrompt asks for the three findings fields as a single JSON object.
func GetStructuredPrompt() string {
	return `Analyze this medical image and provide detailed information in the following JSON structure:
{
  "description": "Detailed description of what you see in the image",
  "diagnosis": "Potential diagnosis or normal findings",
  "extra_comments": "Additional insights, recommendations, or observations"
}

Ensure your response is ONLY valid JSON with these three fields.
Be professional, thorough, and medically accurate.`
}

// GetFreeTextPrompt is used for demo requests; the reply is plain prose.
func GetFreeTextPrompt() string {
	return "Provide factual observations of this image, providing *hypothetical* medical diagnoses. This is for testing purposes only."
}

// FindingsSchema mirrors analysis.Findings. Strict mode requires every
// property to be listed as required and no extra properties.
func FindingsSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"description": {
				Type:        jsonschema.String,
				Description: "Detailed description of what is visible in the image",
			},
			"diagnosis": {
				Type:        jsonschema.String,
				Description: "Potential diagnosis or normal findings",
			},
			"extra_comments": {
				Type:        jsonschema.String,
				Description: "Additional insights, recommendations, or observations",
			},
		},
		Required:             []string{"description", "diagnosis", "extra_comments"},
		AdditionalProperties: false,
	}
}

// Library builds model requests per result shape.
type Library struct{}

func (Library) Build(shape analysis.Shape, imageURL string) ai.Request {
	if shape == analysis.ShapeFreeText {
		return ai.Request{Instruction: GetFreeTextPrompt(), ImageURL: imageURL}
	}
	return ai.Request{
		Instruction: GetStructuredPrompt(),
		ImageURL:    imageURL,
		SchemaName:  SchemaName,
		Schema:      FindingsSchema(),
	}
}
