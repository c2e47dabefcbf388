package stub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
	"github.com/bryanwahyu/medimage-insight/internal/infra/ai/prompt"
)

func TestStubOutputNormalizes(t *testing.T) {
	c := NewClient()
	now := time.Now()

	for _, shape := range []analysis.Shape{analysis.ShapeStructured, analysis.ShapeFreeText} {
		out, err := c.Complete(context.Background(), prompt.Library{}.Build(shape, "data:image/png;base64,AA"))
		require.NoError(t, err)

		r, err := analysis.Normalize(out, now, shape)
		require.NoError(t, err)
		assert.Equal(t, shape, r.Shape)
	}
}

func TestStubIsDeterministic(t *testing.T) {
	req := prompt.Library{}.Build(analysis.ShapeStructured, "data:image/png;base64,AA")
	a, _ := NewClient().Complete(context.Background(), req)
	b, _ := NewClient().Complete(context.Background(), req)
	assert.Equal(t, a, b)
}
