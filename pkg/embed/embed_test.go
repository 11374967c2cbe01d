package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuncAdapter(t *testing.T) {
	e := NewFunc(3, func(_ context.Context, text string) ([]float32, error) {
		if text == "" {
			return nil, errors.New("empty text")
		}
		return []float32{1, 2, 3}, nil
	})
	assert.Equal(t, 3, e.Dim())

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)

	_, err = e.Embed(context.Background(), "")
	assert.Error(t, err)
}
