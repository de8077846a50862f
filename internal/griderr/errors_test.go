package griderr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtStage(t *testing.T) {
	t.Parallel()

	assert.NoError(t, AtStage(StageEncoding, nil))

	inner := fmt.Errorf("write tile 3: %w", ErrIO)
	err := AtStage(StageEncoding, inner)

	assert.True(t, errors.Is(err, ErrIO))
	assert.Equal(t, StageEncoding, StageOf(err))
	assert.Contains(t, err.Error(), "encoding failed")
	assert.Contains(t, err.Error(), "write tile 3")
}

func TestStageOf_NoStage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Stage(""), StageOf(ErrFormat))
	assert.Equal(t, Stage(""), StageOf(nil))
}
