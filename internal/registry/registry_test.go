package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := New[func(int) int]("ops")
	r.Register("double", func(x int) int { return 2 * x })
	r.Register("neg", func(x int) int { return -x })

	f, err := r.Get("double")
	require.NoError(t, err)
	assert.Equal(t, 6, f(3))
	assert.True(t, r.Has("neg"))
	assert.Equal(t, []string{"double", "neg"}, r.Names())

	_, err = r.Get("triple")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownType))
	assert.Contains(t, err.Error(), "double, neg")
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := New[int]("ints")
	r.Register("one", 1)
	assert.Panics(t, func() { r.Register("one", 2) })
}
