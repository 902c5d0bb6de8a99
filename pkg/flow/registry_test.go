package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

func testBuilder(name string) Builder {
	return func() (Node, error) {
		return NewTask(TaskConfig{Name: name})
	}
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("alpha", testBuilder("alpha")))

	node, err := r.Build("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", node.Name())

	// Each build yields a fresh graph.
	other, err := r.Build("alpha")
	require.NoError(t, err)
	assert.NotSame(t, node, other)
}

func TestRegistry_DuplicateIsConflict(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("alpha", testBuilder("alpha")))

	err := r.Register("alpha", testBuilder("alpha"))
	require.Error(t, err)
	var de *schema.DojoError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, schema.ErrCodeConflict, de.Code)
}

func TestRegistry_UnknownIsNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("ghost")
	require.Error(t, err)
	var de *schema.DojoError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, schema.ErrCodeNotFound, de.Code)
}

func TestRegistry_InvalidRegistrations(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("", testBuilder("x")))
	assert.Error(t, r.Register("x", nil))
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("zeta", testBuilder("zeta")))
	require.NoError(t, r.Register("alpha", testBuilder("alpha")))
	require.NoError(t, r.Register("mid", testBuilder("mid")))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
}
