package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams_Clone(t *testing.T) {
	p := Params{"a": 1}
	c := p.Clone()
	c["a"] = 2
	c["b"] = 3

	assert.Equal(t, 1, p.Int("a"))
	assert.NotContains(t, p, "b")
}

func TestParams_MergeOver(t *testing.T) {
	base := Params{"a": 1, "b": 1}
	over := Params{"b": 2, "c": 2}

	merged := over.MergeOver(base)

	assert.Equal(t, 1, merged.Int("a"))
	assert.Equal(t, 2, merged.Int("b"))
	assert.Equal(t, 2, merged.Int("c"))

	// Inputs stay untouched.
	assert.Equal(t, 1, base.Int("b"))
	assert.NotContains(t, over, "a")
}

func TestParams_MergeOverNil(t *testing.T) {
	var over Params
	merged := over.MergeOver(Params{"a": 1})
	assert.Equal(t, 1, merged.Int("a"))

	merged = Params{"b": 2}.MergeOver(nil)
	assert.Equal(t, 2, merged.Int("b"))
}

func TestParams_TypedAccessors(t *testing.T) {
	p := Params{"name": "x", "idx": float64(4)}
	assert.Equal(t, "x", p.String("name"))
	assert.Equal(t, "", p.String("idx"))
	assert.Equal(t, 4, p.Int("idx"))
	assert.Equal(t, 0, p.Int("missing"))
}
