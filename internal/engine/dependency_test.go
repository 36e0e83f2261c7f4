package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraos/orchestrator/pkg/schema"
)

func TestDependencyResolver(t *testing.T) {
	r := NewDependencyResolver()
	first := step("a")
	second := step("b", "a")
	third := step("c", "a", "b")

	require.NoError(t, r.Check(&first))

	err := r.Check(&third)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeDependencyUnmet, schema.ErrorCode(err))
	var ee *schema.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, []string{"a", "b"}, ee.Details["missing"])

	r.Complete("a", "alpha")
	require.NoError(t, r.Check(&second))
	r.Complete("b", nil)
	require.NoError(t, r.Check(&third))

	assert.True(t, r.Completed("b"))
	assert.False(t, r.Completed("c"))
	assert.Equal(t, map[string]any{"a": "alpha"}, r.Outputs())
}

func TestDependencyResolver_OutputsIsACopy(t *testing.T) {
	r := NewDependencyResolver()
	r.Complete("a", 1)
	out := r.Outputs()
	out["a"] = 2
	out["z"] = 3
	assert.Equal(t, map[string]any{"a": 1}, r.Outputs())
}
