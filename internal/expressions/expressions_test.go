package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraos/orchestrator/pkg/schema"
)

func TestCEL_GuardOverStepOutputs(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())

	data := map[string]any{
		"steps":    map[string]any{"analyze": map[string]any{"score": 0.9}},
		"workflow": map[string]any{"category": "content"},
	}
	ok, err := EvaluateBool(context.Background(), e, `steps.analyze.score > 0.5 && workflow.category == "content"`, data)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCEL_MissingVariablesDefaultToEmptyMaps(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	ok, err := EvaluateBool(context.Background(), e, `"analyze" in steps`, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCEL_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	err = e.Compile("steps.(")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

	err = e.Compile("")
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestCEL_NonBoolResult(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = EvaluateBool(context.Background(), e, "1 + 2", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExpression, schema.ErrorCode(err))
}

func TestExpr_ThresholdPredicate(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())

	ctx := context.Background()
	ok, err := EvaluateBool(ctx, e, "engagement > 100", map[string]any{"engagement": 150})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateBool(ctx, e, "engagement > 100", map[string]any{"engagement": 50})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpr_UndefinedVariableIsNil(t *testing.T) {
	e := NewExprEngine()
	ok, err := EvaluateBool(context.Background(), e, "missing == nil", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()
	err := e.Compile("a >")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestGoJQ_OutputMap(t *testing.T) {
	e := NewGoJQEngine()
	assert.Equal(t, "jq", e.Name())

	out, err := e.Evaluate(context.Background(), `{summary: .output, upstream: .steps.fetch}`, map[string]any{
		"output": "draft text",
		"steps":  map[string]any{"fetch": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"summary": "draft text", "upstream": float64(3)}, out)
}

func TestGoJQ_MultipleAndEmptyResults(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, `.items[]`, map[string]any{"items": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, out)

	out, err = e.Evaluate(ctx, `empty`, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_Errors(t *testing.T) {
	e := NewGoJQEngine()
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(e.Compile(".[")))

	_, err := e.Evaluate(context.Background(), `error("bad")`, nil)
	assert.Equal(t, schema.ErrCodeExpression, schema.ErrorCode(err))
}

func TestGoJQ_EnvBlocked(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), `$ENV | length`, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, out)
}

func TestProgramCache_ConcurrentCompile(t *testing.T) {
	e := NewExprEngine()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := EvaluateBool(context.Background(), e, "x >= 1", map[string]any{"x": 1})
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
	assert.Len(t, e.cache.progs, 1)
}
