package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/auraos/orchestrator/pkg/schema"
)

// Engine evaluates expressions embedded in workflow definitions.
// Three implementations: CEL (step guards), Expr (trigger signal predicates),
// GoJQ (step output mapping).
type Engine interface {
	Name() string
	// Compile checks an expression without evaluating it. Used at registration.
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// programCache memoizes compiled programs by expression text. Safe for concurrent use.
type programCache[P any] struct {
	mu    sync.RWMutex
	progs map[string]P
}

func newProgramCache[P any]() *programCache[P] {
	return &programCache[P]{progs: make(map[string]P)}
}

func (c *programCache[P]) get(expression string, compile func() (P, error)) (P, error) {
	c.mu.RLock()
	p, ok := c.progs[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.progs[expression]; ok {
		return p, nil
	}
	p, err := compile()
	if err != nil {
		return p, err
	}
	c.progs[expression] = p
	return p, nil
}

// EvaluateBool evaluates expression with e and requires a boolean result.
func EvaluateBool(ctx context.Context, e Engine, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExpression,
			"%s expression %q returned %T, want bool", e.Name(), expression, out).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

func compileError(engine, expression string, err error) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"%s compile error in %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func evalError(engine, expression string, err error) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeExpression,
		"%s evaluation failed for %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func emptyExpression(engine string) *schema.EngineError {
	return schema.NewError(schema.ErrCodeValidation, fmt.Sprintf("empty %s expression", engine))
}
