package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// celVariables are the top-level names a step guard can reference:
//   - steps:    map(string, dyn) - outputs of completed steps keyed by step ID
//   - workflow: map(string, dyn) - id, name, category of the running workflow
//   - params:   map(string, dyn) - the guarded step's own params
var celVariables = []string{"steps", "workflow", "params"}

// CELEngine evaluates step guard conditions with Common Expression Language.
type CELEngine struct {
	env   *cel.Env
	cache *programCache[cel.Program]
}

// NewCELEngine creates a CEL engine over the guard variables.
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)
	opts := make([]cel.EnvOption, 0, len(celVariables))
	for _, v := range celVariables {
		opts = append(opts, cel.Variable(v, mapType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{env: env, cache: newProgramCache[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// Evaluate runs expression against data. Missing guard variables default to empty maps.
func (e *CELEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(celVariables))
	for _, v := range celVariables {
		if val, ok := data[v]; ok && val != nil {
			activation[v] = val
		} else {
			activation[v] = map[string]any{}
		}
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, evalError(e.Name(), expression, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) program(expression string) (cel.Program, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	return e.cache.get(expression, func() (cel.Program, error) {
		ast, issues := e.env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return nil, compileError(e.Name(), expression, issues.Err())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, compileError(e.Name(), expression, err)
		}
		return prg, nil
	})
}

var _ Engine = (*CELEngine)(nil)
