package expressions

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/auraos/orchestrator/pkg/schema"
)

// InterpolationScope holds the data ${{...}} references resolve against.
type InterpolationScope struct {
	Steps    map[string]any // step ID -> output of a step completed earlier in the run
	Workflow map[string]any // id, name, category
}

// Interpolate resolves ${{...}} references in the string values of raw
// step params:
//
//	${{steps.<id>}}             whole output of an earlier step
//	${{steps.<id>.<path>}}      field or index of a structured output
//	${{workflow.<field>}}       id, name or category
//
// A string that is exactly one reference takes the referenced value with
// its JSON type. References inside longer strings are stringified.
func Interpolate(raw json.RawMessage, scope *InterpolationScope) (json.RawMessage, error) {
	if !HasInterpolation(raw) {
		return raw, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "decode params: %s", err.Error()).WithCause(err)
	}

	resolved, err := interpolateValue(doc, scope)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(resolved)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "encode params: %s", err.Error()).WithCause(err)
	}
	return out, nil
}

func interpolateValue(v any, scope *InterpolationScope) (any, error) {
	switch val := v.(type) {
	case string:
		return interpolateString(val, scope)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := interpolateValue(item, scope)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := interpolateValue(item, scope)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func interpolateString(input string, scope *InterpolationScope) (any, error) {
	if !strings.Contains(input, "${{") {
		return input, nil
	}

	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		idx := strings.Index(input[i:], "${{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}
		result.WriteString(input[i : i+idx])
		start := i + idx + 3

		end := strings.Index(input[start:], "}}")
		if end == -1 {
			return nil, schema.NewError(schema.ErrCodeExpression, "unclosed ${{ reference")
		}
		end += start

		expr := strings.TrimSpace(input[start:end])
		if strings.Contains(expr, "${{") {
			return nil, schema.NewError(schema.ErrCodeExpression, "nested ${{ references are not allowed")
		}
		if expr == "" {
			return nil, schema.NewError(schema.ErrCodeExpression, "empty reference ${{ }}")
		}

		val, err := resolveRef(expr, scope)
		if err != nil {
			return nil, err
		}

		// The whole string is a single reference: keep the value's type.
		if i+idx == 0 && end+2 == len(input) {
			return val, nil
		}
		result.WriteString(stringify(val))
		i = end + 2
	}
	return result.String(), nil
}

func resolveRef(expr string, scope *InterpolationScope) (any, error) {
	namespace, rest, _ := strings.Cut(expr, ".")
	switch namespace {
	case "steps":
		id, path, _ := strings.Cut(rest, ".")
		if id == "" {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"invalid step reference %q: expected steps.<id>[.<field>]", expr).
				WithDetails(map[string]any{"expression": expr})
		}
		output, ok := scope.Steps[id]
		if !ok {
			available := mapKeys(scope.Steps)
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"step %q has no output in ${{%s}}; available: [%s]", id, expr, strings.Join(available, ", ")).
				WithDetails(map[string]any{"expression": expr, "available_steps": available})
		}
		if path == "" {
			return output, nil
		}
		return traversePath(output, path, expr)
	case "workflow":
		if rest == "" {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"invalid workflow reference %q: expected workflow.<field>", expr)
		}
		val, ok := scope.Workflow[rest]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"unknown workflow field %q; available: [%s]", rest, strings.Join(mapKeys(scope.Workflow), ", "))
		}
		return val, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"unknown namespace %q in ${{%s}}; available: steps, workflow", namespace, expr).
			WithDetails(map[string]any{"expression": expr})
	}
}

// traversePath walks nested objects by key and arrays by index.
// Provider text that holds a JSON document is decoded before traversal.
func traversePath(root any, path, expr string) (any, error) {
	current := root
	for i, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"empty segment in %q at position %d", expr, i)
		}
		if s, ok := current.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				current = decoded
			}
		}

		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				available := mapKeys(v)
				return nil, schema.NewErrorf(schema.ErrCodeExpression,
					"field %q not found in %q; available: [%s]", seg, expr, strings.Join(available, ", ")).
					WithDetails(map[string]any{"expression": expr, "available_fields": available})
			}
			current = val
		case []any:
			n, err := strconv.Atoi(seg)
			if err != nil || n < 0 || n >= len(v) {
				return nil, schema.NewErrorf(schema.ErrCodeExpression,
					"index %q out of range in %q (length %d)", seg, expr, len(v))
			}
			current = v[n]
		default:
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"cannot traverse into %T at %q in %q", current, seg, expr)
		}
	}
	return current, nil
}

func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasInterpolation reports whether raw contains any ${{...}} reference.
func HasInterpolation(raw json.RawMessage) bool {
	return bytes.Contains(raw, []byte("${{"))
}

// StepRefs returns the sorted, de-duplicated step IDs referenced through
// ${{steps.<id>...}} in raw.
func StepRefs(raw json.RawMessage) []string {
	s := string(raw)
	seen := make(map[string]bool)
	for {
		idx := strings.Index(s, "${{")
		if idx == -1 {
			break
		}
		rest := s[idx+3:]
		closeIdx := strings.Index(rest, "}}")
		if closeIdx == -1 {
			break
		}
		expr := strings.TrimSpace(rest[:closeIdx])
		if after, ok := strings.CutPrefix(expr, "steps."); ok {
			id, _, _ := strings.Cut(after, ".")
			if id != "" {
				seen[id] = true
			}
		}
		s = rest[closeIdx+2:]
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
