// Package provider defines the content/automation collaborator the engine
// delegates step work and recovery advice to.
package provider

import (
	"context"
	"strings"

	"github.com/auraos/orchestrator/pkg/schema"
)

// Provider generates text for a prompt. An error or an empty result is a failure.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to Provider.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Unwired is the production default until a real provider is configured.
// Every call fails, so steps fail and recovery reports no suggestion.
type Unwired struct{}

func (Unwired) Generate(context.Context, string) (string, error) {
	return "", schema.NewError(schema.ErrCodeProvider, "content provider not configured")
}

// Static returns the same text for every prompt. Useful for dry runs and tests.
type Static string

func (s Static) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(s), nil
}

// Parse builds a provider from its config value: "" or "unwired" for
// Unwired, "static:<text>" for Static.
func Parse(value string) (Provider, error) {
	kind, arg, _ := strings.Cut(value, ":")
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "unwired":
		return Unwired{}, nil
	case "static":
		if strings.TrimSpace(arg) == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "static provider needs text, e.g. static:ok")
		}
		return Static(arg), nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown provider %q (want unwired or static:<text>)", kind)
}

// Generate calls p and normalizes the outcome: errors are wrapped as
// PROVIDER_ERROR, whitespace-only text counts as empty.
func Generate(ctx context.Context, p Provider, prompt string) (string, error) {
	if p == nil {
		p = Unwired{}
	}
	text, err := p.Generate(ctx, prompt)
	if err != nil {
		if schema.ErrorCode(err) != "" {
			return "", err
		}
		return "", schema.NewErrorf(schema.ErrCodeProvider, "generate: %s", err.Error()).WithCause(err)
	}
	return strings.TrimSpace(text), nil
}

var (
	_ Provider = Func(nil)
	_ Provider = Unwired{}
	_ Provider = Static("")
)
