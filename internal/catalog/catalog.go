// Package catalog loads workflow definitions written in YAML: the built-in
// set embedded in the binary and user files on disk.
package catalog

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/auraos/orchestrator/pkg/schema"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Parse decodes one YAML (or JSON) workflow definition. Unknown fields are
// rejected; semantic checks are left to the validator.
func Parse(data []byte) (*schema.Workflow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is empty")
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode yaml: %s", err.Error()).WithCause(err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "workflow definition must be a mapping, got %T", doc)
	}

	// Round-trip through JSON so the schema types' json tags and RawMessage
	// params apply unchanged.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "convert yaml: %s", err.Error()).WithCause(err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	wf := &schema.Workflow{}
	if err := dec.Decode(wf); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode workflow: %s", err.Error()).WithCause(err)
	}
	return wf, nil
}

// LoadFile reads and parses a single definition file.
func LoadFile(name string) (*schema.Workflow, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	wf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return wf, nil
}

// LoadDir parses every *.yaml, *.yml and *.json file in dir, sorted by file
// name. A missing or empty dir yields no workflows.
func LoadDir(dir string) ([]*schema.Workflow, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isDefinitionFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	wfs := make([]*schema.Workflow, 0, len(names))
	for _, name := range names {
		wf, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		wfs = append(wfs, wf)
	}
	return wfs, nil
}

// Builtins returns fresh copies of the embedded built-in workflows, sorted by file name.
func Builtins() ([]*schema.Workflow, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	var wfs []*schema.Workflow
	for _, e := range entries {
		if e.IsDir() || !isDefinitionFile(e.Name()) {
			continue
		}
		data, err := builtinFS.ReadFile(path.Join("builtin", e.Name()))
		if err != nil {
			return nil, err
		}
		wf, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("builtin %s: %w", e.Name(), err)
		}
		wfs = append(wfs, wf)
	}
	return wfs, nil
}

func isDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
