package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraos/orchestrator/internal/validation"
	"github.com/auraos/orchestrator/pkg/schema"
)

func TestBuiltins_AreValid(t *testing.T) {
	wfs, err := Builtins()
	require.NoError(t, err)
	require.Len(t, wfs, 5)

	v, err := validation.NewWorkflowValidator()
	require.NoError(t, err)

	categories := map[schema.WorkflowCategory]bool{}
	ids := map[string]bool{}
	for _, wf := range wfs {
		res := v.Validate(wf)
		assert.True(t, res.Valid(), "%s: %+v", wf.ID, res.Errors)
		assert.False(t, ids[wf.ID], "duplicate id %s", wf.ID)
		ids[wf.ID] = true
		categories[wf.Category] = true
		assert.Equal(t, schema.WorkflowStatusActive, wf.Status)
	}
	assert.Len(t, categories, 5, "one built-in per category")
}

func TestBuiltins_ReturnsFreshCopies(t *testing.T) {
	first, err := Builtins()
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := Builtins()
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second[0].Name)
}

func TestParse(t *testing.T) {
	wf, err := Parse([]byte(`
id: demo
name: Demo
category: system
steps:
  - id: a
    type: system_action
    params:
      target: disk
      limit: 3
    retry_policy: {max_retries: 2, backoff_strategy: linear, retry_delay: 250}
triggers:
  - type: schedule
    enabled: true
    params: {frequency: daily, time: "08:15"}
`))
	require.NoError(t, err)
	assert.Equal(t, "demo", wf.ID)
	require.Len(t, wf.Steps, 1)
	assert.JSONEq(t, `{"target":"disk","limit":3}`, string(wf.Steps[0].Params))
	assert.Equal(t, schema.BackoffLinear, wf.Steps[0].RetryPolicy.BackoffStrategy)
	assert.Equal(t, int64(250), wf.Steps[0].RetryPolicy.RetryDelay)

	sp, err := wf.Triggers[0].ScheduleParams()
	require.NoError(t, err)
	assert.Equal(t, "08:15", sp.Time)
}

func TestParse_TriggerEnabledByDefault(t *testing.T) {
	wf, err := Parse([]byte(`
id: demo
name: Demo
category: system
steps:
  - id: a
    type: system_action
triggers:
  - type: schedule
    params: {frequency: daily, time: "08:15"}
  - type: event
    enabled: false
    params: {event: disk.full}
`))
	require.NoError(t, err)
	require.Len(t, wf.Triggers, 2)
	assert.True(t, wf.Triggers[0].Enabled)
	assert.False(t, wf.Triggers[1].Enabled)

	_, err = Parse([]byte("id: x\nname: X\ncategory: food\nsteps: []\ntriggers:\n  - type: event\n    when: now\n"))
	require.Error(t, err, "unknown trigger fields stay rejected")
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestParse_AcceptsJSON(t *testing.T) {
	wf, err := Parse([]byte(`{"id":"j","name":"J","category":"food","steps":[{"id":"s","type":"ai_analysis"}]}`))
	require.NoError(t, err)
	assert.Equal(t, schema.CategoryFood, wf.Category)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "  \n"},
		{"not a mapping", "- a\n- b\n"},
		{"bad yaml", "id: [unclosed"},
		{"unknown field", "id: x\nname: X\ncategory: food\nowner: me\nsteps: []\n"},
		{"wrong type", "id: x\nname: X\ncategory: food\nsteps: nope\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("b.yaml", "id: b\nname: B\ncategory: food\nsteps: [{id: s, type: ai_analysis}]\n")
	write("a.yml", "id: a\nname: A\ncategory: food\nsteps: [{id: s, type: ai_analysis}]\n")
	write("notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o700))

	wfs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, wfs, 2)
	assert.Equal(t, "a", wfs[0].ID)
	assert.Equal(t, "b", wfs[1].ID)

	wfs, err = LoadDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, wfs)

	write("c.yaml", "id: [")
	_, err = LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c.yaml")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
