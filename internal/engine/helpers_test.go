package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/auraos/orchestrator/pkg/schema"
)

// scriptedProvider answers step prompts by step name. failures[name] is the
// number of attempts that fail before one succeeds; -1 fails forever.
type scriptedProvider struct {
	mu          sync.Mutex
	calls       []string
	failures    map[string]int
	responses   map[string]string
	suggestion  string
	recoveryErr error
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		failures:   map[string]int{},
		responses:  map[string]string{},
		suggestion: "retry later with a smaller batch",
	}
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	name := promptStepName(prompt)
	if strings.HasPrefix(prompt, "A workflow step failed") {
		p.calls = append(p.calls, "recover:"+name)
		return p.suggestion, p.recoveryErr
	}

	p.calls = append(p.calls, name)
	switch n := p.failures[name]; {
	case n < 0:
		return "", errors.New("upstream unavailable")
	case n > 0:
		p.failures[name] = n - 1
		return "", errors.New("upstream unavailable")
	}
	if resp, ok := p.responses[name]; ok {
		return resp, nil
	}
	return "done: " + name, nil
}

func (p *scriptedProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func promptStepName(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, "Step: "); ok {
			if i := strings.Index(rest, " ["); i >= 0 {
				return rest[:i]
			}
		}
	}
	return ""
}

// sleepRecorder replaces WaitForBackoff and records requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// recordingObserver counts observations.
type recordingObserver struct {
	mu         sync.Mutex
	attempts   map[string]int // "<type>/<ok>"
	runs       map[string]int // "<category>/<ok>"
	recoveries map[bool]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{attempts: map[string]int{}, runs: map[string]int{}, recoveries: map[bool]int{}}
}

func (o *recordingObserver) ObserveStepAttempt(t schema.StepType, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts[string(t)+"/"+okLabel(ok)]++
}

func (o *recordingObserver) ObserveRun(category schema.WorkflowCategory, ok bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs[string(category)+"/"+okLabel(ok)]++
}

func (o *recordingObserver) ObserveRecovery(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recoveries[ok]++
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func dailyTrigger(at string) schema.Trigger {
	return schema.Trigger{
		Type:    schema.TriggerSchedule,
		Enabled: true,
		Params:  json.RawMessage(`{"frequency":"daily","time":"` + at + `"}`),
	}
}

func step(id string, deps ...string) schema.Step {
	return schema.Step{ID: id, Name: id, Type: schema.StepTypeDataProcessing, Dependencies: deps}
}
