package engine

import (
	"time"

	"github.com/auraos/orchestrator/pkg/schema"
)

// Observer receives execution measurements. internal/metrics implements it
// with prometheus collectors.
type Observer interface {
	ObserveStepAttempt(stepType schema.StepType, success bool)
	ObserveRun(category schema.WorkflowCategory, success bool, duration time.Duration)
	ObserveRecovery(success bool)
}

type nopObserver struct{}

func (nopObserver) ObserveStepAttempt(schema.StepType, bool)                {}
func (nopObserver) ObserveRun(schema.WorkflowCategory, bool, time.Duration) {}
func (nopObserver) ObserveRecovery(bool)                                    {}
