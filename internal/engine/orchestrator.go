package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auraos/orchestrator/internal/expressions"
	"github.com/auraos/orchestrator/internal/logging"
	"github.com/auraos/orchestrator/internal/provider"
	"github.com/auraos/orchestrator/internal/registry"
	"github.com/auraos/orchestrator/internal/scheduler"
	"github.com/auraos/orchestrator/internal/streaming"
	"github.com/auraos/orchestrator/internal/validation"
	"github.com/auraos/orchestrator/pkg/schema"
)

// Default loop intervals and history tail length.
const (
	DefaultCycleInterval     = 15 * time.Second
	DefaultOptimizeInterval  = 5 * time.Minute
	DefaultBroadcastInterval = 10 * time.Second
	DefaultHistoryTail       = 10
)

// Persister is the optional durable store behind the in-memory state.
// Write failures are logged; the engine keeps running from memory.
type Persister interface {
	LoadWorkflows(ctx context.Context) ([]*schema.Workflow, error)
	SaveWorkflow(ctx context.Context, wf *schema.Workflow) error
	AppendExecution(ctx context.Context, rec *schema.ExecutionRecord) error
	AppendRecovery(ctx context.Context, rec *schema.ErrorRecoveryRecord) error
}

// WorkflowValidator checks a definition before it is registered.
type WorkflowValidator interface {
	ValidateWorkflow(wf *schema.Workflow) error
}

// OptimizeHook is invoked for each active workflow on the optimization cycle.
type OptimizeHook func(ctx context.Context, wf *schema.Workflow) error

// Config wires an Orchestrator. Every field is optional.
type Config struct {
	Provider  provider.Provider // default provider.Unwired
	Events    EventSource       // default NoEvents
	Signals   SignalSource      // default NoSignals
	Validator WorkflowValidator // default validation.NewWorkflowValidator
	Persister Persister
	Observer  Observer
	Optimize  OptimizeHook // default logs a checkpoint line
	Clock     func() time.Time
	Sleep     Sleeper
	Logger    *slog.Logger

	CycleInterval     time.Duration
	OptimizeInterval  time.Duration
	BroadcastInterval time.Duration
	HistoryTail       int
}

// Orchestrator owns the workflow registry and execution history and drives
// the orchestration, optimization and broadcast cycles.
type Orchestrator struct {
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	validator WorkflowValidator
	persister Persister
	optimize  OptimizeHook

	registry *registry.WorkflowRegistry
	history  *ExecutionHistory
	fsm      *StatusFSM
	pool     *RunPool
	triggers *TriggerEvaluator
	steps    *StepExecutor
	recovery *ErrorRecoveryAdvisor
	tracker  *PerformanceTracker

	status *streaming.Broadcaster[schema.StatusSnapshot]
	runs   *streaming.Broadcaster[schema.ExecutionRecord]

	mu    sync.Mutex
	loops []*scheduler.Loop
}

// New creates an Orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Provider == nil {
		cfg.Provider = provider.Unwired{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultCycleInterval
	}
	if cfg.OptimizeInterval <= 0 {
		cfg.OptimizeInterval = DefaultOptimizeInterval
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = DefaultBroadcastInterval
	}
	if cfg.HistoryTail <= 0 {
		cfg.HistoryTail = DefaultHistoryTail
	}
	if cfg.Validator == nil {
		v, err := validation.NewWorkflowValidator()
		if err != nil {
			return nil, fmt.Errorf("create validator: %w", err)
		}
		cfg.Validator = v
	}

	guards, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:       cfg,
		logger:    cfg.Logger,
		now:       cfg.Clock,
		validator: cfg.Validator,
		persister: cfg.Persister,
		optimize:  cfg.Optimize,
		registry:  registry.New(),
		history:   NewExecutionHistory(),
		fsm:       NewStatusFSM(),
		pool:      NewRunPool(cfg.Logger),
		triggers:  NewTriggerEvaluator(cfg.Clock, cfg.Events, cfg.Signals, expressions.NewExprEngine()),
		steps:     NewStepExecutor(cfg.Provider, guards, expressions.NewGoJQEngine(), cfg.Sleep, cfg.Observer, cfg.Logger),
		recovery:  NewErrorRecoveryAdvisor(cfg.Provider, cfg.Clock),
		tracker:   NewPerformanceTracker(cfg.Observer),
		status:    streaming.NewBroadcaster[schema.StatusSnapshot]("status", cfg.Logger),
		runs:      streaming.NewBroadcaster[schema.ExecutionRecord]("runs", cfg.Logger),
	}
	if o.optimize == nil {
		o.optimize = o.logCheckpoint
	}
	o.fsm.OnAnyTransition(o.onStatusChange)
	return o, nil
}

// --- Registration ---

// RegisterWorkflow validates wf and inserts or replaces it by ID.
func (o *Orchestrator) RegisterWorkflow(ctx context.Context, wf *schema.Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	wf = wf.Clone()
	wf.Normalize()
	if err := o.validator.ValidateWorkflow(wf); err != nil {
		return err
	}

	now := o.now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	o.registry.Register(wf)

	o.logger.InfoContext(logging.WithWorkflowID(ctx, wf.ID), "workflow registered",
		slog.String("name", wf.Name),
		slog.String("category", string(wf.Category)),
		slog.String("status", string(wf.Status)),
		slog.Int("steps", len(wf.Steps)))
	o.persistWorkflow(ctx, wf.ID)
	return nil
}

// CreateCustomWorkflow builds, registers and returns a new active workflow
// with a generated ID and zeroed performance.
func (o *Orchestrator) CreateCustomWorkflow(ctx context.Context, name string, category schema.WorkflowCategory, steps []schema.Step, triggers []schema.Trigger) (*schema.Workflow, error) {
	wf := &schema.Workflow{
		ID:       "custom-" + uuid.NewString(),
		Name:     name,
		Category: category,
		Steps:    steps,
		Triggers: triggers,
		Status:   schema.WorkflowStatusActive,
	}
	if err := o.RegisterWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return o.registry.Get(wf.ID)
}

// LoadFromStore registers every workflow held by the persister. Invalid
// stored definitions are logged and skipped.
func (o *Orchestrator) LoadFromStore(ctx context.Context) (int, error) {
	if o.persister == nil {
		return 0, nil
	}
	wfs, err := o.persister.LoadWorkflows(ctx)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, wf := range wfs {
		if err := o.RegisterWorkflow(ctx, wf); err != nil {
			o.logger.WarnContext(logging.WithWorkflowID(ctx, wf.ID), "skipping stored workflow",
				slog.String("error", err.Error()))
			continue
		}
		loaded++
	}
	return loaded, nil
}

// --- Status control ---

// PauseWorkflow sets the workflow to paused. Returns false if the ID is unknown.
// An in-flight run is not cancelled.
func (o *Orchestrator) PauseWorkflow(ctx context.Context, id string) bool {
	return o.setStatus(ctx, id, schema.WorkflowStatusPaused)
}

// ResumeWorkflow sets the workflow to active. Returns false if the ID is unknown.
func (o *Orchestrator) ResumeWorkflow(ctx context.Context, id string) bool {
	return o.setStatus(ctx, id, schema.WorkflowStatusActive)
}

func (o *Orchestrator) setStatus(ctx context.Context, id string, to schema.WorkflowStatus) bool {
	var (
		from    schema.WorkflowStatus
		changed bool
		tErr    error
	)
	err := o.registry.Update(id, func(wf *schema.Workflow) {
		from = wf.Status
		if from == to {
			return
		}
		if tErr = o.fsm.Check(id, from, to); tErr != nil {
			return
		}
		wf.Status = to
		wf.UpdatedAt = o.now()
		changed = true
	})
	if err != nil {
		return false
	}
	if tErr != nil {
		o.logger.WarnContext(logging.WithWorkflowID(ctx, id), "status change rejected",
			slog.String("error", tErr.Error()))
		return true
	}
	if changed {
		o.fsm.Fire(ctx, id, from, to)
	}
	return true
}

func (o *Orchestrator) onStatusChange(ctx context.Context, workflowID string, from, to schema.WorkflowStatus) {
	o.logger.InfoContext(logging.WithWorkflowID(ctx, workflowID), "workflow status changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	o.persistWorkflow(ctx, workflowID)
}

// --- Queries ---

// Workflow returns a copy of the workflow, or NOT_FOUND.
func (o *Orchestrator) Workflow(id string) (*schema.Workflow, error) {
	return o.registry.Get(id)
}

// Workflows returns copies of all workflows in registration order.
func (o *Orchestrator) Workflows() []*schema.Workflow {
	return o.registry.List()
}

// WorkflowStats aggregates counts and performance across all workflows.
func (o *Orchestrator) WorkflowStats() schema.WorkflowStats {
	wfs := o.registry.List()
	stats := schema.WorkflowStats{
		Total:     len(wfs),
		ByStatus:  o.registry.CountByStatus(),
		Workflows: make([]schema.WorkflowSummary, 0, len(wfs)),
	}
	var rateSum float64
	for _, wf := range wfs {
		if wf.Status == schema.WorkflowStatusActive {
			stats.Active++
		}
		stats.TotalExecutions += wf.Performance.Executions
		rateSum += wf.Performance.SuccessRate
		stats.Workflows = append(stats.Workflows, schema.Summarize(wf))
	}
	if len(wfs) > 0 {
		stats.AverageSuccessRate = rateSum / float64(len(wfs))
	}
	return stats
}

// WorkflowStatus returns the detail view of one workflow, or NOT_FOUND.
func (o *Orchestrator) WorkflowStatus(id string) (*schema.WorkflowStatusReport, error) {
	wf, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return &schema.WorkflowStatusReport{
		ID:               wf.ID,
		Status:           wf.Status,
		Performance:      wf.Performance,
		RecentExecutions: o.history.ForWorkflow(id, o.cfg.HistoryTail),
	}, nil
}

// ExecutionHistory returns the last limit run records; limit <= 0 returns all.
func (o *Orchestrator) ExecutionHistory(limit int) []schema.ExecutionRecord {
	return o.history.Tail(limit)
}

// Recoveries returns the last limit recovery records; limit <= 0 returns all.
func (o *Orchestrator) Recoveries(limit int) []schema.ErrorRecoveryRecord {
	return o.history.Recoveries(limit)
}

// Snapshot builds the live status snapshot sent to subscribers.
func (o *Orchestrator) Snapshot() schema.StatusSnapshot {
	wfs := o.registry.List()
	snap := schema.StatusSnapshot{
		Timestamp:        o.now(),
		TotalWorkflows:   len(wfs),
		ByStatus:         o.registry.CountByStatus(),
		RecentExecutions: o.history.Tail(o.cfg.HistoryTail),
		Workflows:        make([]schema.WorkflowSummary, 0, len(wfs)),
	}
	for _, wf := range wfs {
		if wf.Status == schema.WorkflowStatusActive {
			snap.ActiveWorkflows++
		}
		p := wf.Performance
		snap.Health.TotalExecutions += p.Executions
		snap.Health.AverageSuccessRate += p.SuccessRate
		snap.Health.AverageErrorRate += p.ErrorRate
		snap.Health.AverageExecutionTime += p.AverageExecutionTime
		snap.Workflows = append(snap.Workflows, schema.Summarize(wf))
	}
	if n := float64(len(wfs)); n > 0 {
		snap.Health.AverageSuccessRate /= n
		snap.Health.AverageErrorRate /= n
		snap.Health.AverageExecutionTime /= n
	}
	return snap
}

// --- Subscriptions ---

// SubscribeToWorkflowUpdates registers fn for periodic status snapshots.
func (o *Orchestrator) SubscribeToWorkflowUpdates(fn streaming.Subscriber[schema.StatusSnapshot]) (unsubscribe func()) {
	return o.status.Subscribe(fn)
}

// SubscribeToRuns registers fn for every finished run.
func (o *Orchestrator) SubscribeToRuns(fn streaming.Subscriber[schema.ExecutionRecord]) (unsubscribe func()) {
	return o.runs.Subscribe(fn)
}

// Broadcast builds a snapshot and delivers it to every status subscriber.
func (o *Orchestrator) Broadcast(ctx context.Context) int {
	return o.status.Broadcast(ctx, o.Snapshot())
}

// --- Cycles ---

// RunCycle evaluates the triggers of every active workflow and submits a run
// for each one that fires. Runs proceed in the background; use Wait to block
// until they finish. Returns the number of runs submitted.
func (o *Orchestrator) RunCycle(ctx context.Context) int {
	submitted := 0
	for _, wf := range o.registry.ListByStatus(schema.WorkflowStatusActive) {
		wfCtx := logging.WithWorkflowID(ctx, wf.ID)

		fire, err := o.triggers.ShouldRun(wfCtx, wf.ID, wf.Triggers)
		if err != nil {
			o.logger.WarnContext(wfCtx, "trigger evaluation failed, skipping workflow this cycle",
				slog.String("error", err.Error()))
			continue
		}
		if !fire {
			continue
		}

		err = o.pool.Submit(ctx, wf.ID, func(ctx context.Context) { o.execute(ctx, wf) })
		switch {
		case err == nil:
			submitted++
		case schema.ErrorCode(err) == schema.ErrCodeConflict:
			o.logger.InfoContext(wfCtx, "previous run still in progress, skipping")
		case errors.Is(err, ErrPoolShutdown):
			return submitted
		default:
			o.logger.ErrorContext(wfCtx, "submit run failed", slog.String("error", err.Error()))
		}
	}
	return submitted
}

// RunWorkflow executes one workflow synchronously regardless of its triggers
// and status. Returns CONFLICT if a run is already in flight.
func (o *Orchestrator) RunWorkflow(ctx context.Context, id string) (*schema.ExecutionRecord, error) {
	wf, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}
	var rec *schema.ExecutionRecord
	if err := o.pool.Run(ctx, id, func(ctx context.Context) { rec = o.execute(ctx, wf) }); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "run of workflow %q aborted unexpectedly", id).WithWorkflow(id)
	}
	return rec, nil
}

// OptimizeCycle invokes the optimize hook for each active workflow.
func (o *Orchestrator) OptimizeCycle(ctx context.Context) {
	for _, wf := range o.registry.ListByStatus(schema.WorkflowStatusActive) {
		wfCtx := logging.WithWorkflowID(ctx, wf.ID)
		if err := o.optimize(wfCtx, wf); err != nil {
			o.logger.WarnContext(wfCtx, "optimize hook failed", slog.String("error", err.Error()))
		}
	}
}

func (o *Orchestrator) logCheckpoint(ctx context.Context, wf *schema.Workflow) error {
	o.logger.InfoContext(ctx, "optimization checkpoint",
		slog.Int64("executions", wf.Performance.Executions),
		slog.Float64("success_rate", wf.Performance.SuccessRate),
		slog.Float64("error_rate", wf.Performance.ErrorRate),
		slog.Float64("average_execution_time_ms", wf.Performance.AverageExecutionTime))
	return nil
}

// Wait blocks until every in-flight run has finished.
func (o *Orchestrator) Wait() {
	o.pool.Wait()
}

// PoolMetrics reports run pool counters.
func (o *Orchestrator) PoolMetrics() PoolMetrics {
	return o.pool.Metrics()
}

// Start launches the orchestration, optimization and broadcast loops.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.loops) > 0 {
		return errors.New("orchestrator already started")
	}

	loops := []*scheduler.Loop{
		scheduler.NewLoop("orchestration", o.cfg.CycleInterval, func(ctx context.Context) { o.RunCycle(ctx) }, o.logger),
		scheduler.NewLoop("optimization", o.cfg.OptimizeInterval, o.OptimizeCycle, o.logger),
		scheduler.NewLoop("broadcast", o.cfg.BroadcastInterval, func(ctx context.Context) { o.Broadcast(ctx) }, o.logger),
	}
	for i, l := range loops {
		if err := l.Start(ctx); err != nil {
			for _, started := range loops[:i] {
				started.Stop()
			}
			return err
		}
	}
	o.loops = loops
	o.logger.InfoContext(ctx, "orchestrator started", slog.Int("workflows", o.registry.Len()))
	return nil
}

// Stop cancels the loops, rejects new runs and waits for in-flight runs.
// The orchestrator cannot be restarted afterwards.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	loops := o.loops
	o.loops = nil
	o.mu.Unlock()

	for _, l := range loops {
		l.Stop()
	}
	o.pool.Shutdown()
	o.logger.Info("orchestrator stopped")
}

// --- Run ---

// execute performs one run of wf: steps in declared order, dependency check,
// execution with retry, recovery on exhaustion. It always records the
// outcome in performance and history.
func (o *Orchestrator) execute(ctx context.Context, wf *schema.Workflow) *schema.ExecutionRecord {
	execID := uuid.NewString()
	ctx = logging.WithRun(ctx, wf.ID, execID)
	started := time.Now()

	rec := &schema.ExecutionRecord{
		ExecutionID: execID,
		WorkflowID:  wf.ID,
		Timestamp:   o.now(),
		Steps:       len(wf.Steps),
		StepResults: make([]schema.StepResult, 0, len(wf.Steps)),
	}
	o.logger.InfoContext(ctx, "workflow run started", slog.Int("steps", len(wf.Steps)))

	deps := NewDependencyResolver()
	var runErr error
	for i := range wf.Steps {
		step := &wf.Steps[i]
		stepCtx := logging.WithStepID(ctx, step.ID)
		stepStart := time.Now()
		result := schema.StepResult{StepID: step.ID}

		if err := deps.Check(step); err != nil {
			result.Outcome = schema.StepFailed
			result.Error = err.Error()
			rec.StepResults = append(rec.StepResults, result)
			runErr = err
			o.logger.WarnContext(stepCtx, "step dependencies not met, aborting run", slog.String("error", err.Error()))
			break
		}

		out, err := o.steps.ExecuteWithRetry(stepCtx, wf, step, deps.Outputs())
		result.Attempts = out.Attempts
		if err == nil {
			result.Outcome = schema.StepCompleted
			if out.Skipped {
				result.Outcome = schema.StepSkipped
			}
			result.DurationMs = stepDuration(stepStart)
			rec.StepResults = append(rec.StepResults, result)
			deps.Complete(step.ID, out.Data)
			o.logger.DebugContext(stepCtx, "step finished",
				slog.String("outcome", string(result.Outcome)),
				slog.Int("attempts", result.Attempts))
			continue
		}

		result.Error = err.Error()
		o.logger.WarnContext(stepCtx, "step failed, requesting recovery",
			slog.Int("attempts", result.Attempts),
			slog.String("error", err.Error()))

		recovery, recErr := o.recovery.AttemptRecovery(stepCtx, wf, step, execID, err)
		o.history.AppendRecovery(recovery)
		o.cfg.Observer.ObserveRecovery(recovery.Success)
		o.persistRecovery(stepCtx, &recovery)

		result.DurationMs = stepDuration(stepStart)
		if recErr != nil {
			result.Outcome = schema.StepFailed
			rec.StepResults = append(rec.StepResults, result)
			runErr = recErr
			o.logger.ErrorContext(stepCtx, "recovery failed, aborting run", slog.String("error", recErr.Error()))
			break
		}

		result.Outcome = schema.StepRecovered
		rec.StepResults = append(rec.StepResults, result)
		deps.Complete(step.ID, nil)
		o.logger.InfoContext(stepCtx, "step recovered, continuing run", slog.String("suggestion", recovery.Suggestion))
	}

	rec.ExecutionTime = time.Since(started).Milliseconds()
	rec.Success = runErr == nil
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	o.finish(ctx, rec)
	return rec
}

// finish folds rec into the workflow's performance, appends it to history,
// persists both and notifies run subscribers.
func (o *Orchestrator) finish(ctx context.Context, rec *schema.ExecutionRecord) {
	err := o.registry.Update(rec.WorkflowID, func(wf *schema.Workflow) {
		o.tracker.Record(wf, rec)
		wf.UpdatedAt = o.now()
	})
	if err != nil {
		o.logger.WarnContext(ctx, "workflow disappeared before its run finished", slog.String("error", err.Error()))
	}
	o.history.Append(*rec)

	if o.persister != nil {
		if err := o.persister.AppendExecution(ctx, rec); err != nil {
			o.logger.ErrorContext(ctx, "persist execution failed", slog.String("error", err.Error()))
		}
		o.persistWorkflow(ctx, rec.WorkflowID)
	}

	attrs := []any{
		slog.Bool("success", rec.Success),
		slog.Int64("execution_time_ms", rec.ExecutionTime),
	}
	if rec.Error != "" {
		attrs = append(attrs, slog.String("error", rec.Error))
	}
	o.logger.InfoContext(ctx, "workflow run finished", attrs...)

	o.runs.Broadcast(ctx, *rec)
}

func (o *Orchestrator) persistWorkflow(ctx context.Context, id string) {
	if o.persister == nil {
		return
	}
	wf, err := o.registry.Get(id)
	if err != nil {
		return
	}
	if err := o.persister.SaveWorkflow(ctx, wf); err != nil {
		o.logger.ErrorContext(logging.WithWorkflowID(ctx, id), "persist workflow failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) persistRecovery(ctx context.Context, rec *schema.ErrorRecoveryRecord) {
	if o.persister == nil {
		return
	}
	if err := o.persister.AppendRecovery(ctx, rec); err != nil {
		o.logger.ErrorContext(ctx, "persist recovery failed", slog.String("error", err.Error()))
	}
}
