package procedure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nodeforge/nodeforge/pkg/telemetry"
	"github.com/nodeforge/nodeforge/pkg/workspace"
)

// HistoryRecorder receives checkpoint transitions and run outcomes
// for the audit ledger. A nil recorder is valid: the engine is
// agnostic to its presence.
type HistoryRecorder interface {
	// RecordTransition records one persisted checkpoint advance.
	RecordTransition(ctx context.Context, runID, procedure string, from, to StateID) error

	// RecordOutcome records a run's terminal outcome.
	RecordOutcome(ctx context.Context, runID, procedure string, state StateID, outcome string) error
}

// Run outcomes recorded in history and metrics.
const (
	OutcomeFinished         = "finished"
	OutcomePersistent       = "persistent"
	OutcomeFailed           = "failed"
	OutcomeAlreadyCompleted = "already_completed"
)

// RunnerOptions configures a Runner. Zero-value fields get no-op
// defaults.
type RunnerOptions struct {
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
	History HistoryRecorder
}

// Runner drives procedures through their state sequences with
// crash-safe checkpointing against one workspace.
type Runner struct {
	ws      *workspace.Workspace
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	history HistoryRecorder
}

// NewRunner creates a runner bound to a workspace.
func NewRunner(ws *workspace.Workspace, opts RunnerOptions) (*Runner, error) {
	if opts.Logger == nil {
		l, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "info", Output: "stderr"})
		if err != nil {
			return nil, err
		}
		opts.Logger = l
	}
	if opts.Metrics == nil {
		m, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: false})
		if err != nil {
			return nil, err
		}
		opts.Metrics = m
	}
	if opts.Tracer == nil {
		t, err := telemetry.NewTracer(telemetry.TracingConfig{Enabled: false}, "nodeforge", "")
		if err != nil {
			return nil, err
		}
		opts.Tracer = t
	}
	return &Runner{
		ws:      ws,
		log:     opts.Logger.NewComponentLogger("runner"),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		history: opts.History,
	}, nil
}

// Run executes proc to completion, resuming from its persisted record
// when one exists. Steps execute sequentially, never in parallel:
// each checkpoint depends on the previous step's completed,
// observable effects. A step error preserves the last checkpoint and
// returns; a completed (persistent-finish) record short-circuits
// without executing any state.
func (r *Runner) Run(ctx context.Context, proc Procedure) error {
	runID := uuid.NewString()
	log := r.log.WithProcedure(proc.Name()).WithRunID(runID)

	known, err := declaredStates(proc)
	if err != nil {
		return NewFatal("invalid state registration", err).WithProcedure(proc.Name())
	}

	rec, exists, err := LoadRecord(r.ws, proc.Name())
	if err != nil {
		return NewFatal("load procedure record", err).WithProcedure(proc.Name())
	}

	if exists && rec.Completed {
		log.Info().Str("state", string(rec.StateID)).Msg("procedure already completed")
		r.metrics.RecordRunCompleted(proc.Name(), OutcomeAlreadyCompleted)
		r.recordOutcome(ctx, runID, proc.Name(), rec.StateID, OutcomeAlreadyCompleted)
		return nil
	}

	var state State
	if exists {
		if _, ok := known[rec.StateID]; !ok {
			return NewFatal(
				fmt.Sprintf("persisted state %q is not declared by the running code; refusing to guess", rec.StateID),
				nil,
			).WithProcedure(proc.Name()).WithState(rec.StateID)
		}
		state, err = proc.DecodeState(rec.StateID, rec.Payload)
		if err != nil {
			return NewFatal("incompatible resume: decode persisted state", err).
				WithProcedure(proc.Name()).WithState(rec.StateID)
		}
		log.Info().Str("state", string(rec.StateID)).Msg("resuming procedure")
	} else {
		state = proc.InitialState()
		if _, ok := known[state.StateID()]; !ok {
			return NewFatal(
				fmt.Sprintf("initial state %q is not in the declared state set", state.StateID()),
				nil,
			).WithProcedure(proc.Name())
		}
		log.Info().Str("state", string(state.StateID())).Msg("starting procedure")
	}

	for {
		stepCtx, span := r.tracer.StartStep(ctx, proc.Name(), string(state.StateID()))
		started := time.Now()

		var halt Halt
		err := r.ws.Batch(func() error {
			step := newStep(r.ws, proc.Name(), state)
			h, stepErr := proc.Run(stepCtx, step)
			if stepErr != nil {
				return stepErr
			}
			halt = h
			return r.stageHalt(proc, state, halt, known)
		})

		r.tracer.EndStep(span, err)
		r.metrics.RecordStep(proc.Name(), string(state.StateID()), time.Since(started).Seconds())

		if err != nil {
			// The record stays at the last successfully checkpointed
			// state; the next invocation resumes there.
			log.Error().Err(err).Str("state", string(state.StateID())).Msg("step failed")
			r.metrics.RecordRunCompleted(proc.Name(), OutcomeFailed)
			r.recordOutcome(ctx, runID, proc.Name(), state.StateID(), OutcomeFailed)
			if IsFatal(err) || IsAborted(err) {
				return err
			}
			if errors.Is(err, workspace.ErrCommitFailed) {
				// The store file location refused a write; retrying the
				// step cannot help.
				return NewFatal("persist checkpoint", err).
					WithProcedure(proc.Name()).WithState(state.StateID())
			}
			return NewRecoverable("step failed", err).
				WithProcedure(proc.Name()).WithState(state.StateID())
		}

		r.metrics.RecordCheckpoint(proc.Name())

		switch halt.kind {
		case haltYield:
			next := halt.next
			log.Debug().
				Str("from", string(state.StateID())).
				Str("to", string(next.StateID())).
				Msg("checkpoint persisted")
			r.recordTransition(ctx, runID, proc.Name(), state.StateID(), next.StateID())
			state = next

		case haltFinish:
			log.Info().Msg("procedure finished")
			r.metrics.RecordRunCompleted(proc.Name(), OutcomeFinished)
			r.recordOutcome(ctx, runID, proc.Name(), state.StateID(), OutcomeFinished)
			return nil

		case haltPersistentFinish:
			log.Info().Msg("procedure finished (record retained)")
			r.metrics.RecordRunCompleted(proc.Name(), OutcomePersistent)
			r.recordOutcome(ctx, runID, proc.Name(), state.StateID(), OutcomePersistent)
			return nil
		}
	}
}

// stageHalt stages the record mutation for a halt inside the step's
// batch, so the state advance and the step's workspace writes commit
// as one atomic unit. A yield to an undeclared state fails here,
// before anything is committed.
func (r *Runner) stageHalt(proc Procedure, current State, halt Halt, known map[StateID]struct{}) error {
	switch halt.kind {
	case haltYield:
		if _, ok := known[halt.next.StateID()]; !ok {
			return NewFatal(
				fmt.Sprintf("step yielded undeclared state %q", halt.next.StateID()),
				nil,
			).WithProcedure(proc.Name()).WithState(current.StateID())
		}
		payload, err := encodeState(halt.next)
		if err != nil {
			return err
		}
		return storeRecord(r.ws, proc.Name(), Record{
			StateID: halt.next.StateID(),
			Payload: payload,
		})
	case haltFinish:
		return r.ws.RemoveValue(RecordKey(proc.Name()))
	case haltPersistentFinish:
		payload, err := encodeState(current)
		if err != nil {
			return err
		}
		return storeRecord(r.ws, proc.Name(), Record{
			StateID:   current.StateID(),
			Payload:   payload,
			Completed: true,
		})
	default:
		return fmt.Errorf("unknown halt kind %d", halt.kind)
	}
}

func (r *Runner) recordTransition(ctx context.Context, runID, proc string, from, to StateID) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordTransition(ctx, runID, proc, from, to); err != nil {
		r.log.Warn().Err(err).Msg("history transition not recorded")
	}
}

func (r *Runner) recordOutcome(ctx context.Context, runID, proc string, state StateID, outcome string) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordOutcome(ctx, runID, proc, state, outcome); err != nil {
		r.log.Warn().Err(err).Msg("history outcome not recorded")
	}
}

// declaredStates validates a procedure's registration: a non-empty,
// duplicate-free ordered state set.
func declaredStates(proc Procedure) (map[StateID]struct{}, error) {
	ids := proc.States()
	if len(ids) == 0 {
		return nil, fmt.Errorf("procedure %s declares no states", proc.Name())
	}
	known := make(map[StateID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := known[id]; dup {
			return nil, fmt.Errorf("procedure %s declares duplicate state %q", proc.Name(), id)
		}
		known[id] = struct{}{}
	}
	return known, nil
}
