// Package procedure implements the resumable procedure execution
// engine: a state-machine runner that drives a named procedure
// through a sequence of checkpointed states, persisting the active
// state (and the step's workspace writes) atomically before
// advancing, so interruption resumes exactly where it left off.
package procedure

import "context"

// StateID is a stable, order-comparable identifier for one variant of
// a procedure's state space, distinct from the state's payload.
// Persisted records stay interpretable across process restarts as
// long as the running code preserves the id.
type StateID string

// State is one named, payload-bearing step of a procedure's
// execution. Concrete states are plain structs that serialize their
// resume payload to JSON.
type State interface {
	// StateID returns the state's stable identifier.
	StateID() StateID
}

// Procedure is the explicit registration contract every provisioning
// action implements: its name, its ordered closed set of state ids,
// payload decoding per id, and the per-state step logic.
type Procedure interface {
	// Name identifies the procedure; it doubles as the key namespace
	// for the procedure's cache entries and its persisted record.
	Name() string

	// States returns the ordered, closed set of state ids. The set
	// must be stable across resumes: renumbering or reordering an
	// in-flight procedure's states makes persisted records
	// uninterpretable.
	States() []StateID

	// InitialState returns the fresh start state used when no record
	// exists.
	InitialState() State

	// DecodeState reconstructs a state from its persisted id and
	// payload.
	DecodeState(id StateID, payload []byte) (State, error)

	// Run executes one step. It may read and write the workspace
	// through the step handle, and returns a Halt instructing the
	// runner how to continue.
	Run(ctx context.Context, step *Step) (Halt, error)
}

type haltKind int

const (
	haltYield haltKind = iota
	haltFinish
	haltPersistentFinish
)

// Halt is the instruction one step returns to the runner.
type Halt struct {
	kind haltKind
	next State
}

// Yield instructs the runner to persist next as the new checkpoint
// and continue running from it.
func Yield(next State) Halt {
	return Halt{kind: haltYield, next: next}
}

// Finish terminates the procedure and deletes its persisted record.
func Finish() Halt {
	return Halt{kind: haltFinish}
}

// PersistentFinish terminates the procedure but retains its record
// marked complete, blocking re-invocation and leaving an audit trail.
func PersistentFinish() Halt {
	return Halt{kind: haltPersistentFinish}
}
