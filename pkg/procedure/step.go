package procedure

import (
	"context"
	"fmt"
	"os"

	"github.com/nodeforge/nodeforge/pkg/kv"
	"github.com/nodeforge/nodeforge/pkg/workspace"
)

// Step is the short-lived execution handle passed into a procedure's
// step logic: the current state, plus workspace access scoped to the
// procedure's key namespace. A Step borrows the workspace for the
// duration of one step call and must not be retained past its return.
type Step struct {
	proc  string
	state State
	ws    *workspace.Workspace
}

func newStep(ws *workspace.Workspace, proc string, state State) *Step {
	return &Step{proc: proc, state: state, ws: ws}
}

// State returns the current state; step logic type-asserts it to the
// procedure's own state type.
func (s *Step) State() State { return s.state }

// Key resolves a relative key into the procedure's namespace.
func (s *Step) Key(rel string) (kv.Key, error) {
	parsed, err := kv.ParseKey(rel)
	if err != nil {
		return "", err
	}
	return kv.Key(s.proc).Join(parsed.String()), nil
}

// Value reads an inline value from the procedure's namespace.
func (s *Step) Value(rel string) (kv.Value, bool, error) {
	key, err := s.Key(rel)
	if err != nil {
		return nil, false, err
	}
	return s.ws.GetValue(key)
}

// SetValue writes an inline value into the procedure's namespace.
func (s *Step) SetValue(rel string, value kv.Value) error {
	key, err := s.Key(rel)
	if err != nil {
		return err
	}
	return s.ws.PutValue(key, value)
}

// RealPath resolves a relative path to its absolute location in the
// managed file area.
func (s *Step) RealPath(rel string) (string, error) {
	key, err := s.Key(rel)
	if err != nil {
		return "", err
	}
	return s.ws.ResolvePath(key), nil
}

// FileWriter creates a cache-backed file for writing under the
// procedure's namespace. The reused result mirrors
// workspace.CreateCachedFile: true when the operator chose to keep a
// pre-existing file, whose content the caller should adopt instead of
// rewriting. Either way the caller registers the file with CommitFile.
func (s *Step) FileWriter(ctx context.Context, rel string) (*os.File, string, bool, error) {
	key, err := s.Key(rel)
	if err != nil {
		return nil, "", false, err
	}
	return s.ws.CreateCachedFile(ctx, key)
}

// CommitFile fingerprints and registers a file previously created
// with FileWriter.
func (s *Step) CommitFile(rel string) error {
	key, err := s.Key(rel)
	if err != nil {
		return err
	}
	return s.ws.RegisterFile(key)
}

// FillFile runs the cache-fill retry loop for a file under the
// procedure's namespace.
func (s *Step) FillFile(ctx context.Context, rel string, fill workspace.FillFunc) error {
	key, err := s.Key(rel)
	if err != nil {
		return err
	}
	return s.ws.FillFile(ctx, key, fill)
}

// ValidateFile checks a namespaced file entry against the live file.
func (s *Step) ValidateFile(rel string) (workspace.Validity, error) {
	key, err := s.Key(rel)
	if err != nil {
		return "", err
	}
	return s.ws.ValidateFile(key)
}

// Workspace exposes the unscoped workspace for step logic that reads
// shared keys outside the procedure's namespace.
func (s *Step) Workspace() *workspace.Workspace { return s.ws }

// Errorf builds a recoverable step error with procedure context.
func (s *Step) Errorf(format string, args ...interface{}) error {
	return NewRecoverable(fmt.Sprintf(format, args...), nil).
		WithProcedure(s.proc).
		WithState(s.state.StateID())
}
