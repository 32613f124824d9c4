package procedure

import (
	"encoding/json"
	"fmt"

	"github.com/nodeforge/nodeforge/pkg/kv"
	"github.com/nodeforge/nodeforge/pkg/workspace"
)

// RecordKeyPrefix is the reserved key namespace holding procedure
// records. Records are ordinary cache entries, so they persist in the
// same atomic store write as the step's other mutations.
const RecordKeyPrefix kv.Key = "__procedure"

// Record is the persisted unit for one procedure: its current state
// and whether it finished persistently.
type Record struct {
	// StateID is the checkpointed state's identifier.
	StateID StateID `json:"state_id"`

	// Payload is the checkpointed state's serialized resume data.
	Payload json.RawMessage `json:"payload"`

	// Completed marks a persistent finish; a completed record blocks
	// re-invocation.
	Completed bool `json:"completed"`
}

// RecordKey returns the cache key a procedure's record lives under.
func RecordKey(name string) kv.Key {
	return RecordKeyPrefix.Join(name)
}

// LoadRecord reads a procedure's persisted record. The boolean is
// false when no record exists.
func LoadRecord(ws *workspace.Workspace, name string) (Record, bool, error) {
	value, ok, err := ws.GetValue(RecordKey(name))
	if err != nil {
		return Record{}, false, err
	}
	if !ok {
		return Record{}, false, nil
	}
	scalar, ok := value.(kv.Scalar)
	if !ok {
		return Record{}, false, fmt.Errorf("procedure record for %s is not a scalar", name)
	}
	var rec Record
	if err := json.Unmarshal([]byte(scalar), &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode procedure record for %s: %w", name, err)
	}
	return rec, true, nil
}

// storeRecord stages a procedure's record into the workspace. Inside
// a batch the write persists with the step's checkpoint commit.
func storeRecord(ws *workspace.Workspace, name string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode procedure record for %s: %w", name, err)
	}
	return ws.PutValue(RecordKey(name), kv.Scalar(data))
}

// encodeState serializes a state's payload. States are plain structs,
// so the payload is their JSON form.
func encodeState(state State) (json.RawMessage, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state %s: %w", state.StateID(), err)
	}
	return data, nil
}
