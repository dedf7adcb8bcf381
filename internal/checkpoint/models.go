package checkpoint

import (
	"encoding/json"
	"time"
)

// Record is one index entry: the durable identity of a checkpoint.
type Record struct {
	ID        string    `json:"checkpoint_id"`
	StageName string    `json:"stage_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the payload persisted alongside a record: everything needed to
// reconstruct run state after the recorded stage completed. The stage name
// itself lives on the Record so the index stays the single source of truth.
type Snapshot struct {
	// Stages is the registered stage sequence at save time. Resume validates
	// it against the current registry before restoring state.
	Stages []string `json:"stages"`
	// Config is the frozen run configuration, serialized by the caller.
	Config json.RawMessage `json:"config"`
	// Results is the ordered stage-result list up to and including the
	// recorded stage.
	Results json.RawMessage `json:"results"`
	// Document is the serialized working document produced by the recorded
	// stage.
	Document json.RawMessage `json:"document"`
}

// Checkpoint pairs a record with its restored snapshot.
type Checkpoint struct {
	Record
	Snapshot
}
