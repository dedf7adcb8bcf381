package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"conveyor/internal/logging"
)

// recoveryInfo is the human-readable resumption guide written alongside a
// failed run's partial results.
type recoveryInfo struct {
	RunID            string    `json:"run_id"`
	FailedStage      string    `json:"failed_stage"`
	ResumeFromStage  string    `json:"resume_from_stage"`
	LastCheckpointID string    `json:"last_checkpoint_id,omitempty"`
	Failure          *Error    `json:"failure"`
	CreatedAt        time.Time `json:"created_at"`
}

// writeBundle persists the partial-results bundle for a failed run: the last
// working document, the ordered stage results, and recovery guidance. Returns
// the bundle directory.
func (r *Runner) writeBundle(ctx context.Context, runID, failedStage string, perr *Error, state *runState) (string, error) {
	dir := filepath.Join(r.cfg.PartialResultsDir(), runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create partial-results directory: %w", err)
	}

	docPayload, err := state.working.Marshal()
	if err != nil {
		return "", err
	}
	if err := writeBundleFile(dir, "stage_data.json", docPayload); err != nil {
		return "", err
	}

	resultsPayload, err := json.MarshalIndent(state.results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal stage results: %w", err)
	}
	if err := writeBundleFile(dir, "stage_results.json", resultsPayload); err != nil {
		return "", err
	}

	info := recoveryInfo{
		RunID:            runID,
		FailedStage:      failedStage,
		ResumeFromStage:  failedStage,
		LastCheckpointID: state.lastCheckpointID,
		Failure:          perr,
		CreatedAt:        time.Now().UTC(),
	}
	infoPayload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal recovery info: %w", err)
	}
	if err := writeBundleFile(dir, "recovery_info.json", infoPayload); err != nil {
		return "", err
	}

	r.logger.InfoContext(ctx, "partial results saved",
		logging.String("bundle", dir),
		logging.String(logging.FieldStage, failedStage),
	)
	return dir, nil
}

func writeBundleFile(dir, name string, payload []byte) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
