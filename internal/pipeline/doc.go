// Package pipeline orchestrates document conversion as a straight-line state
// machine over a registered stage sequence. Stages run strictly one at a
// time; after each success the runner appends a StageResult and, when
// enabled, persists a checkpoint before the next stage begins. Failures are
// classified through the failure taxonomy: exhausted retries on a critical
// stage end the run as FAILED with a partial-results bundle, while a
// degradable stage falls back and the run continues with a recorded non-fatal
// error. Resume entry points rebuild run state from a checkpoint and re-enter
// the sequence immediately after the recorded stage.
package pipeline
