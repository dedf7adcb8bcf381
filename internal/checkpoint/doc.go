// Package checkpoint persists durable pipeline-state snapshots: a SQLite
// index of {id, stage, created_at} entries plus one JSON payload file per
// checkpoint, all owned by a single namespace directory. Payloads are written
// before index rows so the index never references a missing payload.
package checkpoint
