// Package runlock provides a file-based lock that serializes pipeline runs
// against a workspace. Checkpoint writes assume a single writer; the lock is
// what enforces that assumption across processes.
package runlock
