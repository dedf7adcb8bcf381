// Package retry wraps a single stage invocation with bounded retries and
// exponential backoff. Eligibility comes from the failure taxonomy; the
// backoff wait is always interruptible by context cancellation.
package retry
