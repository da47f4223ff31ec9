package store

import "errors"

// Sentinel errors returned by store operations. Callers use errors.Is to
// classify a failure; wrapped context is added with fmt.Errorf("%w: ...").
var (
	// ErrConnectFailed means the pool could not be established: DSN rejected,
	// per-attempt deadline exceeded, or retries exhausted.
	ErrConnectFailed = errors.New("store: connect failed")

	// ErrMigrationFailed means schema migration did not reach a clean state.
	ErrMigrationFailed = errors.New("store: migration failed")

	// ErrNotFound means the requested deployment (or environment) does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidTransition means an operation was attempted against a
	// deployment whose current state forbids it (e.g. finishing a deployment
	// that never started, or a concurrent I2 identity-field conflict).
	ErrInvalidTransition = errors.New("store: invalid state transition")

	// ErrDataCorruption means a row violated an invariant the schema should
	// have prevented (e.g. a CHECK constraint was bypassed by an external
	// writer). Surfacing it rather than silently coercing protects I3.
	ErrDataCorruption = errors.New("store: data corruption detected")

	// ErrTransient marks a failure the caller may retry (connection reset,
	// serialization failure) as opposed to one that requires caller action.
	ErrTransient = errors.New("store: transient failure")
)
