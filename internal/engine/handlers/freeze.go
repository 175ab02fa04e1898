package handlers

import "context"

// Freezer reports whether a structural migration currently forbids
// dispatching tasks of a given stage type, generalizing the teacher's
// rollback.BlockedJobType/rollback.FreezeActive check (internal/modules/
// learning/rollback/freeze.go): while a structural rollback is in
// progress there, certain job types are paused rather than started so they
// don't observe half-migrated state. Here an external caller (e.g. a
// schema migration tool sitting beside the engine) implements Freezer
// instead of the engine special-casing one rollback table.
type Freezer interface {
	// Frozen reports whether stageType is currently blocked, and if so a
	// short human-readable reason. StartTask and RunTask act on the bool
	// alone, deferring the delivery; the reason is not recorded.
	Frozen(ctx context.Context, stageType string) (bool, string)
}

// NoFreeze is the default Freezer: nothing is ever frozen.
type NoFreeze struct{}

func (NoFreeze) Frozen(context.Context, string) (bool, string) { return false, "" }
