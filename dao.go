package leafid

import "context"

// Leaf is the persisted row for one tag: the current high-water mark
// already reserved by some instance, and the step that database row
// declares for this tag. Invariant: MaxID >= 0, Step >= 1.
type Leaf struct {
	Tag   int32
	MaxID int64
	Step  int32
}

// Dao is the storage contract the engine consumes for durable counter
// updates. Implementations must make UpdateMax and UpdateMaxByStep
// atomic: two concurrent callers must never be handed overlapping
// [max_id-step, max_id) ranges for the same tag. See internal/daos for
// reference adapters (mock, MySQL, GORM/Postgres/SQLite, Redis, Mongo).
type Dao interface {
	// Leaves returns every persisted Leaf row.
	Leaves(ctx context.Context) ([]Leaf, error)

	// Leaf returns the Leaf for tag, or an error wrapping
	// ErrTagNotExist if no such row exists.
	Leaf(ctx context.Context, tag int32) (Leaf, error)

	// Insert persists a new Leaf. Behavior on duplicate tag is
	// implementation-specific.
	Insert(ctx context.Context, leaf Leaf) error

	// Tags returns every tag currently persisted.
	Tags(ctx context.Context) ([]int32, error)

	// UpdateMax atomically advances max_id by the row's own declared
	// step and returns the post-update row.
	UpdateMax(ctx context.Context, tag int32) (Leaf, error)

	// UpdateMaxByStep atomically advances max_id by step, without
	// overwriting the row's declared step column, and returns the
	// post-update row.
	UpdateMaxByStep(ctx context.Context, tag int32, step int32) (Leaf, error)
}
