package leafid

import (
	"errors"
	"fmt"
)

var (
	// ErrTagNotExist indicates the tag is absent from both cache and
	// database (lazy mode) or from the cache (eager mode).
	ErrTagNotExist = errors.New("leafid: tag does not exist")

	// ErrBothSegmentsNotReady indicates both segments of a buffer are
	// exhausted and no refill completed in time. The caller should retry.
	ErrBothSegmentsNotReady = errors.New("leafid: both segments not ready")

	// ErrServiceNotReady indicates Get was called before Init succeeded.
	ErrServiceNotReady = errors.New("leafid: service not ready")

	// ErrSerialization indicates a persisted row could not be decoded
	// into a Leaf.
	ErrSerialization = errors.New("leafid: serialization error")
)

// DaoError wraps a failure surfaced by the underlying Dao implementation.
// Use errors.Unwrap or errors.Is/As to inspect the cause.
type DaoError struct {
	Op    string
	Tag   int32
	cause error
}

func (e *DaoError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("leafid: dao error (tag=%d): %v", e.Tag, e.cause)
	}
	return fmt.Sprintf("leafid: dao error during %s (tag=%d): %v", e.Op, e.Tag, e.cause)
}

func (e *DaoError) Unwrap() error {
	return e.cause
}

// wrapDaoErr wraps a raw error returned by a Dao call, unless it is
// already one of the sentinel errors the engine understands (in which
// case it is returned unchanged so errors.Is keeps working for callers).
func wrapDaoErr(op string, tag int32, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTagNotExist) || errors.Is(err, ErrSerialization) {
		return err
	}
	return &DaoError{Op: op, Tag: tag, cause: err}
}
