package leafid

import (
	"fmt"
	"sync/atomic"
)

// Segment holds one contiguous [val, max) allocation and a cursor
// tracking how much of it has been handed out. Step is the width the
// database was asked to reserve when this segment was filled.
//
// Once installed by a refill, Max and Step never change until the
// segment is refilled again. The service reserves values while holding
// the owning SegmentBuffer's mutex (see service.go), which is what keeps
// concurrent Get calls from returning the same value; val is still
// stored with atomic operations so Val may be read without that mutex.
type Segment struct {
	val  int64 // atomic; next value to hand out
	max  int64 // exclusive upper bound
	step int32 // width this segment was filled with
}

// newSegment constructs a Segment with cursor val, exclusive bound
// max, and width step.
func newSegment(val, max int64, step int32) Segment {
	return Segment{val: val, max: max, step: step}
}

// Val returns the current cursor position.
func (s *Segment) Val() int64 {
	return atomic.LoadInt64(&s.val)
}

// Max returns the exclusive upper bound of the segment.
func (s *Segment) Max() int64 {
	return s.max
}

// Step returns the width this segment was filled with.
func (s *Segment) Step() int32 {
	return s.step
}

// Idle returns how many IDs remain unclaimed in the segment, using
// saturating subtraction so a cursor that has run past Max never
// produces a negative idle count.
func (s *Segment) Idle() int64 {
	val := s.Val()
	if val >= s.max {
		return 0
	}
	return s.max - val
}

// reserve atomically claims the next value from the segment and
// advances the cursor past it. The caller must check the returned
// value against Max: a return of val == Max (or greater) means the
// segment is exhausted and the reservation must be discarded.
func (s *Segment) reserve() int64 {
	return atomic.AddInt64(&s.val, 1) - 1
}

// install replaces the segment's contents under the owning buffer's
// mutex; it is not itself safe to call concurrently with reserve.
func (s *Segment) install(val, max int64, step int32) {
	atomic.StoreInt64(&s.val, val)
	s.max = max
	s.step = step
}

// String implements fmt.Stringer for diagnostic logging.
func (s *Segment) String() string {
	return fmt.Sprintf("Segment(val=%d, max=%d, step=%d)", s.Val(), s.max, s.step)
}
