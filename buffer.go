package leafid

import (
	"sync"
	"sync/atomic"
	"time"
)

// SegmentBuffer is the per-tag double buffer: two Segments indexed 0/1
// with a current index, plus the metadata needed to decide when to
// refill, switch, and how wide the next segment should be.
//
// SegmentBuffer is not itself safe for concurrent use; callers must
// hold mu for any access to fields other than the atomic bgTaskRunning
// gate and the segments' atomic cursor (see segment.go). The service
// (service.go) is the only owner of a buffer's mutex.
type SegmentBuffer struct {
	tag int32

	mu         sync.Mutex
	segments   [2]Segment
	currentIdx int

	initOk    bool // has the buffer ever been filled from the database
	nextReady bool // is the non-current segment primed

	bgTaskRunning int32 // atomic CAS gate: at most one in-flight prefetch
	completion    chan struct{}

	step      int32 // current adaptive step
	minStep   int32 // floor, equal to the database-declared step
	updatedAt time.Time
}

// newSegmentBuffer returns an empty, unfilled buffer for tag.
func newSegmentBuffer(tag int32) *SegmentBuffer {
	return &SegmentBuffer{
		tag:        tag,
		updatedAt:  time.Now(),
		completion: make(chan struct{}),
	}
}

// Tag returns the buffer's tag.
func (b *SegmentBuffer) Tag() int32 { return b.tag }

// current returns the currently served segment. Caller must hold mu,
// or accept that the result may be stale the instant switch() runs —
// the hot path in service.go reads it under mu for that reason.
func (b *SegmentBuffer) current() *Segment {
	return &b.segments[b.currentIdx]
}

// next returns the non-current (pre-fetch target) segment.
func (b *SegmentBuffer) next() *Segment {
	return &b.segments[b.nextIdx()]
}

// nextIdx returns the index of the non-current segment.
func (b *SegmentBuffer) nextIdx() int {
	return (b.currentIdx + 1) % 2
}

// switchBuffer flips the current segment to the pre-fetched one.
// Caller must hold mu.
func (b *SegmentBuffer) switchBuffer() {
	b.currentIdx = b.nextIdx()
}

// tryAcquireBgTask attempts to transition the background-task gate
// false -> true; it reports whether this call won the race. Safe to
// call without mu held.
func (b *SegmentBuffer) tryAcquireBgTask() bool {
	return atomic.CompareAndSwapInt32(&b.bgTaskRunning, 0, 1)
}

// bgTaskIsRunning reports whether a background prefetch is currently
// in flight. Safe to call without mu held.
func (b *SegmentBuffer) bgTaskIsRunning() bool {
	return atomic.LoadInt32(&b.bgTaskRunning) == 1
}

// finishBgTask clears the gate and wakes any goroutine waiting on
// waitForBgTask. Caller must hold mu (the completion channel is
// replaced under the same lock waiters read it under).
func (b *SegmentBuffer) finishBgTask() {
	atomic.StoreInt32(&b.bgTaskRunning, 0)
	close(b.completion)
	b.completion = make(chan struct{})
}

// waitChannel returns the channel that closes the next time a
// background task finishes. Caller must hold mu when reading it and
// must release mu before waiting on the returned channel.
func (b *SegmentBuffer) waitChannel() <-chan struct{} {
	return b.completion
}
