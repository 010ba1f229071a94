package leafid

import (
	"context"
	"testing"
	"time"
)

// stepTestDao is a minimal single-tag Dao that lets refillLocked be
// driven directly, so adaptive step transitions (spec.md §4.3.5) can be
// asserted deterministically without waiting on real segment durations.
type stepTestDao struct {
	leaf Leaf
}

func (d *stepTestDao) Leaves(_ context.Context) ([]Leaf, error) { return []Leaf{d.leaf}, nil }

func (d *stepTestDao) Leaf(_ context.Context, tag int32) (Leaf, error) {
	if tag != d.leaf.Tag {
		return Leaf{}, ErrTagNotExist
	}
	return d.leaf, nil
}

func (d *stepTestDao) Insert(_ context.Context, leaf Leaf) error {
	d.leaf = leaf
	return nil
}

func (d *stepTestDao) Tags(_ context.Context) ([]int32, error) { return []int32{d.leaf.Tag}, nil }

func (d *stepTestDao) UpdateMax(_ context.Context, _ int32) (Leaf, error) {
	d.leaf.MaxID += int64(d.leaf.Step)
	return d.leaf, nil
}

func (d *stepTestDao) UpdateMaxByStep(_ context.Context, _ int32, step int32) (Leaf, error) {
	d.leaf.MaxID += int64(step)
	return d.leaf, nil
}

func TestRefillLockedDoublesStepWhileWithinSegmentDuration(t *testing.T) {
	ctx := context.Background()
	dao := &stepTestDao{leaf: Leaf{Tag: 1, MaxID: 0, Step: 100}}
	g := New(dao, NewConfig(WithSegmentDuration(time.Hour), WithMaxStep(10_000)))
	buf := newSegmentBuffer(1)

	if err := g.refillLocked(ctx, buf, false, true); err != nil {
		t.Fatalf("initial refill: %v", err)
	}
	if buf.step != 100 {
		t.Fatalf("initial step = %d, want 100 (declared step)", buf.step)
	}

	if err := g.refillLocked(ctx, buf, false, false); err != nil {
		t.Fatalf("second refill: %v", err)
	}
	if buf.step != 200 {
		t.Fatalf("step after within-duration refill = %d, want 200 (doubled)", buf.step)
	}

	if err := g.refillLocked(ctx, buf, false, false); err != nil {
		t.Fatalf("third refill: %v", err)
	}
	if buf.step != 400 {
		t.Fatalf("step after second within-duration refill = %d, want 400 (doubled again)", buf.step)
	}
}

func TestRefillLockedHalvesStepWhenSegmentLastedTooLong(t *testing.T) {
	ctx := context.Background()
	dao := &stepTestDao{leaf: Leaf{Tag: 1, MaxID: 0, Step: 100}}
	g := New(dao, NewConfig(WithSegmentDuration(time.Hour), WithMaxStep(10_000)))
	buf := newSegmentBuffer(1)

	if err := g.refillLocked(ctx, buf, false, true); err != nil {
		t.Fatalf("initial refill: %v", err)
	}
	if err := g.refillLocked(ctx, buf, false, false); err != nil {
		t.Fatalf("doubling refill: %v", err)
	}
	if buf.step != 200 {
		t.Fatalf("step before halving = %d, want 200", buf.step)
	}

	// Simulate a segment that lived far longer than the target duration.
	buf.updatedAt = time.Now().Add(-3 * time.Hour)
	if err := g.refillLocked(ctx, buf, false, false); err != nil {
		t.Fatalf("halving refill: %v", err)
	}
	if buf.step != 100 {
		t.Fatalf("step after over-long segment = %d, want 100 (halved)", buf.step)
	}
}

func TestRefillLockedNeverHalvesBelowDeclaredStep(t *testing.T) {
	ctx := context.Background()
	dao := &stepTestDao{leaf: Leaf{Tag: 1, MaxID: 0, Step: 100}}
	g := New(dao, NewConfig(WithSegmentDuration(time.Hour), WithMaxStep(10_000)))
	buf := newSegmentBuffer(1)

	if err := g.refillLocked(ctx, buf, false, true); err != nil {
		t.Fatalf("initial refill: %v", err)
	}
	// step == minStep already; an over-long segment must not push it
	// below the database-declared floor.
	buf.updatedAt = time.Now().Add(-3 * time.Hour)
	if err := g.refillLocked(ctx, buf, false, false); err != nil {
		t.Fatalf("refill: %v", err)
	}
	if buf.step != 100 {
		t.Fatalf("step at floor = %d, want 100 (unchanged)", buf.step)
	}
}

func TestRefillLockedCapsStepAtMaxStep(t *testing.T) {
	ctx := context.Background()
	dao := &stepTestDao{leaf: Leaf{Tag: 1, MaxID: 0, Step: 100}}
	g := New(dao, NewConfig(WithSegmentDuration(time.Hour), WithMaxStep(150)))
	buf := newSegmentBuffer(1)

	if err := g.refillLocked(ctx, buf, false, true); err != nil {
		t.Fatalf("initial refill: %v", err)
	}
	if err := g.refillLocked(ctx, buf, false, false); err != nil {
		t.Fatalf("refill: %v", err)
	}
	if buf.step != 100 {
		t.Fatalf("step = %d, want 100 (doubling to 200 would exceed MaxStep=150)", buf.step)
	}
}
