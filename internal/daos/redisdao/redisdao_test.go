package redisdao

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/Lzww0608/leafid"
)

func newTestDao(t *testing.T) *Dao {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb)
}

func TestDaoInsertAndLeaf(t *testing.T) {
	ctx := context.Background()
	d := newTestDao(t)

	if err := d.Insert(ctx, leafid.Leaf{Tag: 1, MaxID: 100, Step: 50}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	leaf, err := d.Leaf(ctx, 1)
	if err != nil {
		t.Fatalf("Leaf: %v", err)
	}
	if leaf != (leafid.Leaf{Tag: 1, MaxID: 100, Step: 50}) {
		t.Fatalf("got %+v", leaf)
	}
}

func TestDaoLeafNotExist(t *testing.T) {
	ctx := context.Background()
	d := newTestDao(t)

	_, err := d.Leaf(ctx, 99)
	if !errors.Is(err, leafid.ErrTagNotExist) {
		t.Fatalf("want ErrTagNotExist, got %v", err)
	}
}

func TestDaoUpdateMax(t *testing.T) {
	ctx := context.Background()
	d := newTestDao(t)

	if err := d.Insert(ctx, leafid.Leaf{Tag: 2, MaxID: 0, Step: 10}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	leaf, err := d.UpdateMax(ctx, 2)
	if err != nil {
		t.Fatalf("UpdateMax: %v", err)
	}
	if leaf.MaxID != 10 {
		t.Fatalf("want MaxID=10, got %d", leaf.MaxID)
	}

	leaf, err = d.UpdateMaxByStep(ctx, 2, 100)
	if err != nil {
		t.Fatalf("UpdateMaxByStep: %v", err)
	}
	if leaf.MaxID != 110 {
		t.Fatalf("want MaxID=110, got %d", leaf.MaxID)
	}
	if leaf.Step != 10 {
		t.Fatalf("want declared Step=10 unchanged, got %d", leaf.Step)
	}
}

func TestDaoUpdateMaxNotExist(t *testing.T) {
	ctx := context.Background()
	d := newTestDao(t)

	_, err := d.UpdateMax(ctx, 7)
	if !errors.Is(err, leafid.ErrTagNotExist) {
		t.Fatalf("want ErrTagNotExist, got %v", err)
	}
}

func TestDaoTagsAndLeaves(t *testing.T) {
	ctx := context.Background()
	d := newTestDao(t)

	for _, tag := range []int32{1, 2, 3} {
		if err := d.Insert(ctx, leafid.Leaf{Tag: tag, MaxID: 0, Step: 10}); err != nil {
			t.Fatalf("Insert(%d): %v", tag, err)
		}
	}

	tags, err := d.Tags(ctx)
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(tags) != 3 {
		t.Fatalf("want 3 tags, got %d", len(tags))
	}

	leaves, err := d.Leaves(ctx)
	if err != nil {
		t.Fatalf("Leaves: %v", err)
	}
	if len(leaves) != 3 {
		t.Fatalf("want 3 leaves, got %d", len(leaves))
	}
}
