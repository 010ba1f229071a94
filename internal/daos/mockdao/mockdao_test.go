package mockdao

import (
	"context"
	"errors"
	"testing"

	"github.com/Lzww0608/leafid"
)

func TestDaoInsertAndLeaf(t *testing.T) {
	ctx := context.Background()
	d := New()

	if err := d.Insert(ctx, leafid.Leaf{Tag: 1, MaxID: 0, Step: 10}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	leaf, err := d.Leaf(ctx, 1)
	if err != nil {
		t.Fatalf("Leaf: %v", err)
	}
	if leaf.MaxID != 0 || leaf.Step != 10 {
		t.Fatalf("got %+v", leaf)
	}
}

func TestDaoLeafNotExist(t *testing.T) {
	ctx := context.Background()
	d := New()
	_, err := d.Leaf(ctx, 99)
	if !errors.Is(err, leafid.ErrTagNotExist) {
		t.Fatalf("want ErrTagNotExist, got %v", err)
	}
}

func TestDaoInsertRejectsNonPositiveStep(t *testing.T) {
	ctx := context.Background()
	d := New()
	if err := d.Insert(ctx, leafid.Leaf{Tag: 1, MaxID: 0, Step: 0}); err == nil {
		t.Fatalf("Insert with step=0 should fail")
	}
}

func TestDaoUpdateMaxAdvancesByDeclaredStep(t *testing.T) {
	ctx := context.Background()
	d := New()
	if err := d.Insert(ctx, leafid.Leaf{Tag: 1, MaxID: 0, Step: 10}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	leaf, err := d.UpdateMax(ctx, 1)
	if err != nil {
		t.Fatalf("UpdateMax: %v", err)
	}
	if leaf.MaxID != 10 {
		t.Fatalf("MaxID = %d, want 10", leaf.MaxID)
	}
}

func TestDaoUpdateMaxByStepKeepsDeclaredStep(t *testing.T) {
	ctx := context.Background()
	d := New()
	if err := d.Insert(ctx, leafid.Leaf{Tag: 1, MaxID: 0, Step: 10}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	leaf, err := d.UpdateMaxByStep(ctx, 1, 500)
	if err != nil {
		t.Fatalf("UpdateMaxByStep: %v", err)
	}
	if leaf.MaxID != 500 {
		t.Fatalf("MaxID = %d, want 500", leaf.MaxID)
	}
	if leaf.Step != 10 {
		t.Fatalf("Step = %d, want unchanged 10", leaf.Step)
	}
}

func TestDaoTagsAndDelete(t *testing.T) {
	ctx := context.Background()
	d := New()
	for _, tag := range []int32{1, 2, 3} {
		if err := d.Insert(ctx, leafid.Leaf{Tag: tag, MaxID: 0, Step: 10}); err != nil {
			t.Fatalf("Insert(%d): %v", tag, err)
		}
	}
	tags, err := d.Tags(ctx)
	if err != nil || len(tags) != 3 {
		t.Fatalf("Tags() = %v, %v", tags, err)
	}

	d.Delete(2)
	tags, err = d.Tags(ctx)
	if err != nil || len(tags) != 2 {
		t.Fatalf("Tags() after Delete = %v, %v", tags, err)
	}
}
