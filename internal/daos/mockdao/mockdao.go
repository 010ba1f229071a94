// Package mockdao provides an in-memory leafid.Dao for tests and
// cmd/leafid-bench. It is grounded on original_source's
// src/dao/mock.rs, which backs the reference engine's own test suite
// with a concurrent map keyed by tag.
package mockdao

import (
	"context"
	"fmt"
	"sync"

	"github.com/Lzww0608/leafid"
)

// Dao is an in-memory leafid.Dao. The zero value is not usable; use New.
type Dao struct {
	mu     sync.Mutex
	leaves map[int32]leafid.Leaf
}

// New returns an empty Dao.
func New() *Dao {
	return &Dao{leaves: make(map[int32]leafid.Leaf)}
}

// Leaves returns every persisted Leaf row.
func (d *Dao) Leaves(_ context.Context) ([]leafid.Leaf, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]leafid.Leaf, 0, len(d.leaves))
	for _, leaf := range d.leaves {
		out = append(out, leaf)
	}
	return out, nil
}

// Leaf returns the Leaf for tag, or leafid.ErrTagNotExist.
func (d *Dao) Leaf(_ context.Context, tag int32) (leafid.Leaf, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	leaf, ok := d.leaves[tag]
	if !ok {
		return leafid.Leaf{}, leafid.ErrTagNotExist
	}
	return leaf, nil
}

// Insert persists a new Leaf, overwriting any existing row for the
// same tag.
func (d *Dao) Insert(_ context.Context, leaf leafid.Leaf) error {
	if leaf.Step < 1 {
		return fmt.Errorf("mockdao: insert tag %d: step must be >= 1", leaf.Tag)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaves[leaf.Tag] = leaf
	return nil
}

// Tags returns every tag currently persisted.
func (d *Dao) Tags(_ context.Context) ([]int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int32, 0, len(d.leaves))
	for tag := range d.leaves {
		out = append(out, tag)
	}
	return out, nil
}

// UpdateMax atomically advances max_id by the row's own step.
func (d *Dao) UpdateMax(_ context.Context, tag int32) (leafid.Leaf, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	leaf, ok := d.leaves[tag]
	if !ok {
		return leafid.Leaf{}, leafid.ErrTagNotExist
	}
	leaf.MaxID += int64(leaf.Step)
	d.leaves[tag] = leaf
	return leaf, nil
}

// UpdateMaxByStep atomically advances max_id by step, without
// overwriting the row's declared step column.
func (d *Dao) UpdateMaxByStep(_ context.Context, tag int32, step int32) (leafid.Leaf, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	leaf, ok := d.leaves[tag]
	if !ok {
		return leafid.Leaf{}, leafid.ErrTagNotExist
	}
	leaf.MaxID += int64(step)
	d.leaves[tag] = leaf
	return leaf, nil
}

// Delete removes tag's row, for tests exercising periodic reconciliation.
func (d *Dao) Delete(tag int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.leaves, tag)
}
