// Package redisdao implements leafid.Dao against Redis, following
// original_source's src/dao/redis.rs: each tag is a hash with max_id
// and step fields, and max_id advancement uses HINCRBY for atomicity
// without a client-side transaction.
package redisdao

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/Lzww0608/leafid"
)

const keyPrefix = "leafid:leaf_alloc:"

// Dao is a Redis-backed leafid.Dao.
type Dao struct {
	rdb *redis.Client
}

// New wraps an existing *redis.Client.
func New(rdb *redis.Client) *Dao {
	return &Dao{rdb: rdb}
}

func key(tag int32) string {
	return keyPrefix + strconv.FormatInt(int64(tag), 10)
}

// Leaves returns every persisted Leaf row, reading each tag listed in
// the side-set that Insert maintains (see Tags).
func (d *Dao) Leaves(ctx context.Context) ([]leafid.Leaf, error) {
	tags, err := d.Tags(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]leafid.Leaf, 0, len(tags))
	for _, tag := range tags {
		leaf, err := d.Leaf(ctx, tag)
		if err != nil {
			return nil, err
		}
		out = append(out, leaf)
	}
	return out, nil
}

// Leaf returns the Leaf for tag, or leafid.ErrTagNotExist.
func (d *Dao) Leaf(ctx context.Context, tag int32) (leafid.Leaf, error) {
	vals, err := d.rdb.HGetAll(ctx, key(tag)).Result()
	if err != nil {
		return leafid.Leaf{}, fmt.Errorf("redisdao: leaf(%d): %w", tag, err)
	}
	if len(vals) == 0 {
		return leafid.Leaf{}, leafid.ErrTagNotExist
	}
	return parseLeaf(tag, vals)
}

// Insert persists a new Leaf.
func (d *Dao) Insert(ctx context.Context, leaf leafid.Leaf) error {
	err := d.rdb.HSet(ctx, key(leaf.Tag), map[string]interface{}{
		"max_id": leaf.MaxID,
		"step":   leaf.Step,
	}).Err()
	if err != nil {
		return fmt.Errorf("redisdao: insert(%d): %w", leaf.Tag, err)
	}
	if err := d.rdb.SAdd(ctx, keyPrefix+"tags", leaf.Tag).Err(); err != nil {
		return fmt.Errorf("redisdao: insert(%d) index: %w", leaf.Tag, err)
	}
	return nil
}

// Tags returns every tag currently persisted, read from the side-set
// maintained by Insert.
func (d *Dao) Tags(ctx context.Context) ([]int32, error) {
	members, err := d.rdb.SMembers(ctx, keyPrefix+"tags").Result()
	if err != nil {
		return nil, fmt.Errorf("redisdao: tags: %w", err)
	}
	tags := make([]int32, 0, len(members))
	for _, m := range members {
		v, err := strconv.ParseInt(m, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", leafid.ErrSerialization, err)
		}
		tags = append(tags, int32(v))
	}
	return tags, nil
}

// UpdateMax atomically advances max_id by the row's own step via
// HINCRBY, then re-reads the row.
func (d *Dao) UpdateMax(ctx context.Context, tag int32) (leafid.Leaf, error) {
	leaf, err := d.Leaf(ctx, tag)
	if err != nil {
		return leafid.Leaf{}, err
	}
	return d.UpdateMaxByStep(ctx, tag, leaf.Step)
}

// UpdateMaxByStep atomically advances max_id by step via HINCRBY,
// without touching the row's declared step field.
func (d *Dao) UpdateMaxByStep(ctx context.Context, tag int32, step int32) (leafid.Leaf, error) {
	k := key(tag)
	exists, err := d.rdb.Exists(ctx, k).Result()
	if err != nil {
		return leafid.Leaf{}, fmt.Errorf("redisdao: update(%d): %w", tag, err)
	}
	if exists == 0 {
		return leafid.Leaf{}, leafid.ErrTagNotExist
	}

	maxID, err := d.rdb.HIncrBy(ctx, k, "max_id", int64(step)).Result()
	if err != nil {
		return leafid.Leaf{}, fmt.Errorf("redisdao: update(%d): %w", tag, err)
	}
	stepStr, err := d.rdb.HGet(ctx, k, "step").Result()
	if err != nil {
		return leafid.Leaf{}, fmt.Errorf("redisdao: update(%d): %w", tag, err)
	}
	declaredStep, err := strconv.ParseInt(stepStr, 10, 32)
	if err != nil {
		return leafid.Leaf{}, fmt.Errorf("%w: %v", leafid.ErrSerialization, err)
	}
	return leafid.Leaf{Tag: tag, MaxID: maxID, Step: int32(declaredStep)}, nil
}

func parseLeaf(tag int32, vals map[string]string) (leafid.Leaf, error) {
	maxID, err := strconv.ParseInt(vals["max_id"], 10, 64)
	if err != nil {
		return leafid.Leaf{}, fmt.Errorf("%w: %v", leafid.ErrSerialization, err)
	}
	step, err := strconv.ParseInt(vals["step"], 10, 32)
	if err != nil {
		return leafid.Leaf{}, fmt.Errorf("%w: %v", leafid.ErrSerialization, err)
	}
	return leafid.Leaf{Tag: tag, MaxID: maxID, Step: int32(step)}, nil
}
