// Package gormdao implements leafid.Dao on top of GORM, usable with
// either Postgres or SQLite. It generalizes the other_examples
// qiaojinxia-distributed-service GormLeafIDGenerator's string-keyed
// leaf_alloc table to this module's int32 tag and six-method Dao
// contract.
package gormdao

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Lzww0608/leafid"
)

// leafAllocRow is the leaf_alloc table's GORM model.
type leafAllocRow struct {
	Tag   int32 `gorm:"column:tag;primaryKey"`
	MaxID int64 `gorm:"column:max_id"`
	Step  int32 `gorm:"column:step"`
}

func (leafAllocRow) TableName() string { return "leaf_alloc" }

// Dao is a GORM-backed leafid.Dao. Build one with OpenPostgres or
// OpenSQLite.
type Dao struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn via gorm.io/driver/postgres.
func OpenPostgres(dsn string) (*Dao, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("gormdao: open postgres: %w", err)
	}
	return &Dao{db: db}, nil
}

// OpenSQLite connects to dsn (a file path or ":memory:") via
// gorm.io/driver/sqlite.
func OpenSQLite(dsn string) (*Dao, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("gormdao: open sqlite: %w", err)
	}
	return &Dao{db: db}, nil
}

// Close releases the underlying connection pool.
func (d *Dao) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate creates/updates the leaf_alloc table. Not part of the
// leafid.Dao contract.
func (d *Dao) AutoMigrate(ctx context.Context) error {
	if err := d.db.WithContext(ctx).AutoMigrate(&leafAllocRow{}); err != nil {
		return fmt.Errorf("gormdao: automigrate: %w", err)
	}
	return nil
}

// Leaves returns every persisted Leaf row.
func (d *Dao) Leaves(ctx context.Context) ([]leafid.Leaf, error) {
	var rows []leafAllocRow
	if err := d.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormdao: leaves: %w", err)
	}
	out := make([]leafid.Leaf, len(rows))
	for i, r := range rows {
		out[i] = leafid.Leaf{Tag: r.Tag, MaxID: r.MaxID, Step: r.Step}
	}
	return out, nil
}

// Leaf returns the Leaf for tag, or leafid.ErrTagNotExist.
func (d *Dao) Leaf(ctx context.Context, tag int32) (leafid.Leaf, error) {
	var row leafAllocRow
	err := d.db.WithContext(ctx).Where("tag = ?", tag).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return leafid.Leaf{}, leafid.ErrTagNotExist
		}
		return leafid.Leaf{}, fmt.Errorf("gormdao: leaf(%d): %w", tag, err)
	}
	return leafid.Leaf{Tag: row.Tag, MaxID: row.MaxID, Step: row.Step}, nil
}

// Insert persists a new Leaf.
func (d *Dao) Insert(ctx context.Context, leaf leafid.Leaf) error {
	row := leafAllocRow{Tag: leaf.Tag, MaxID: leaf.MaxID, Step: leaf.Step}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("gormdao: insert(%d): %w", leaf.Tag, err)
	}
	return nil
}

// Tags returns every tag currently persisted.
func (d *Dao) Tags(ctx context.Context) ([]int32, error) {
	var tags []int32
	err := d.db.WithContext(ctx).Model(&leafAllocRow{}).Pluck("tag", &tags).Error
	if err != nil {
		return nil, fmt.Errorf("gormdao: tags: %w", err)
	}
	return tags, nil
}

// UpdateMax atomically advances max_id by the row's own step, inside a
// transaction so the read-back is consistent with the increment.
func (d *Dao) UpdateMax(ctx context.Context, tag int32) (leafid.Leaf, error) {
	return d.updateMax(ctx, tag, gorm.Expr("max_id + step"))
}

// UpdateMaxByStep atomically advances max_id by the caller-supplied
// step, without touching the row's declared step column.
func (d *Dao) UpdateMaxByStep(ctx context.Context, tag int32, step int32) (leafid.Leaf, error) {
	return d.updateMax(ctx, tag, gorm.Expr("max_id + ?", step))
}

func (d *Dao) updateMax(ctx context.Context, tag int32, maxIDExpr clause.Expr) (leafid.Leaf, error) {
	var leaf leafid.Leaf
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&leafAllocRow{}).Where("tag = ?", tag).
			Update("max_id", maxIDExpr)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return leafid.ErrTagNotExist
		}

		var row leafAllocRow
		if err := tx.Where("tag = ?", tag).First(&row).Error; err != nil {
			return err
		}
		leaf = leafid.Leaf{Tag: row.Tag, MaxID: row.MaxID, Step: row.Step}
		return nil
	})
	if err != nil {
		if errors.Is(err, leafid.ErrTagNotExist) {
			return leafid.Leaf{}, leafid.ErrTagNotExist
		}
		return leafid.Leaf{}, fmt.Errorf("gormdao: update(%d): %w", tag, err)
	}
	return leaf, nil
}
