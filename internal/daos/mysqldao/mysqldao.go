// Package mysqldao implements leafid.Dao against MySQL using
// database/sql and the go-sql-driver/mysql driver. It generalizes the
// teacher module's own others/leafSegment/leaf.go LeafDAO (single
// bizTag string, one hardcoded update) into the full six-method Dao
// contract over a leaf_alloc table keyed by an int32 tag, following
// the same transactional UPDATE-then-SELECT pattern as
// original_source's src/dao/mysql.rs.
package mysqldao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/Lzww0608/leafid"
)

// Dao is a MySQL-backed leafid.Dao. Build one with Open.
type Dao struct {
	db *sql.DB
}

// Open connects to dsn and tunes the pool the way the teacher's
// NewLeafDAO does (bounded open/idle connections, hour-long lifetime).
func Open(dsn string) (*Dao, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqldao: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &Dao{db: db}, nil
}

// Close releases the underlying connection pool.
func (d *Dao) Close() error {
	return d.db.Close()
}

// CreateTable creates the leaf_alloc table, for test fixtures and
// first-run bootstrap. Not part of the leafid.Dao contract.
func (d *Dao) CreateTable(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS leaf_alloc (
			tag    INT NOT NULL PRIMARY KEY,
			max_id BIGINT NOT NULL,
			step   INT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("mysqldao: create table: %w", err)
	}
	return nil
}

// Leaves returns every persisted Leaf row.
func (d *Dao) Leaves(ctx context.Context) ([]leafid.Leaf, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT tag, max_id, step FROM leaf_alloc")
	if err != nil {
		return nil, fmt.Errorf("mysqldao: leaves: %w", err)
	}
	defer rows.Close()

	var out []leafid.Leaf
	for rows.Next() {
		var leaf leafid.Leaf
		if err := rows.Scan(&leaf.Tag, &leaf.MaxID, &leaf.Step); err != nil {
			return nil, fmt.Errorf("%w: %v", leafid.ErrSerialization, err)
		}
		out = append(out, leaf)
	}
	return out, rows.Err()
}

// Leaf returns the Leaf for tag, or leafid.ErrTagNotExist.
func (d *Dao) Leaf(ctx context.Context, tag int32) (leafid.Leaf, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT tag, max_id, step FROM leaf_alloc WHERE tag = ?", tag)
	var leaf leafid.Leaf
	if err := row.Scan(&leaf.Tag, &leaf.MaxID, &leaf.Step); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return leafid.Leaf{}, leafid.ErrTagNotExist
		}
		return leafid.Leaf{}, fmt.Errorf("mysqldao: leaf(%d): %w", tag, err)
	}
	return leaf, nil
}

// Insert persists a new Leaf.
func (d *Dao) Insert(ctx context.Context, leaf leafid.Leaf) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO leaf_alloc (tag, max_id, step) VALUES (?, ?, ?)",
		leaf.Tag, leaf.MaxID, leaf.Step)
	if err != nil {
		return fmt.Errorf("mysqldao: insert(%d): %w", leaf.Tag, err)
	}
	return nil
}

// Tags returns every tag currently persisted.
func (d *Dao) Tags(ctx context.Context) ([]int32, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT tag FROM leaf_alloc")
	if err != nil {
		return nil, fmt.Errorf("mysqldao: tags: %w", err)
	}
	defer rows.Close()

	var tags []int32
	for rows.Next() {
		var tag int32
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("%w: %v", leafid.ErrSerialization, err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// UpdateMax atomically reserves a range of IDs by advancing max_id by
// the row's own step, inside a transaction so the read-back is
// consistent with the increment.
func (d *Dao) UpdateMax(ctx context.Context, tag int32) (leafid.Leaf, error) {
	return d.updateMax(ctx, tag, "UPDATE leaf_alloc SET max_id = max_id + step WHERE tag = ?", tag)
}

// UpdateMaxByStep atomically advances max_id by the caller-supplied
// step, without touching the row's declared step column.
func (d *Dao) UpdateMaxByStep(ctx context.Context, tag int32, step int32) (leafid.Leaf, error) {
	return d.updateMax(ctx, tag, "UPDATE leaf_alloc SET max_id = max_id + ? WHERE tag = ?", step, tag)
}

func (d *Dao) updateMax(ctx context.Context, tag int32, query string, args ...interface{}) (leafid.Leaf, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return leafid.Leaf{}, fmt.Errorf("mysqldao: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return leafid.Leaf{}, fmt.Errorf("mysqldao: update(%d): %w", tag, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return leafid.Leaf{}, leafid.ErrTagNotExist
	}

	var leaf leafid.Leaf
	row := tx.QueryRowContext(ctx,
		"SELECT tag, max_id, step FROM leaf_alloc WHERE tag = ?", tag)
	if err := row.Scan(&leaf.Tag, &leaf.MaxID, &leaf.Step); err != nil {
		return leafid.Leaf{}, fmt.Errorf("mysqldao: read back(%d): %w", tag, err)
	}

	if err := tx.Commit(); err != nil {
		return leafid.Leaf{}, fmt.Errorf("mysqldao: commit(%d): %w", tag, err)
	}
	return leaf, nil
}
