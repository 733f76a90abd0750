// Package db stores commit records in an embedded SQLite database.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/naka-gawa/github-gitlog/internal/codec"
	"github.com/naka-gawa/github-gitlog/internal/domain"
)

// Driver is the database/sql driver name registered by go-sqlite3.
const Driver = "sqlite3"

// Table is the name of the commit log table.
const Table = "gitlog"

const createTableSQL = `CREATE TABLE IF NOT EXISTS gitlog (
	ID INTEGER PRIMARY KEY AUTOINCREMENT,
	Repository TEXT NOT NULL,
	Hash TEXT NOT NULL,
	Committer TEXT NOT NULL,
	Email TEXT NOT NULL,
	Date TEXT NOT NULL,
	Comments TEXT NOT NULL
)`

var insertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (?%s)",
	Table, strings.Join(codec.Columns, ", "), strings.Repeat(", ?", len(codec.Columns)-1))

// DB wraps sql.DB with additional context
type DB struct {
	*sql.DB
	path string
}

// Open creates a new database connection and makes sure the gitlog table exists.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open(Driver, path)
	if err != nil {
		return nil, err
	}

	// A single connection keeps ":memory:" databases and open transactions consistent.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create %s table: %w", Table, err)
	}

	return &DB{DB: db, path: path}, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

// Writer inserts records through one prepared statement inside a transaction.
type Writer struct {
	db   *DB
	tx   *sql.Tx
	stmt *sql.Stmt
}

// NewWriter creates a Writer for db. No transaction is open until Begin.
func NewWriter(db *DB) *Writer {
	return &Writer{db: db}
}

// Begin starts a transaction and prepares the insert statement.
func (w *Writer) Begin(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	w.tx, w.stmt = tx, stmt
	return nil
}

// Insert adds one row; the ID column is assigned by SQLite.
func (w *Writer) Insert(ctx context.Context, r domain.CommitRecord) error {
	if w.tx == nil {
		if err := w.Begin(ctx); err != nil {
			return err
		}
	}
	_, err := w.stmt.ExecContext(ctx, codec.Args(r)...)
	return err
}

// Commit commits the open transaction, if any.
func (w *Writer) Commit() error {
	if w.tx == nil {
		return nil
	}
	w.stmt.Close()
	err := w.tx.Commit()
	w.tx, w.stmt = nil, nil
	return err
}

// Rollback discards the open transaction, if any.
func (w *Writer) Rollback() error {
	if w.tx == nil {
		return nil
	}
	w.stmt.Close()
	err := w.tx.Rollback()
	w.tx, w.stmt = nil, nil
	return err
}

// Count returns the number of rows in the gitlog table.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+Table).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Records returns every row in insertion order.
func (db *DB) Records(ctx context.Context) ([]domain.CommitRecord, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY ID", strings.Join(codec.Columns, ", "), Table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.CommitRecord
	for rows.Next() {
		var r domain.CommitRecord
		if err := rows.Scan(&r.Repository, &r.Hash, &r.Committer, &r.Email, &r.Date, &r.Comments); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
