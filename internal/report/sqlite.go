package report

import (
	"context"

	"github.com/naka-gawa/github-gitlog/internal/db"
	"github.com/naka-gawa/github-gitlog/internal/domain"
)

const sqliteExt = "db"

// SQLiteSink inserts one row per record into the gitlog table of a working database.
// Rows are committed at every Flush.
type SQLiteSink struct {
	ws        *Workspace
	db        *db.DB
	writer    *db.Writer
	finalized bool
	rows      int
}

// NewSQLiteSink creates an SQLiteSink in ws.
func NewSQLiteSink(ws *Workspace) *SQLiteSink {
	return &SQLiteSink{ws: ws}
}

func (s *SQLiteSink) Format() domain.Format { return domain.FormatSQLite }

// Open creates the working database and its gitlog table.
func (s *SQLiteSink) Open(ctx context.Context) error {
	database, err := db.Open(ctx, s.ws.TempPath(sqliteExt))
	if err != nil {
		return err
	}
	s.db = database
	s.writer = db.NewWriter(database)
	return nil
}

func (s *SQLiteSink) Append(ctx context.Context, r domain.CommitRecord) error {
	if s.writer == nil {
		return errClosed
	}
	return s.writer.Insert(ctx, r)
}

func (s *SQLiteSink) Flush(ctx context.Context) error {
	if s.writer == nil {
		return errClosed
	}
	return s.writer.Commit()
}

// Finalize commits, closes the working database and copies it to the report directory.
func (s *SQLiteSink) Finalize(ctx context.Context) (string, error) {
	if err := s.Flush(ctx); err != nil {
		return "", err
	}
	n, err := s.db.Count(ctx)
	if err != nil {
		return "", err
	}
	if err := s.Close(); err != nil {
		return "", err
	}
	path, err := s.ws.promote(s.ws.TempPath(sqliteExt), sqliteExt)
	if err != nil {
		return "", err
	}
	s.rows = n
	s.finalized = true
	return path, nil
}

// Count queries the table while the sink is open and reports the finalized row count after.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	if s.finalized {
		return s.rows, nil
	}
	if s.db == nil {
		return 0, errClosed
	}
	if err := s.writer.Commit(); err != nil {
		return 0, err
	}
	return s.db.Count(ctx)
}

func (s *SQLiteSink) Close() error {
	if s.db == nil {
		return nil
	}
	rollbackErr := s.writer.Rollback()
	err := s.db.Close()
	s.db, s.writer = nil, nil
	if err != nil {
		return err
	}
	return rollbackErr
}
