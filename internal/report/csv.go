package report

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/naka-gawa/github-gitlog/internal/codec"
	"github.com/naka-gawa/github-gitlog/internal/domain"
)

const csvExt = "csv"

// CSVSink writes a header line followed by one quoted row per record.
type CSVSink struct {
	ws        *Workspace
	file      *os.File
	writer    *bufio.Writer
	appended  int
	finalized bool
	rows      int
}

// NewCSVSink creates a CSVSink in ws.
func NewCSVSink(ws *Workspace) *CSVSink {
	return &CSVSink{ws: ws}
}

func (s *CSVSink) Format() domain.Format { return domain.FormatCSV }

// Open creates the working file and writes the header.
func (s *CSVSink) Open(ctx context.Context) error {
	f, err := os.Create(s.ws.TempPath(csvExt))
	if err != nil {
		return err
	}
	s.file = f
	s.writer = bufio.NewWriter(f)
	_, err = s.writer.WriteString(codec.Header() + "\n")
	return err
}

func (s *CSVSink) Append(ctx context.Context, r domain.CommitRecord) error {
	if s.writer == nil {
		return errClosed
	}
	if _, err := s.writer.WriteString(codec.EncodeRow(r) + "\n"); err != nil {
		return err
	}
	s.appended++
	return nil
}

func (s *CSVSink) Flush(ctx context.Context) error {
	if s.writer == nil {
		return errClosed
	}
	return s.writer.Flush()
}

// Finalize strips blank lines while copying the working file to the report directory.
func (s *CSVSink) Finalize(ctx context.Context) (string, error) {
	if err := s.Flush(ctx); err != nil {
		return "", err
	}
	if err := s.Close(); err != nil {
		return "", err
	}
	path, lines, err := s.ws.promoteLines(s.ws.TempPath(csvExt), csvExt)
	if err != nil {
		return "", err
	}
	if lines == 0 {
		return "", fmt.Errorf("report %s has no header", path)
	}
	s.rows = lines - 1
	s.finalized = true
	return path, nil
}

// Count returns the data rows of the final report once finalized, otherwise the rows
// appended so far.
func (s *CSVSink) Count(ctx context.Context) (int, error) {
	if s.finalized {
		return s.rows, nil
	}
	return s.appended, nil
}

func (s *CSVSink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.writer = nil, nil
	return err
}
