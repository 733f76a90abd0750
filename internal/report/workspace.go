// Package report writes the commit record stream to durable report artifacts.
//
// Every sink writes into a run-scoped Workspace first. Artifacts are copied to their
// final, timestamped name in the report directory only by Finalize, so an aborted run
// never leaves a complete-looking report behind.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout is the time format embedded in report file names.
const TimestampLayout = "20060102-150405"

// Workspace is the temporary directory of one run plus the naming of its final artifacts.
type Workspace struct {
	dir       string
	reportDir string
	tool      string
	stamp     string
}

// NewWorkspace creates a fresh temporary directory for the run identified by runID.
func NewWorkspace(reportDir, tool, runID string, startedAt time.Time) (*Workspace, error) {
	dir, err := os.MkdirTemp("", fmt.Sprintf("%s-%s-", tool, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	return &Workspace{
		dir:       dir,
		reportDir: reportDir,
		tool:      tool,
		stamp:     startedAt.Format(TimestampLayout),
	}, nil
}

// Dir returns the temporary working directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// TempPath returns the working location of the artifact with extension ext.
func (w *Workspace) TempPath(ext string) string {
	return filepath.Join(w.dir, "working."+ext)
}

// FinalPath returns the permanent location of the artifact with extension ext.
func (w *Workspace) FinalPath(ext string) string {
	return filepath.Join(w.reportDir, fmt.Sprintf("%s-%s.%s", w.tool, w.stamp, ext))
}

// Cleanup removes the working directory and everything in it.
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.dir)
}

// createFinal opens the permanent file for writing. It never overwrites an existing report.
func (w *Workspace) createFinal(ext string) (*os.File, error) {
	if err := os.MkdirAll(w.reportDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.OpenFile(w.FinalPath(ext), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	return f, nil
}

// promote copies src to the permanent location for ext.
func (w *Workspace) promote(src, ext string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := w.createFinal(ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), out.Close()
}

// promoteLines copies src to the permanent location for ext, dropping blank lines.
// It returns the final path and the number of lines written.
func (w *Workspace) promoteLines(src, ext string) (string, int, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	out, err := w.createFinal(ext)
	if err != nil {
		return "", 0, err
	}
	fail := func(err error) (string, int, error) {
		out.Close()
		os.Remove(out.Name())
		return "", 0, err
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	writer := bufio.NewWriter(out)
	lines := 0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := writer.WriteString(line + "\n"); err != nil {
			return fail(err)
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		return fail(err)
	}
	if err := writer.Flush(); err != nil {
		return fail(err)
	}
	return out.Name(), lines, out.Close()
}

// errClosed is returned by sinks used after Finalize or Close.
var errClosed = errors.New("sink is closed")
