// Package gitlog turns the history of a local clone into commit records.
package gitlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/naka-gawa/github-gitlog/internal/codec"
	"github.com/naka-gawa/github-gitlog/internal/domain"
	"github.com/naka-gawa/github-gitlog/internal/git"
)

// separator delimits fields of one log line. Commit content never contains it in practice,
// and a line that does is reported as malformed instead of shifting fields.
const separator = "\x1f"

const fieldCount = 6

// maxLineSize bounds a single log line; subjects longer than this are treated as malformed.
const maxLineSize = 1024 * 1024

// MalformedLineError reports a log line that did not split into the expected fields.
// It is not fatal: the sequence continues with the next line.
type MalformedLineError struct {
	Repository string
	Line       string
	Fields     int
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed log line in %s: got %d fields, want %d: %q", e.Repository, e.Fields, fieldCount, e.Line)
}

// IsMalformedLine reports whether err is a skippable MalformedLineError.
func IsMalformedLine(err error) bool {
	var m *MalformedLineError
	return errors.As(err, &m)
}

// LogParser defines the behavior of a commit log reader.
type LogParser interface {
	Parse(ctx context.Context, repoPath, repoName string) iter.Seq2[domain.CommitRecord, error]
}

// Parser is the concrete implementation of the LogParser interface.
type Parser struct {
	executor git.CommandExecutor
	logger   *log.Logger
}

// NewParser creates a new Parser instance.
func NewParser(executor git.CommandExecutor, logger *log.Logger) *Parser {
	return &Parser{executor: executor, logger: logger}
}

// Parse streams the commits of the clone at repoPath, newest first.
// A missing or empty directory and a clone without commits yield nothing.
// Malformed lines are yielded as *MalformedLineError and do not end the sequence; any
// other error is yielded once and ends it.
func (p *Parser) Parse(ctx context.Context, repoPath, repoName string) iter.Seq2[domain.CommitRecord, error] {
	return func(yield func(domain.CommitRecord, error) bool) {
		empty, err := isEmptyDir(repoPath)
		if err != nil {
			yield(domain.CommitRecord{}, fmt.Errorf("failed to inspect %s: %w", repoPath, err))
			return
		}
		if empty {
			p.logger.Printf("  %s is empty, nothing to parse", repoPath)
			return
		}

		stream, err := p.executor.Stream(ctx, repoPath, LogArgs(repoName)...)
		if err != nil {
			yield(domain.CommitRecord{}, fmt.Errorf("failed to read log of %s: %w", repoName, err))
			return
		}

		scanner := bufio.NewScanner(stream)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		stopped := false
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			record, err := ParseLine(line, repoName)
			if !yield(record, err) {
				stopped = true
				break
			}
		}
		scanErr := scanner.Err()
		closeErr := stream.Close()
		if stopped {
			return
		}
		if scanErr != nil {
			yield(domain.CommitRecord{}, fmt.Errorf("failed to scan log of %s: %w", repoName, scanErr))
			return
		}
		if closeErr != nil && !noCommitsYet(closeErr) {
			yield(domain.CommitRecord{}, fmt.Errorf("failed to read log of %s: %w", repoName, closeErr))
		}
	}
}

// LogArgs returns the git arguments producing one separator-delimited line per commit:
// repository, abbreviated hash, committer name, committer email, short date, subject.
func LogArgs(repoName string) []string {
	format := strings.Join([]string{
		strings.ReplaceAll(repoName, "%", "%%"),
		"%h", "%cn", "%ce", "%cd", "%s",
	}, "%x1f")
	return []string{"log", "--all", "--date=short", "--pretty=format:" + format}
}

// ParseLine sanitizes one raw log line and splits it into a record.
func ParseLine(line, repoName string) (domain.CommitRecord, error) {
	fields := strings.Split(codec.Sanitize(line), separator)
	if len(fields) != fieldCount {
		return domain.CommitRecord{}, &MalformedLineError{Repository: repoName, Line: line, Fields: len(fields)}
	}
	return domain.CommitRecord{
		Repository: fields[0],
		Hash:       fields[1],
		Committer:  capitalize(fields[2]),
		Email:      fields[3],
		Date:       fields[4],
		Comments:   fields[5],
	}, nil
}

// capitalize upper-cases the first rune and leaves the rest untouched.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// noCommitsYet matches git's complaint about logging a branch without commits.
func noCommitsYet(err error) bool {
	var gitErr *git.GitError
	return errors.As(err, &gitErr) && strings.Contains(gitErr.Output, "does not have any commits yet")
}
