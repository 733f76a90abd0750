package report

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/github-gitlog/internal/apperr"
	"github.com/naka-gawa/github-gitlog/internal/domain"
)

// Sink is an append-only destination for commit records.
type Sink interface {
	Format() domain.Format
	Open(ctx context.Context) error
	Append(ctx context.Context, r domain.CommitRecord) error
	// Flush makes everything appended so far durable in the working copy.
	Flush(ctx context.Context) error
	// Finalize materializes the artifact at its permanent path and returns that path.
	Finalize(ctx context.Context) (string, error)
	// Count returns the number of records the sink holds.
	Count(ctx context.Context) (int, error)
	Close() error
}

// NewSinks builds one sink per format, all writing into ws.
func NewSinks(ws *Workspace, formats []domain.Format) ([]Sink, error) {
	sinks := make([]Sink, 0, len(formats))
	for _, f := range formats {
		switch f {
		case domain.FormatCSV:
			sinks = append(sinks, NewCSVSink(ws))
		case domain.FormatSQLite:
			sinks = append(sinks, NewSQLiteSink(ws))
		default:
			return nil, apperr.Newf(apperr.KindConfig, "report format", "unsupported format %q", f)
		}
	}
	if len(sinks) == 0 {
		return nil, apperr.Newf(apperr.KindConfig, "report format", "at least one format is required")
	}
	return sinks, nil
}

// Fanout replays every record to each of its sinks, so the log is parsed once per run.
type Fanout struct {
	sinks []Sink
}

// NewFanout creates a Fanout over sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Open opens every sink.
func (f *Fanout) Open(ctx context.Context) error {
	for _, s := range f.sinks {
		if err := s.Open(ctx); err != nil {
			return apperr.New(apperr.KindSink, fmt.Sprintf("open %s report", s.Format()), err)
		}
	}
	return nil
}

// Append writes r to every sink.
func (f *Fanout) Append(ctx context.Context, r domain.CommitRecord) error {
	for _, s := range f.sinks {
		if err := s.Append(ctx, r); err != nil {
			return apperr.New(apperr.KindSink, fmt.Sprintf("write %s report", s.Format()), err)
		}
	}
	return nil
}

// Flush flushes every sink.
func (f *Fanout) Flush(ctx context.Context) error {
	for _, s := range f.sinks {
		if err := s.Flush(ctx); err != nil {
			return apperr.New(apperr.KindSink, fmt.Sprintf("flush %s report", s.Format()), err)
		}
	}
	return nil
}

// Finalize finalizes all sinks concurrently. Each sink is touched by exactly one goroutine.
// If any sink fails, the artifacts the others already promoted are removed.
func (f *Fanout) Finalize(ctx context.Context) (map[domain.Format]string, error) {
	paths := make([]string, len(f.sinks))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, s := range f.sinks {
		eg.Go(func() error {
			path, err := s.Finalize(egCtx)
			if err != nil {
				return apperr.New(apperr.KindSink, fmt.Sprintf("finalize %s report", s.Format()), err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		for _, path := range paths {
			if path != "" {
				os.Remove(path)
			}
		}
		return nil, err
	}

	result := make(map[domain.Format]string, len(f.sinks))
	for i, s := range f.sinks {
		result[s.Format()] = paths[i]
	}
	return result, nil
}

// Counts returns each sink's own record count.
func (f *Fanout) Counts(ctx context.Context) (map[domain.Format]int, error) {
	counts := make(map[domain.Format]int, len(f.sinks))
	for _, s := range f.sinks {
		n, err := s.Count(ctx)
		if err != nil {
			return nil, apperr.New(apperr.KindSink, fmt.Sprintf("count %s report", s.Format()), err)
		}
		counts[s.Format()] = n
	}
	return counts, nil
}

// Close releases every sink, reporting all failures.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
