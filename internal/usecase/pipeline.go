// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/naka-gawa/github-gitlog/internal/apperr"
	"github.com/naka-gawa/github-gitlog/internal/config"
	"github.com/naka-gawa/github-gitlog/internal/domain"
	"github.com/naka-gawa/github-gitlog/internal/gateway"
	"github.com/naka-gawa/github-gitlog/internal/git"
	"github.com/naka-gawa/github-gitlog/internal/gitlog"
)

// Reporter is the set of report sinks a run writes to.
type Reporter interface {
	Open(ctx context.Context) error
	Append(ctx context.Context, r domain.CommitRecord) error
	Flush(ctx context.Context) error
	Finalize(ctx context.Context) (map[domain.Format]string, error)
	Counts(ctx context.Context) (map[domain.Format]int, error)
}

// Pipeline is the use case for synchronizing an organization and extracting its commit log.
// It drives enumerate, synchronize, parse and write once per repository, strictly in order.
type Pipeline struct {
	cfg        config.Config
	enumerator gateway.Enumerator
	syncer     git.Syncer
	parser     gitlog.LogParser
	reporter   Reporter
	logger     *log.Logger

	// RunID identifies the run in the summary.
	RunID string
	// Progress receives one line per repository.
	Progress io.Writer

	now func() time.Time
}

// NewPipeline creates a new Pipeline instance.
func NewPipeline(cfg config.Config, enumerator gateway.Enumerator, syncer git.Syncer, parser gitlog.LogParser, reporter Reporter, logger *log.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		enumerator: enumerator,
		syncer:     syncer,
		parser:     parser,
		reporter:   reporter,
		logger:     logger,
		Progress:   io.Discard,
		now:        time.Now,
	}
}

// Run performs one full synchronization. Any fatal error aborts the run and no summary
// is returned; single malformed log lines are skipped and counted.
func (p *Pipeline) Run(ctx context.Context) (*domain.RunSummary, error) {
	org := p.cfg.Organization
	reposDir := p.cfg.OrgReposDir()
	p.logger.Println("Usecase: Starting synchronization...")

	if err := p.enumerator.Validate(ctx, org); err != nil {
		return nil, err
	}
	public, private, err := p.enumerator.TotalCounts(ctx, org)
	if err != nil {
		return nil, err
	}

	summary := &domain.RunSummary{
		RunID:            p.RunID,
		Organization:     org,
		PublicRepoCount:  public,
		PrivateRepoCount: private,
		TotalRepoCount:   public + private,
		Repositories:     make([]domain.RepoSummary, 0, public+private),
		StartedAt:        p.now(),
	}

	if err := p.reporter.Open(ctx); err != nil {
		return nil, err
	}

	contributors := make(map[string]struct{})
	for page := 1; page <= summary.TotalRepoCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		repo, err := p.syncRepository(ctx, page, summary, contributors, reposDir)
		if err != nil {
			return nil, err
		}
		summary.Repositories = append(summary.Repositories, repo)
	}

	paths, err := p.reporter.Finalize(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.verifyCounts(ctx, summary.RecordCount); err != nil {
		for _, path := range paths {
			os.Remove(path)
		}
		return nil, err
	}

	summary.Reports = paths
	summary.Contributors = len(contributors)
	summary.CommitStats = commitStats(summary.Repositories)
	summary.FinishedAt = p.now()
	p.logger.Println("Usecase: Synchronization complete.")
	return summary, nil
}

func (p *Pipeline) syncRepository(ctx context.Context, page int, summary *domain.RunSummary, contributors map[string]struct{}, reposDir string) (domain.RepoSummary, error) {
	org := p.cfg.Organization

	if err := p.enumerator.Ping(ctx); err != nil {
		return domain.RepoSummary{}, err
	}
	name, err := p.enumerator.NameAtPage(ctx, org, page)
	if err != nil {
		return domain.RepoSummary{}, err
	}
	fmt.Fprintf(p.Progress, "[%d/%d] %s\n", page, summary.TotalRepoCount, name)

	state, err := p.syncer.Sync(ctx, org, name, reposDir)
	if err != nil {
		return domain.RepoSummary{}, err
	}
	if state == domain.SyncStateNew {
		summary.NewRepoCount++
	}

	repo := domain.RepoSummary{Name: name, State: state}
	repoContributors := make(map[string]struct{})
	for record, err := range p.parser.Parse(ctx, filepath.Join(reposDir, name), name) {
		if err != nil {
			if gitlog.IsMalformedLine(err) {
				p.logger.Printf("  warning: %v", err)
				summary.SkippedLineCount++
				continue
			}
			return domain.RepoSummary{}, apperr.New(apperr.KindParse, "parse "+name, err)
		}
		if err := p.reporter.Append(ctx, record); err != nil {
			return domain.RepoSummary{}, err
		}
		summary.RecordCount++
		repo.Commits++
		key := contributorKey(record)
		repoContributors[key] = struct{}{}
		contributors[key] = struct{}{}
	}
	if err := p.reporter.Flush(ctx); err != nil {
		return domain.RepoSummary{}, err
	}

	repo.Contributors = len(repoContributors)
	p.logger.Printf("  %s: %d commits by %d contributors (%s)", name, repo.Commits, repo.Contributors, state)
	return repo, nil
}

// verifyCounts checks that every sink holds exactly the records the run produced.
func (p *Pipeline) verifyCounts(ctx context.Context, expected int) error {
	counts, err := p.reporter.Counts(ctx)
	if err != nil {
		return err
	}
	for format, n := range counts {
		if n != expected {
			return apperr.Newf(apperr.KindSink, "verify reports", "%s report holds %d records, expected %d", format, n, expected)
		}
	}
	return nil
}

// contributorKey identifies a contributor by email, falling back to the name.
func contributorKey(r domain.CommitRecord) string {
	if r.Email != "" {
		return strings.ToLower(r.Email)
	}
	return r.Committer
}
