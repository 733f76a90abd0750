// Package domain contains the core data structures and domain logic for the application.
package domain

import "time"

// CommitRecord is one commit of one repository, as written to every report sink.
// It is the core domain entity of this application.
type CommitRecord struct {
	Repository string `json:"repository"`
	Hash       string `json:"hash"`
	Committer  string `json:"committer"`
	Email      string `json:"email"`
	Date       string `json:"date"`
	Comments   string `json:"comments"`
}

// Fields returns the record's values in report column order.
func (r CommitRecord) Fields() []string {
	return []string{r.Repository, r.Hash, r.Committer, r.Email, r.Date, r.Comments}
}

// SyncState tells whether a local clone existed before the current run.
type SyncState string

const (
	SyncStateNew      SyncState = "new"
	SyncStateExisting SyncState = "existing"
)

// Format is a report output format.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatSQLite Format = "sqlite"
)

// RepoSummary holds the per-repository counters collected during a run.
type RepoSummary struct {
	Name         string    `json:"name"`
	State        SyncState `json:"state"`
	Commits      int       `json:"commits"`
	Contributors int       `json:"contributors"`
}

// CommitStats describes the distribution of commits per repository.
type CommitStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// RunSummary is the aggregate result of one invocation.
// TotalRepoCount is always PublicRepoCount + PrivateRepoCount, and RecordCount equals the
// number of rows held by every enabled sink.
type RunSummary struct {
	RunID            string            `json:"run_id"`
	Organization     string            `json:"organization"`
	PublicRepoCount  int               `json:"public_repo_count"`
	PrivateRepoCount int               `json:"private_repo_count"`
	TotalRepoCount   int               `json:"total_repo_count"`
	NewRepoCount     int               `json:"new_repo_count"`
	RecordCount      int               `json:"record_count"`
	SkippedLineCount int               `json:"skipped_line_count"`
	Contributors     int               `json:"contributors"`
	CommitStats      CommitStats       `json:"commit_stats"`
	Repositories     []RepoSummary     `json:"repositories"`
	Reports          map[Format]string `json:"reports"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
}
