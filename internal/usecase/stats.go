package usecase

import (
	"github.com/montanaflynn/stats"

	"github.com/naka-gawa/github-gitlog/internal/domain"
)

// commitStats summarizes commits per repository. An empty run yields zero values.
func commitStats(repos []domain.RepoSummary) domain.CommitStats {
	data := make(stats.Float64Data, 0, len(repos))
	for _, r := range repos {
		data = append(data, float64(r.Commits))
	}
	if data.Len() == 0 {
		return domain.CommitStats{}
	}

	var result domain.CommitStats
	result.Mean, _ = data.Mean()
	result.Median, _ = data.Median()
	result.Max, _ = data.Max()
	result.StdDev, _ = data.StandardDeviation()
	return result
}
