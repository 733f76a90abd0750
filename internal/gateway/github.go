// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"github.com/naka-gawa/github-gitlog/internal/apperr"
)

// organizationType is the account type GitHub reports for organizations.
const organizationType = "Organization"

// Enumerator defines the behavior of a gateway for enumerating an organization's repositories.
type Enumerator interface {
	Validate(ctx context.Context, org string) error
	TotalCounts(ctx context.Context, org string) (public, private int, err error)
	NameAtPage(ctx context.Context, org string, page int) (string, error)
	// Ping checks that the API host is reachable with the configured token.
	Ping(ctx context.Context) error
}

// GitHubGateway is the concrete implementation of the Enumerator interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        *log.Logger
}

// rateLimitQuery is the cheapest authenticated GraphQL query; it doubles as a connectivity probe.
type rateLimitQuery struct {
	RateLimit struct {
		Remaining githubv4.Int
		ResetAt   githubv4.DateTime
	}
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
// An empty apiBaseURL targets github.com; otherwise it is a GitHub Enterprise REST
// endpoint such as https://ghe.example.com/api/v3/.
func NewGitHubGateway(token, apiBaseURL string, logger *log.Logger) (Enumerator, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "token"})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}

	restClient := github.NewClient(httpClient)
	graphqlClient := githubv4.NewClient(httpClient)
	if apiBaseURL != "" {
		restClient, err = restClient.WithEnterpriseURLs(apiBaseURL, apiBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to configure API base URL: %w", err)
		}
		graphqlClient = githubv4.NewEnterpriseClient(graphqlURL(apiBaseURL), httpClient)
	}

	return &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		logger:        logger,
	}, nil
}

// graphqlURL derives the GraphQL endpoint of a GitHub Enterprise REST base URL.
func graphqlURL(apiBaseURL string) string {
	base := strings.TrimSuffix(apiBaseURL, "/")
	base = strings.TrimSuffix(base, "/v3")
	return base + "/graphql"
}

// Validate confirms that org names an organization rather than a user or nothing at all.
func (g *GitHubGateway) Validate(ctx context.Context, org string) error {
	g.logger.Printf("Validating organization %q...", org)
	o, err := g.getOrganization(ctx, org)
	if err != nil {
		return err
	}
	if !strings.EqualFold(o.GetType(), organizationType) {
		return apperr.Newf(apperr.KindValidation, "validate organization", "%s is a %s, not an organization", org, o.GetType())
	}
	return nil
}

// TotalCounts returns the organization's public and private repository counts.
func (g *GitHubGateway) TotalCounts(ctx context.Context, org string) (int, int, error) {
	o, err := g.getOrganization(ctx, org)
	if err != nil {
		return 0, 0, err
	}
	public, private := int(o.GetPublicRepos()), int(o.GetTotalPrivateRepos())
	g.logger.Printf("Organization %s has %d public and %d private repositories.", org, public, private)
	return public, private, nil
}

// NameAtPage resolves the repository at a 1-based index by requesting pages of size one.
func (g *GitHubGateway) NameAtPage(ctx context.Context, org string, page int) (string, error) {
	opts := &github.RepositoryListByOrgOptions{ListOptions: github.ListOptions{PerPage: 1, Page: page}}
	repos, _, err := g.restClient.Repositories.ListByOrg(ctx, org, opts)
	if err != nil {
		return "", apperr.New(apperr.KindConnectivity, "list repositories", fmt.Errorf("failed to list repository page %d of %s: %w", page, org, err))
	}
	if len(repos) == 0 || repos[0].GetName() == "" {
		return "", apperr.Newf(apperr.KindValidation, "list repositories", "page %d of %s holds no repository", page, org)
	}
	return repos[0].GetName(), nil
}

// Ping checks connectivity to the API host.
func (g *GitHubGateway) Ping(ctx context.Context) error {
	var q rateLimitQuery
	if err := g.graphqlClient.Query(ctx, &q, nil); err != nil {
		return apperr.New(apperr.KindConnectivity, "ping", fmt.Errorf("failed to reach GitHub: %w", err))
	}
	g.logger.Printf("  API reachable, %d requests remaining until %s", q.RateLimit.Remaining, q.RateLimit.ResetAt.Format(time.RFC3339))
	return nil
}

func (g *GitHubGateway) getOrganization(ctx context.Context, org string) (*github.Organization, error) {
	o, _, err := g.restClient.Organizations.Get(ctx, org)
	if err != nil {
		var errResp *github.ErrorResponse
		if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
			return nil, apperr.Newf(apperr.KindValidation, "validate organization", "organization %s not found", org)
		}
		return nil, apperr.New(apperr.KindConnectivity, "get organization", fmt.Errorf("failed to get organization %s: %w", org, err))
	}
	return o, nil
}
