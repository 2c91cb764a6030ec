// Package crawler reconstructs per-PR lifecycle state for one repository:
// it composes the independently fetched sub-resources of each pull request
// into a single record and folds the records into a per-repository bundle.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	gh "github.com/devmetrics/gh-metrics-reporter/github"
	"github.com/devmetrics/gh-metrics-reporter/models"
	"github.com/devmetrics/gh-metrics-reporter/review"
	"go.uber.org/zap"
)

// API is the slice of the GitHub client the crawler depends on.
type API interface {
	Org() string
	ListPullRequests(ctx context.Context, repo string) ([]models.PRSummary, error)
	GetPullRequest(ctx context.Context, repo string, number int) (models.PRSummary, error)
	ListFiles(ctx context.Context, repo string, number int) (models.FileStats, error)
	ListReviews(ctx context.Context, repo string, number int) ([]models.ReviewEvent, error)
	ListCommits(ctx context.Context, repo string, number int) ([]models.CommitEntry, error)
	OrgTeams(ctx context.Context) ([]models.Team, error)
	OrgMember(ctx context.Context, login string) (bool, error)
	IsTeamMember(ctx context.Context, teamSlug, login string) (bool, error)
}

// Crawler produces one RepositoryMetricsBundle per repository and date
// window. Failures below it are swallowed and logged; only cancellation and
// quota exhaustion propagate.
type Crawler struct {
	api       API
	log       *zap.SugaredLogger
	threshold int
	members   *membershipCache
	now       func() time.Time
}

// New constructs a crawler with the given health threshold in days.
func New(api API, thresholdDays int, log *zap.SugaredLogger) *Crawler {
	return &Crawler{
		api:       api,
		log:       log,
		threshold: thresholdDays,
		members:   newMembershipCache(api, log),
		now:       time.Now,
	}
}

// Crawl fetches all pull requests of one repository created within
// [start, end] (inclusive; the filter is on creation time only) and enriches
// each into a PullRequestRecord. A failure enriching one PR skips that PR
// and does not abort the rest.
func (c *Crawler) Crawl(ctx context.Context, repo string, start, end time.Time) (models.RepositoryMetricsBundle, error) {
	bundle := models.RepositoryMetricsBundle{
		Repository: c.api.Org() + "/" + repo,
	}

	prs, err := c.api.ListPullRequests(ctx, repo)
	if err != nil {
		return bundle, fmt.Errorf("listing pull requests for %s: %w", repo, err)
	}

	for _, pr := range prs {
		if pr.CreatedAt.IsZero() {
			c.log.Errorw("skipping pull request with malformed creation timestamp",
				"repo", bundle.Repository, "pr", pr.Number)
			continue
		}
		created := pr.CreatedAt.UTC()
		if created.Before(start) || created.After(end) {
			continue
		}

		record, err := c.enrich(ctx, repo, pr)
		if err != nil {
			if fatal(ctx, err) {
				return bundle, err
			}
			c.log.Errorw("skipping pull request",
				"repo", bundle.Repository, "pr", pr.Number, "error", err)
			continue
		}

		bundle.Counters.Add(record, record.Health == review.Healthy)
		bundle.PullRequests = append(bundle.PullRequests, record)
	}

	return bundle, nil
}

// enrich composes the detail view, file churn, reviews, commits and, for the
// first approver only, team membership into one record. Each sub-fetch is
// independently fault-tolerant: a failed fetch substitutes a zero value
// rather than aborting the rest of the PR.
func (c *Crawler) enrich(ctx context.Context, repo string, pr models.PRSummary) (models.PullRequestRecord, error) {
	detail, err := c.api.GetPullRequest(ctx, repo, pr.Number)
	if err != nil {
		if fatal(ctx, err) {
			return models.PullRequestRecord{}, err
		}
		c.log.Warnw("pull detail unavailable, using list data",
			"repo", repo, "pr", pr.Number, "error", err)
		detail = pr
	}

	files, err := c.api.ListFiles(ctx, repo, pr.Number)
	if err != nil {
		if fatal(ctx, err) {
			return models.PullRequestRecord{}, err
		}
		files = models.FileStats{}
	}

	reviews, err := c.api.ListReviews(ctx, repo, pr.Number)
	if err != nil {
		if fatal(ctx, err) {
			return models.PullRequestRecord{}, err
		}
		reviews = nil
	}

	commits, err := c.api.ListCommits(ctx, repo, pr.Number)
	if err != nil {
		if fatal(ctx, err) {
			return models.PullRequestRecord{}, err
		}
		commits = nil
	}

	duration := c.durationDays(pr)
	outcome := review.Analyze(reviews, pr.Merged())

	var approverTeams []string
	if outcome.Approver != "" {
		approverTeams, err = c.members.TeamsFor(ctx, outcome.Approver)
		if err != nil {
			return models.PullRequestRecord{}, err
		}
	}

	return models.PullRequestRecord{
		Repository:          c.api.Org() + "/" + repo,
		Number:              pr.Number,
		Title:               pr.Title,
		Author:              pr.Author,
		State:               pr.State,
		TargetBranch:        detail.TargetBranch,
		CreatedAt:           pr.CreatedAt.UTC(),
		MergedAt:            pr.MergedAt,
		DurationDays:        duration,
		Health:              review.Health(duration, c.threshold),
		Approver:            outcome.Approver,
		ApproverComment:     outcome.ApproverComment,
		ApproverTeams:       approverTeams,
		ChangeRequestCount:  outcome.ChangeRequests,
		PendingChanges:      outcome.Pending,
		ResolvedChanges:     outcome.Resolved,
		ChangeRequestStatus: outcome.Status,
		Labels:              pr.Labels,
		FileCount:           files.FileCount,
		Additions:           files.Additions,
		Deletions:           files.Deletions,
		ChangedFiles:        files.Files,
		Commits:             commits,
		Reviews:             reviews,
	}, nil
}

// durationDays is merged-or-now minus created, floored to whole days.
func (c *Crawler) durationDays(pr models.PRSummary) int {
	until := c.now().UTC()
	if pr.MergedAt != nil {
		until = pr.MergedAt.UTC()
	}
	d := until.Sub(pr.CreatedAt.UTC())
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// fatal reports errors that must abort the run instead of degrading it.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gh.ErrQuotaExhausted)
}
