package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gh "github.com/devmetrics/gh-metrics-reporter/github"
	"github.com/devmetrics/gh-metrics-reporter/models"
	"github.com/devmetrics/gh-metrics-reporter/review"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

// fakeAPI is an in-memory API implementation keyed by PR number.
type fakeAPI struct {
	org     string
	prs     []models.PRSummary
	listErr error

	details   map[int]models.PRSummary
	detailErr map[int]error
	files     map[int]models.FileStats
	filesErr  map[int]error
	reviews   map[int][]models.ReviewEvent
	commits   map[int][]models.CommitEntry

	teams       []models.Team
	orgMembers  map[string]bool
	teamMembers map[string]map[string]bool

	orgMemberCalls  int
	orgTeamsCalls   int
	teamMemberCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		org:         "acme",
		details:     make(map[int]models.PRSummary),
		detailErr:   make(map[int]error),
		files:       make(map[int]models.FileStats),
		filesErr:    make(map[int]error),
		reviews:     make(map[int][]models.ReviewEvent),
		commits:     make(map[int][]models.CommitEntry),
		orgMembers:  make(map[string]bool),
		teamMembers: make(map[string]map[string]bool),
	}
}

func (f *fakeAPI) Org() string { return f.org }

func (f *fakeAPI) ListPullRequests(_ context.Context, _ string) ([]models.PRSummary, error) {
	return f.prs, f.listErr
}

func (f *fakeAPI) GetPullRequest(_ context.Context, _ string, number int) (models.PRSummary, error) {
	if err := f.detailErr[number]; err != nil {
		return models.PRSummary{}, err
	}
	if detail, ok := f.details[number]; ok {
		return detail, nil
	}
	return models.PRSummary{}, fmt.Errorf("no detail for #%d", number)
}

func (f *fakeAPI) ListFiles(_ context.Context, _ string, number int) (models.FileStats, error) {
	if err := f.filesErr[number]; err != nil {
		return models.FileStats{}, err
	}
	return f.files[number], nil
}

func (f *fakeAPI) ListReviews(_ context.Context, _ string, number int) ([]models.ReviewEvent, error) {
	return f.reviews[number], nil
}

func (f *fakeAPI) ListCommits(_ context.Context, _ string, number int) ([]models.CommitEntry, error) {
	return f.commits[number], nil
}

func (f *fakeAPI) OrgTeams(_ context.Context) ([]models.Team, error) {
	f.orgTeamsCalls++
	return f.teams, nil
}

func (f *fakeAPI) OrgMember(_ context.Context, login string) (bool, error) {
	f.orgMemberCalls++
	return f.orgMembers[login], nil
}

func (f *fakeAPI) IsTeamMember(_ context.Context, teamSlug, login string) (bool, error) {
	f.teamMemberCalls++
	return f.teamMembers[teamSlug][login], nil
}

func newTestCrawler(api API, threshold int) *Crawler {
	c := New(api, threshold, zap.NewNop().Sugar())
	c.now = func() time.Time { return now }
	return c
}

func addPR(f *fakeAPI, number int, author string, created time.Time, merged *time.Time) {
	pr := models.PRSummary{
		Number:    number,
		Title:     fmt.Sprintf("change %d", number),
		Author:    author,
		State:     "open",
		CreatedAt: created,
		MergedAt:  merged,
	}
	if merged != nil {
		pr.State = "closed"
	}
	f.prs = append(f.prs, pr)
	detail := pr
	detail.TargetBranch = "main"
	f.details[number] = detail
}

func mergedAt(t time.Time) *time.Time { return &t }

func TestCrawlHealthScenario(t *testing.T) {
	// Repository "alpha" with threshold 2: a 1-day merged PR is healthy,
	// a 5-day merged PR and a PR open for 10 days are not.
	f := newFakeAPI()
	addPR(f, 1, "alice", now.AddDate(0, 0, -4), mergedAt(now.AddDate(0, 0, -3)))
	addPR(f, 2, "alice", now.AddDate(0, 0, -9), mergedAt(now.AddDate(0, 0, -4)))
	addPR(f, 3, "bob", now.AddDate(0, 0, -10), nil)

	c := newTestCrawler(f, 2)
	bundle, err := c.Crawl(context.Background(), "alpha", now.AddDate(0, 0, -30), now)
	require.NoError(t, err)

	require.Equal(t, "acme/alpha", bundle.Repository)
	require.Equal(t, 3, bundle.Counters.TotalPRs)
	require.Equal(t, 2, bundle.Counters.MergedPRs)
	require.Equal(t, 1, bundle.Counters.HealthyPRs)
	require.Equal(t, 2, bundle.Counters.UnhealthyPRs)

	require.Len(t, bundle.PullRequests, 3)
	require.Equal(t, review.Healthy, bundle.PullRequests[0].Health)
	require.Equal(t, 1, bundle.PullRequests[0].DurationDays)
	require.Equal(t, review.Unhealthy, bundle.PullRequests[1].Health)
	require.Equal(t, 5, bundle.PullRequests[1].DurationDays)
	require.Equal(t, review.Unhealthy, bundle.PullRequests[2].Health)
	require.Equal(t, 10, bundle.PullRequests[2].DurationDays)
}

func TestCrawlFiltersOnCreationTimeOnly(t *testing.T) {
	f := newFakeAPI()
	start := now.AddDate(0, 0, -7)
	// Created before the window but merged inside it: excluded.
	addPR(f, 1, "alice", start.AddDate(0, 0, -5), mergedAt(now.AddDate(0, 0, -2)))
	// Created exactly on the start boundary: included.
	addPR(f, 2, "alice", start, nil)
	// Created after the end boundary: excluded.
	addPR(f, 3, "bob", now.Add(time.Hour), nil)

	c := newTestCrawler(f, 2)
	bundle, err := c.Crawl(context.Background(), "alpha", start, now)
	require.NoError(t, err)

	require.Len(t, bundle.PullRequests, 1)
	require.Equal(t, 2, bundle.PullRequests[0].Number)
}

func TestCrawlEmptyRepository(t *testing.T) {
	f := newFakeAPI()
	c := newTestCrawler(f, 2)

	bundle, err := c.Crawl(context.Background(), "alpha", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)

	require.Empty(t, bundle.PullRequests)
	require.Zero(t, bundle.Counters)
}

func TestCrawlSkipsMalformedCreationTimestamp(t *testing.T) {
	f := newFakeAPI()
	f.prs = append(f.prs, models.PRSummary{Number: 9, Author: "alice"})
	addPR(f, 2, "alice", now.AddDate(0, 0, -1), nil)

	c := newTestCrawler(f, 2)
	bundle, err := c.Crawl(context.Background(), "alpha", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)

	require.Len(t, bundle.PullRequests, 1)
	require.Equal(t, 2, bundle.PullRequests[0].Number)
	require.Equal(t, 1, bundle.Counters.TotalPRs)
}

func TestCrawlSubFetchFailuresDegradeNotAbort(t *testing.T) {
	f := newFakeAPI()
	addPR(f, 1, "alice", now.AddDate(0, 0, -1), nil)
	f.filesErr[1] = errors.New("boom")
	f.detailErr[1] = errors.New("boom")

	c := newTestCrawler(f, 2)
	bundle, err := c.Crawl(context.Background(), "alpha", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)

	require.Len(t, bundle.PullRequests, 1)
	pr := bundle.PullRequests[0]
	require.Zero(t, pr.FileCount)
	require.Zero(t, pr.Additions)
	require.Zero(t, pr.Deletions)
	require.Empty(t, pr.TargetBranch) // detail substitute has no base branch
	require.Equal(t, review.NoComment, pr.ApproverComment)
	require.Equal(t, review.StatusNone, pr.ChangeRequestStatus)
}

func TestCrawlQuotaExhaustionAborts(t *testing.T) {
	f := newFakeAPI()
	addPR(f, 1, "alice", now.AddDate(0, 0, -1), nil)
	f.detailErr[1] = fmt.Errorf("%w: acme pulls", gh.ErrQuotaExhausted)

	c := newTestCrawler(f, 2)
	_, err := c.Crawl(context.Background(), "alpha", now.AddDate(0, 0, -7), now)
	require.ErrorIs(t, err, gh.ErrQuotaExhausted)
}

func TestCrawlCancellation(t *testing.T) {
	f := newFakeAPI()
	addPR(f, 1, "alice", now.AddDate(0, 0, -1), nil)
	f.detailErr[1] = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCrawler(f, 2)
	_, err := c.Crawl(ctx, "alpha", now.AddDate(0, 0, -7), now)
	require.Error(t, err)
}

func TestCrawlCountersMatchRecomputation(t *testing.T) {
	f := newFakeAPI()
	addPR(f, 1, "alice", now.AddDate(0, 0, -1), mergedAt(now))
	addPR(f, 2, "bob", now.AddDate(0, 0, -6), nil)
	f.files[1] = models.FileStats{Files: []string{"a.go"}, FileCount: 1, Additions: 10, Deletions: 2}
	f.files[2] = models.FileStats{Files: []string{"b.go", "c.go"}, FileCount: 2, Additions: 5, Deletions: 7}
	f.reviews[2] = []models.ReviewEvent{
		{Reviewer: "carol", State: "CHANGES_REQUESTED", SubmittedAt: now.AddDate(0, 0, -5)},
	}

	c := newTestCrawler(f, 2)
	bundle, err := c.Crawl(context.Background(), "alpha", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)

	var recomputed models.RepoCounters
	for _, pr := range bundle.PullRequests {
		recomputed.Add(pr, pr.Health == review.Healthy)
	}
	require.Equal(t, recomputed, bundle.Counters)
	require.Equal(t, 15, bundle.Counters.TotalAdditions)
	require.Equal(t, 9, bundle.Counters.TotalDeletions)
	require.Equal(t, 1, bundle.Counters.TotalChangeRequests)
}

func TestCrawlApproverTeamsAndInvariants(t *testing.T) {
	f := newFakeAPI()
	addPR(f, 1, "alice", now.AddDate(0, 0, -3), mergedAt(now.AddDate(0, 0, -1)))
	f.reviews[1] = []models.ReviewEvent{
		{Reviewer: "bob", State: "CHANGES_REQUESTED", SubmittedAt: now.AddDate(0, 0, -2)},
		{Reviewer: "carol", State: "APPROVED", Body: "fine now", SubmittedAt: now.AddDate(0, 0, -1)},
	}
	f.teams = []models.Team{
		{ID: 1, Slug: "platform", Name: "Platform"},
		{ID: 2, Slug: "frontend", Name: "Frontend"},
	}
	f.orgMembers["carol"] = true
	f.teamMembers["platform"] = map[string]bool{"carol": true}

	c := newTestCrawler(f, 2)
	bundle, err := c.Crawl(context.Background(), "alpha", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)

	pr := bundle.PullRequests[0]
	require.Equal(t, "carol", pr.Approver)
	require.Equal(t, "fine now", pr.ApproverComment)
	require.Equal(t, []string{"Platform"}, pr.ApproverTeams)
	require.Equal(t, review.StatusAllResolved, pr.ChangeRequestStatus)
	require.Equal(t, pr.ChangeRequestCount, pr.PendingChanges+pr.ResolvedChanges)
}

func TestMembershipLookupCachedPerLogin(t *testing.T) {
	f := newFakeAPI()
	approved := []models.ReviewEvent{
		{Reviewer: "carol", State: "APPROVED", SubmittedAt: now.AddDate(0, 0, -1)},
	}
	addPR(f, 1, "alice", now.AddDate(0, 0, -2), nil)
	addPR(f, 2, "bob", now.AddDate(0, 0, -2), nil)
	f.reviews[1] = approved
	f.reviews[2] = approved
	f.teams = []models.Team{{ID: 1, Slug: "platform", Name: "Platform"}}
	f.orgMembers["carol"] = true
	f.teamMembers["platform"] = map[string]bool{"carol": true}

	c := newTestCrawler(f, 2)
	_, err := c.Crawl(context.Background(), "alpha", now.AddDate(0, 0, -7), now)
	require.NoError(t, err)

	require.Equal(t, 1, f.orgMemberCalls, "membership resolved once per login")
	require.Equal(t, 1, f.orgTeamsCalls, "team list loaded once per run")
	require.Equal(t, 1, f.teamMemberCalls)
}

func TestDurationUsesMergeTimeWhenMerged(t *testing.T) {
	f := newFakeAPI()
	created := now.AddDate(0, 0, -10)
	addPR(f, 1, "alice", created, mergedAt(created.AddDate(0, 0, 2)))

	c := newTestCrawler(f, 2)
	bundle, err := c.Crawl(context.Background(), "alpha", now.AddDate(0, 0, -30), now)
	require.NoError(t, err)

	// Merged after 2 days: duration counts to the merge, not to now.
	require.Equal(t, 2, bundle.PullRequests[0].DurationDays)
	require.Equal(t, review.Healthy, bundle.PullRequests[0].Health)
}
