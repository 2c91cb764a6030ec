// Package aggregate turns per-repository crawl bundles into the three flat
// row collections consumed by the report layer, plus the per-run summary.
// All projections are pure and independent of each other.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/devmetrics/gh-metrics-reporter/models"
	"github.com/devmetrics/gh-metrics-reporter/review"
)

const (
	maxCommentLen = 100
	maxFileNames  = 5
)

// Activity produces one row per PR across all repositories, in repository
// order with each bundle's PR order preserved.
func Activity(bundles map[string]models.RepositoryMetricsBundle, thresholdDays int) []models.ActivityRow {
	threshold := fmt.Sprintf("%d days", thresholdDays)

	var rows []models.ActivityRow
	for _, repo := range sortedRepos(bundles) {
		for _, pr := range bundles[repo].PullRequests {
			rows = append(rows, models.ActivityRow{
				Repository:      repo,
				Number:          pr.Number,
				Title:           pr.Title,
				Author:          pr.Author,
				Status:          capitalize(pr.State),
				TargetBranch:    pr.TargetBranch,
				Health:          pr.Health,
				HealthThreshold: threshold,
				DaysOpen:        pr.DurationDays,
				CreatedDate:     pr.CreatedAt.Format("2006-01-02"),
				MergedDate:      mergedDate(pr),
				Approver:        pr.Approver,
				ApproverTeams:   strings.Join(pr.ApproverTeams, ", "),
				ApproverComment: truncateComment(pr.ApproverComment),
				ChangeRequests:  pr.ChangeRequestCount,
				ChangesStatus:   pr.ChangeRequestStatus,
				PendingChanges:  pr.PendingChanges,
				ResolvedChanges: pr.ResolvedChanges,
				FilesChanged:    pr.FileCount,
				LinesAdded:      pr.Additions,
				LinesDeleted:    pr.Deletions,
				ChangedFiles:    truncateFiles(pr.ChangedFiles),
				Labels:          strings.Join(pr.Labels, ", "),
				CommitCount:     len(pr.Commits),
			})
		}
	}
	return rows
}

// contributorStats is the mutable accumulator for one (repository, login)
// pair; created lazily on first appearance and discarded once its row is
// emitted.
type contributorStats struct {
	prsCreated      int
	prsMerged       int
	healthyPRs      int
	unhealthyPRs    int
	additions       int
	deletions       int
	commits         int
	approvalsGiven  int
	changesReceived int
	mergeDurations  []int
}

// Contributors produces one row per (repository, login) pair appearing as a
// PR author or as any approving reviewer. A login can earn a row purely from
// reviewing, with zero authored PRs.
func Contributors(bundles map[string]models.RepositoryMetricsBundle) []models.ContributorRow {
	var rows []models.ContributorRow
	for _, repo := range sortedRepos(bundles) {
		stats := make(map[string]*contributorStats)
		lookup := func(login string) *contributorStats {
			s, ok := stats[login]
			if !ok {
				s = &contributorStats{}
				stats[login] = s
			}
			return s
		}

		for _, pr := range bundles[repo].PullRequests {
			author := lookup(pr.Author)
			author.prsCreated++
			author.commits += len(pr.Commits)
			author.changesReceived += pr.ChangeRequestCount
			author.additions += pr.Additions
			author.deletions += pr.Deletions
			if pr.Health == review.Unhealthy {
				author.unhealthyPRs++
			} else {
				author.healthyPRs++
			}
			if pr.MergedAt != nil {
				author.prsMerged++
				author.mergeDurations = append(author.mergeDurations, pr.DurationDays)
			}

			for _, ev := range pr.Reviews {
				if strings.EqualFold(ev.State, "APPROVED") && ev.Reviewer != "" {
					lookup(ev.Reviewer).approvalsGiven++
				}
			}
		}

		for _, login := range sortedLogins(stats) {
			s := stats[login]
			rows = append(rows, models.ContributorRow{
				Repository:             repo,
				Contributor:            login,
				PRsCreated:             s.prsCreated,
				PRsMerged:              s.prsMerged,
				HealthyPRs:             s.healthyPRs,
				UnhealthyPRs:           s.unhealthyPRs,
				HealthRatio:            fmt.Sprintf("%d/%d", s.healthyPRs, s.prsCreated),
				AvgDaysToMerge:         avgDays(s.mergeDurations),
				LinesAdded:             s.additions,
				LinesDeleted:           s.deletions,
				TotalCommits:           s.commits,
				ApprovalsGiven:         s.approvalsGiven,
				ChangeRequestsReceived: s.changesReceived,
			})
		}
	}
	return rows
}

// Commits produces one row per commit of every retained PR, with the parent
// PR's health, duration and churn fields denormalized onto each row.
func Commits(bundles map[string]models.RepositoryMetricsBundle, thresholdDays int) []models.CommitRow {
	threshold := fmt.Sprintf("%d days", thresholdDays)

	var rows []models.CommitRow
	for _, repo := range sortedRepos(bundles) {
		for _, pr := range bundles[repo].PullRequests {
			for _, commit := range pr.Commits {
				rows = append(rows, models.CommitRow{
					Repository:      repo,
					PRNumber:        pr.Number,
					PRTitle:         pr.Title,
					PRAuthor:        pr.Author,
					TargetBranch:    pr.TargetBranch,
					PRDaysOpen:      pr.DurationDays,
					PRHealth:        pr.Health,
					HealthThreshold: threshold,
					SHA:             commit.SHA,
					Message:         firstLine(commit.Message),
					Author:          commit.Author,
					CommitDate:      commitDate(commit),
					PRStatus:        capitalize(pr.State),
					MergedDate:      mergedDate(pr),
					FilesChanged:    pr.FileCount,
					LinesAdded:      pr.Additions,
					LinesDeleted:    pr.Deletions,
					ChangeRequests:  pr.ChangeRequestCount,
				})
			}
		}
	}
	return rows
}

// Summarize folds all bundle counters into the per-run summary.
func Summarize(bundles map[string]models.RepositoryMetricsBundle, skipped int) models.RunSummary {
	summary := models.RunSummary{
		Repositories:        len(bundles),
		SkippedRepositories: skipped,
		PRsByRepo:           make(map[string]int),
		PRsByAuthor:         make(map[string]int),
	}
	for repo, bundle := range bundles {
		summary.TotalPRs += bundle.Counters.TotalPRs
		summary.MergedPRs += bundle.Counters.MergedPRs
		summary.HealthyPRs += bundle.Counters.HealthyPRs
		summary.UnhealthyPRs += bundle.Counters.UnhealthyPRs
		summary.TotalChangeRequests += bundle.Counters.TotalChangeRequests
		summary.TotalAdditions += bundle.Counters.TotalAdditions
		summary.TotalDeletions += bundle.Counters.TotalDeletions
		summary.PRsByRepo[repo] = bundle.Counters.TotalPRs
		for _, pr := range bundle.PullRequests {
			summary.PRsByAuthor[pr.Author]++
		}
	}
	return summary
}

func sortedRepos(bundles map[string]models.RepositoryMetricsBundle) []string {
	repos := make([]string, 0, len(bundles))
	for repo := range bundles {
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	return repos
}

func sortedLogins(stats map[string]*contributorStats) []string {
	logins := make([]string, 0, len(stats))
	for login := range stats {
		logins = append(logins, login)
	}
	sort.Strings(logins)
	return logins
}

// truncateComment caps at maxCommentLen characters, not bytes, so a
// multibyte comment is never cut mid-rune.
func truncateComment(s string) string {
	if utf8.RuneCountInString(s) <= maxCommentLen {
		return s
	}
	return string([]rune(s)[:maxCommentLen]) + "..."
}

func truncateFiles(files []string) string {
	if len(files) > maxFileNames {
		return strings.Join(files[:maxFileNames], ", ") + "..."
	}
	return strings.Join(files, ", ")
}

func avgDays(durations []int) float64 {
	if len(durations) == 0 {
		return 0
	}
	sum := 0
	for _, d := range durations {
		sum += d
	}
	avg := float64(sum) / float64(len(durations))
	return math.Round(avg*10) / 10
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func mergedDate(pr models.PullRequestRecord) string {
	if pr.MergedAt == nil {
		return ""
	}
	return pr.MergedAt.Format("2006-01-02")
}

func commitDate(c models.CommitEntry) string {
	if c.Date.IsZero() {
		return ""
	}
	return c.Date.Format("2006-01-02")
}
