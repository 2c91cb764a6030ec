package github

import (
	"context"
	"strings"

	"github.com/devmetrics/gh-metrics-reporter/models"
	"github.com/google/go-github/v56/github"
)

// ListRepositories fetches the names of all repositories in the organization.
func (c *Client) ListRepositories(ctx context.Context) ([]string, error) {
	repos, err := collectPages(ctx, c, c.org, "repositories",
		func(ctx context.Context, page int) ([]*github.Repository, *github.Response, error) {
			opts := &github.RepositoryListByOrgOptions{
				Type:        "all",
				ListOptions: github.ListOptions{PerPage: perPage, Page: page},
			}
			return c.gh.Repositories.ListByOrg(ctx, c.org, opts)
		})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(repos))
	for _, r := range repos {
		names = append(names, r.GetName())
	}
	return names, nil
}

// ListPullRequests fetches all pull requests of a repository, newest first.
// Window filtering is the crawler's concern.
func (c *Client) ListPullRequests(ctx context.Context, repo string) ([]models.PRSummary, error) {
	prs, err := collectPages(ctx, c, c.fullName(repo), "pulls",
		func(ctx context.Context, page int) ([]*github.PullRequest, *github.Response, error) {
			opts := &github.PullRequestListOptions{
				State:       "all",
				Sort:        "created",
				Direction:   "desc",
				ListOptions: github.ListOptions{PerPage: perPage, Page: page},
			}
			return c.gh.PullRequests.List(ctx, c.org, repo, opts)
		})
	if err != nil {
		return nil, err
	}

	out := make([]models.PRSummary, 0, len(prs))
	for _, pr := range prs {
		out = append(out, convertPR(pr))
	}
	return out, nil
}

// GetPullRequest fetches the detail view of one pull request, which carries
// the target branch missing from the list response.
func (c *Client) GetPullRequest(ctx context.Context, repo string, number int) (models.PRSummary, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.PRSummary{}, err
	}
	pr, resp, err := c.gh.PullRequests.Get(ctx, c.org, repo, number)
	c.track(resp)
	if err != nil {
		return models.PRSummary{}, wrapErr(err, c.fullName(repo), "pull detail")
	}
	return convertPR(pr), nil
}

// ListFiles fetches the file-diff pages of a pull request and folds them
// into per-PR churn totals.
func (c *Client) ListFiles(ctx context.Context, repo string, number int) (models.FileStats, error) {
	files, err := collectPages(ctx, c, c.fullName(repo), "pull files",
		func(ctx context.Context, page int) ([]*github.CommitFile, *github.Response, error) {
			opts := &github.ListOptions{PerPage: perPage, Page: page}
			return c.gh.PullRequests.ListFiles(ctx, c.org, repo, number, opts)
		})
	if err != nil {
		return models.FileStats{}, err
	}

	stats := models.FileStats{FileCount: len(files)}
	for _, f := range files {
		stats.Files = append(stats.Files, f.GetFilename())
		stats.Additions += f.GetAdditions()
		stats.Deletions += f.GetDeletions()
	}
	return stats, nil
}

// ListReviews fetches the review submissions of a pull request in API
// return order. That order is load-bearing: approver selection is
// first-APPROVED-wins by return order, not by timestamp.
func (c *Client) ListReviews(ctx context.Context, repo string, number int) ([]models.ReviewEvent, error) {
	reviews, err := collectPages(ctx, c, c.fullName(repo), "pull reviews",
		func(ctx context.Context, page int) ([]*github.PullRequestReview, *github.Response, error) {
			opts := &github.ListOptions{PerPage: perPage, Page: page}
			return c.gh.PullRequests.ListReviews(ctx, c.org, repo, number, opts)
		})
	if err != nil {
		return nil, err
	}

	out := make([]models.ReviewEvent, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, models.ReviewEvent{
			Reviewer:    r.GetUser().GetLogin(),
			State:       r.GetState(),
			Body:        r.GetBody(),
			SubmittedAt: r.GetSubmittedAt().Time,
		})
	}
	return out, nil
}

// ListCommits fetches the commits of a pull request.
func (c *Client) ListCommits(ctx context.Context, repo string, number int) ([]models.CommitEntry, error) {
	commits, err := collectPages(ctx, c, c.fullName(repo), "pull commits",
		func(ctx context.Context, page int) ([]*github.RepositoryCommit, *github.Response, error) {
			opts := &github.ListOptions{PerPage: perPage, Page: page}
			return c.gh.PullRequests.ListCommits(ctx, c.org, repo, number, opts)
		})
	if err != nil {
		return nil, err
	}

	out := make([]models.CommitEntry, 0, len(commits))
	for _, commit := range commits {
		entry := models.CommitEntry{
			SHA:     commit.GetSHA(),
			Message: commit.GetCommit().GetMessage(),
		}
		if author := commit.GetCommit().GetAuthor(); author != nil {
			entry.Author = author.GetName()
			entry.Date = author.GetDate().Time
		}
		out = append(out, entry)
	}
	return out, nil
}

// OrgTeams fetches all teams of the organization.
func (c *Client) OrgTeams(ctx context.Context) ([]models.Team, error) {
	teams, err := collectPages(ctx, c, c.org, "teams",
		func(ctx context.Context, page int) ([]*github.Team, *github.Response, error) {
			opts := &github.ListOptions{PerPage: perPage, Page: page}
			return c.gh.Teams.ListTeams(ctx, c.org, opts)
		})
	if err != nil {
		return nil, err
	}

	out := make([]models.Team, 0, len(teams))
	for _, t := range teams {
		out = append(out, models.Team{ID: t.GetID(), Slug: t.GetSlug(), Name: t.GetName()})
	}
	return out, nil
}

// OrgMember reports whether the login holds a membership in the organization.
func (c *Client) OrgMember(ctx context.Context, login string) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}
	_, resp, err := c.gh.Organizations.GetOrgMembership(ctx, login, c.org)
	c.track(resp)
	if err != nil {
		if isRateLimited(err) || ctx.Err() != nil {
			return false, wrapErr(err, c.org, "org membership")
		}
		// 404 means not a member; treated the same as any lookup failure.
		return false, nil
	}
	return true, nil
}

// IsTeamMember reports whether the login is on the given team.
func (c *Client) IsTeamMember(ctx context.Context, teamSlug, login string) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}
	_, resp, err := c.gh.Teams.GetTeamMembershipBySlug(ctx, c.org, teamSlug, login)
	c.track(resp)
	if err != nil {
		if isRateLimited(err) || ctx.Err() != nil {
			return false, wrapErr(err, c.org, "team membership")
		}
		return false, nil
	}
	return true, nil
}

func (c *Client) fullName(repo string) string {
	if strings.Contains(repo, "/") {
		return repo
	}
	return c.org + "/" + repo
}

func convertPR(pr *github.PullRequest) models.PRSummary {
	out := models.PRSummary{
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Author:       pr.GetUser().GetLogin(),
		State:        pr.GetState(),
		TargetBranch: pr.GetBase().GetRef(),
		CreatedAt:    pr.GetCreatedAt().Time,
	}
	if pr.MergedAt != nil {
		t := pr.MergedAt.Time
		out.MergedAt = &t
	}
	for _, label := range pr.Labels {
		out.Labels = append(out.Labels, label.GetName())
	}
	return out
}
