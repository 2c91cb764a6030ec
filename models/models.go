package models

import "time"

// PRSummary is the shape returned by the pull request list and detail
// endpoints, before enrichment.
type PRSummary struct {
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	State        string     `json:"state"`
	TargetBranch string     `json:"target_branch"`
	CreatedAt    time.Time  `json:"created_at"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	Labels       []string   `json:"labels"`
}

// Merged reports whether the pull request has been merged.
func (p PRSummary) Merged() bool {
	return p.MergedAt != nil
}

// FileStats aggregates the file-diff pages of one pull request.
type FileStats struct {
	Files     []string `json:"files"`
	FileCount int      `json:"file_count"`
	Additions int      `json:"additions"`
	Deletions int      `json:"deletions"`
}

// ReviewEvent is one review submission, kept in API return order.
type ReviewEvent struct {
	Reviewer    string    `json:"reviewer"`
	State       string    `json:"state"` // APPROVED, CHANGES_REQUESTED, COMMENTED, ...
	Body        string    `json:"body"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// CommitEntry is one commit belonging to a pull request.
type CommitEntry struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
}

// Team is an organization team, used for approver membership lookups.
type Team struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// PullRequestRecord is one fully enriched pull request within the query
// window. Constructed once during a crawl and immutable afterward.
type PullRequestRecord struct {
	Repository          string        `json:"repository"`
	Number              int           `json:"number"`
	Title               string        `json:"title"`
	Author              string        `json:"author"`
	State               string        `json:"state"`
	TargetBranch        string        `json:"target_branch"`
	CreatedAt           time.Time     `json:"created_at"`
	MergedAt            *time.Time    `json:"merged_at,omitempty"`
	DurationDays        int           `json:"duration_days"`
	Health              string        `json:"health"`
	Approver            string        `json:"approver,omitempty"`
	ApproverComment     string        `json:"approver_comment"`
	ApproverTeams       []string      `json:"approver_teams"`
	ChangeRequestCount  int           `json:"change_request_count"`
	PendingChanges      int           `json:"pending_changes"`
	ResolvedChanges     int           `json:"resolved_changes"`
	ChangeRequestStatus string        `json:"change_request_status"`
	Labels              []string      `json:"labels"`
	FileCount           int           `json:"file_count"`
	Additions           int           `json:"additions"`
	Deletions           int           `json:"deletions"`
	ChangedFiles        []string      `json:"changed_files"`
	Commits             []CommitEntry `json:"commits"`
	Reviews             []ReviewEvent `json:"reviews"`
}

// RepoCounters is the running fold over a bundle's PR list. It must always
// equal a recomputation from the list; a drift is a defect.
type RepoCounters struct {
	TotalPRs            int `json:"total_prs"`
	MergedPRs           int `json:"merged_prs"`
	HealthyPRs          int `json:"healthy_prs"`
	UnhealthyPRs        int `json:"unhealthy_prs"`
	TotalAdditions      int `json:"total_additions"`
	TotalDeletions      int `json:"total_deletions"`
	TotalChangeRequests int `json:"total_change_requests"`
}

// Add folds one enriched record into the counters.
func (c *RepoCounters) Add(pr PullRequestRecord, healthy bool) {
	c.TotalPRs++
	if pr.MergedAt != nil {
		c.MergedPRs++
	}
	if healthy {
		c.HealthyPRs++
	} else {
		c.UnhealthyPRs++
	}
	c.TotalAdditions += pr.Additions
	c.TotalDeletions += pr.Deletions
	c.TotalChangeRequests += pr.ChangeRequestCount
}

// RepositoryMetricsBundle is the per-repository aggregate of one crawl pass.
type RepositoryMetricsBundle struct {
	Repository   string              `json:"repository"`
	PullRequests []PullRequestRecord `json:"pull_requests"`
	Counters     RepoCounters        `json:"counters"`
}
