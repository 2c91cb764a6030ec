package models

// The row types are flat projections over crawl bundles: named fields with
// scalar or short-string values only, suitable for direct tabular rendering.

// ActivityRow is one pull request across all crawled repositories.
type ActivityRow struct {
	Repository      string `json:"repository"`
	Number          int    `json:"pr_number"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Status          string `json:"status"`
	TargetBranch    string `json:"target_branch"`
	Health          string `json:"pr_health"`
	HealthThreshold string `json:"health_threshold"`
	DaysOpen        int    `json:"days_open"`
	CreatedDate     string `json:"created_date"`
	MergedDate      string `json:"merged_date"`
	Approver        string `json:"approver"`
	ApproverTeams   string `json:"approver_teams"`
	ApproverComment string `json:"approver_comment"`
	ChangeRequests  int    `json:"change_requests"`
	ChangesStatus   string `json:"changes_status"`
	PendingChanges  int    `json:"pending_changes"`
	ResolvedChanges int    `json:"resolved_changes"`
	FilesChanged    int    `json:"files_changed"`
	LinesAdded      int    `json:"lines_added"`
	LinesDeleted    int    `json:"lines_deleted"`
	ChangedFiles    string `json:"changed_files"`
	Labels          string `json:"labels"`
	CommitCount     int    `json:"commit_count"`
}

// ContributorRow is one (repository, login) pair that appears as PR author
// or as a reviewer. HealthRatio is reported as "healthy/created"; turning it
// into a percentage is left to the consuming report layer.
type ContributorRow struct {
	Repository             string  `json:"repository"`
	Contributor            string  `json:"contributor"`
	PRsCreated             int     `json:"prs_created"`
	PRsMerged              int     `json:"prs_merged"`
	HealthyPRs             int     `json:"healthy_prs"`
	UnhealthyPRs           int     `json:"unhealthy_prs"`
	HealthRatio            string  `json:"health_ratio"`
	AvgDaysToMerge         float64 `json:"avg_days_to_merge"`
	LinesAdded             int     `json:"lines_added"`
	LinesDeleted           int     `json:"lines_deleted"`
	TotalCommits           int     `json:"total_commits"`
	ApprovalsGiven         int     `json:"approvals_given"`
	ChangeRequestsReceived int     `json:"change_requests_received"`
}

// CommitRow is one commit of a retained PR, with the parent PR's health,
// duration and churn fields denormalized onto it.
type CommitRow struct {
	Repository      string `json:"repository"`
	PRNumber        int    `json:"pr_number"`
	PRTitle         string `json:"pr_title"`
	PRAuthor        string `json:"pr_author"`
	TargetBranch    string `json:"target_branch"`
	PRDaysOpen      int    `json:"pr_days_open"`
	PRHealth        string `json:"pr_health"`
	HealthThreshold string `json:"health_threshold"`
	SHA             string `json:"commit_sha"`
	Message         string `json:"commit_message"`
	Author          string `json:"author"`
	CommitDate      string `json:"commit_date"`
	PRStatus        string `json:"pr_status"`
	MergedDate      string `json:"merged_date"`
	FilesChanged    int    `json:"files_changed"`
	LinesAdded      int    `json:"lines_added"`
	LinesDeleted    int    `json:"lines_deleted"`
	ChangeRequests  int    `json:"change_requests"`
}

// RunSummary is the cross-repository status report for one crawl run.
type RunSummary struct {
	Repositories        int            `json:"repositories"`
	SkippedRepositories int            `json:"skipped_repositories"`
	TotalPRs            int            `json:"total_prs"`
	MergedPRs           int            `json:"merged_prs"`
	HealthyPRs          int            `json:"healthy_prs"`
	UnhealthyPRs        int            `json:"unhealthy_prs"`
	TotalChangeRequests int            `json:"total_change_requests"`
	TotalAdditions      int            `json:"total_additions"`
	TotalDeletions      int            `json:"total_deletions"`
	PRsByRepo           map[string]int `json:"prs_by_repo"`
	PRsByAuthor         map[string]int `json:"prs_by_author"`
}
