// Package review derives approver identity and change-request resolution
// from the ordered review list of one pull request. It is pure: no I/O,
// no clock.
package review

import (
	"strings"
	"time"

	"github.com/devmetrics/gh-metrics-reporter/models"
)

// Health labels.
const (
	Healthy   = "Healthy"
	Unhealthy = "Unhealthy"
)

// Change-request resolution statuses.
const (
	StatusNone        = "No changes requested"
	StatusPending     = "Changes pending"
	StatusResolved    = "Changes resolved"
	StatusAllResolved = "All changes resolved"
)

// NoComment is the sentinel used when the approver left no review body.
const NoComment = "Approver not added comment"

const (
	stateApproved         = "APPROVED"
	stateChangesRequested = "CHANGES_REQUESTED"
)

// Outcome is the derived review state of one pull request.
//
// Resolution is all-or-nothing: any approval later than the latest change
// request resolves every prior request, and merging resolves everything
// regardless of timestamps. That coarse granularity is deliberate; exactly
// one of Pending/Resolved is nonzero when ChangeRequests > 0, and
// Pending+Resolved always equals ChangeRequests.
type Outcome struct {
	Approver        string
	ApproverComment string
	ChangeRequests  int
	Pending         int
	Resolved        int
	Status          string
}

// Analyze scans review events strictly in API return order. The first
// APPROVED event wins approver identity; ties are broken by return order,
// never re-sorted by timestamp.
func Analyze(events []models.ReviewEvent, merged bool) Outcome {
	out := Outcome{
		ApproverComment: NoComment,
		Status:          StatusNone,
	}

	var lastRequest time.Time
	for _, ev := range events {
		switch strings.ToUpper(ev.State) {
		case stateApproved:
			if out.Approver == "" {
				out.Approver = ev.Reviewer
				if body := strings.TrimSpace(ev.Body); body != "" {
					out.ApproverComment = body
				}
			}
		case stateChangesRequested:
			out.ChangeRequests++
			if ev.SubmittedAt.After(lastRequest) {
				lastRequest = ev.SubmittedAt
			}
		}
	}

	if out.ChangeRequests == 0 {
		return out
	}

	if merged {
		// Merging is implicit resolution, whatever the review timestamps say.
		out.Status = StatusAllResolved
		out.Resolved = out.ChangeRequests
		return out
	}

	for _, ev := range events {
		if strings.ToUpper(ev.State) == stateApproved && ev.SubmittedAt.After(lastRequest) {
			out.Status = StatusResolved
			out.Resolved = out.ChangeRequests
			return out
		}
	}

	out.Status = StatusPending
	out.Pending = out.ChangeRequests
	return out
}

// Health classifies a PR by its open/resolution duration against the
// configured threshold, uniformly for open and closed PRs. The boundary
// case durationDays == thresholdDays is Healthy.
func Health(durationDays, thresholdDays int) string {
	if durationDays > thresholdDays {
		return Unhealthy
	}
	return Healthy
}
