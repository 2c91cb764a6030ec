// Package report renders the aggregated row collections to xlsx workbooks.
// It consumes flat rows only and knows nothing about the crawl.
package report

import (
	"fmt"
	"path/filepath"

	"github.com/devmetrics/gh-metrics-reporter/models"
	"github.com/devmetrics/gh-metrics-reporter/review"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Emitter writes the three metrics workbooks into one output directory.
type Emitter struct {
	outputDir string
	log       *zap.SugaredLogger
}

func NewEmitter(outputDir string, log *zap.SugaredLogger) *Emitter {
	return &Emitter{outputDir: outputDir, log: log}
}

// WriteAll renders all three reports. It is called only after the whole
// crawl has completed: either a full run produces output or none does.
func (e *Emitter) WriteAll(activity []models.ActivityRow, contributors []models.ContributorRow, commits []models.CommitRow) error {
	if err := e.writeActivity(activity); err != nil {
		return fmt.Errorf("writing activity report: %w", err)
	}
	if err := e.writeContributors(contributors); err != nil {
		return fmt.Errorf("writing contributor report: %w", err)
	}
	if err := e.writeCommits(commits); err != nil {
		return fmt.Errorf("writing commit report: %w", err)
	}
	return nil
}

func (e *Emitter) writeActivity(rows []models.ActivityRow) error {
	headers := []string{
		"Repository", "PR Number", "Title", "Author", "Status", "Target Branch",
		"PR Health", "Health Threshold", "Days Open", "Created Date", "Merged Date",
		"Approver", "Approver Teams", "Approver Comment", "Change Requests",
		"Changes Status", "Pending Changes", "Resolved Changes", "Files Changed",
		"Lines Added", "Lines Deleted", "Changed Files", "Labels", "Commit Count",
	}
	cells := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []interface{}{
			r.Repository, r.Number, r.Title, r.Author, r.Status, r.TargetBranch,
			healthBadge(r.Health), r.HealthThreshold, r.DaysOpen, r.CreatedDate, r.MergedDate,
			r.Approver, r.ApproverTeams, r.ApproverComment, r.ChangeRequests,
			r.ChangesStatus, r.PendingChanges, r.ResolvedChanges, r.FilesChanged,
			r.LinesAdded, r.LinesDeleted, r.ChangedFiles, r.Labels, r.CommitCount,
		})
	}
	return e.writeSheet("pr_activity_report.xlsx", "PR Activity", headers, cells)
}

func (e *Emitter) writeContributors(rows []models.ContributorRow) error {
	headers := []string{
		"Repository", "Contributor", "PRs Created", "PRs Merged", "Healthy PRs",
		"Unhealthy PRs", "Health Ratio", "Avg Days to Merge", "Lines Added",
		"Lines Deleted", "Total Commits", "Approvals Given", "Change Requests Received",
	}
	cells := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []interface{}{
			r.Repository, r.Contributor, r.PRsCreated, r.PRsMerged, r.HealthyPRs,
			r.UnhealthyPRs, r.HealthRatio, r.AvgDaysToMerge, r.LinesAdded,
			r.LinesDeleted, r.TotalCommits, r.ApprovalsGiven, r.ChangeRequestsReceived,
		})
	}
	return e.writeSheet("contributor_report.xlsx", "Contributor Metrics", headers, cells)
}

func (e *Emitter) writeCommits(rows []models.CommitRow) error {
	headers := []string{
		"Repository", "PR Number", "PR Title", "PR Author", "Target Branch",
		"PR Days Open", "PR Health", "Health Threshold", "Commit SHA",
		"Commit Message", "Author", "Commit Date", "PR Status", "Merged Date",
		"Files Changed", "Lines Added", "Lines Deleted", "Change Requests",
	}
	cells := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []interface{}{
			r.Repository, r.PRNumber, r.PRTitle, r.PRAuthor, r.TargetBranch,
			r.PRDaysOpen, healthBadge(r.PRHealth), r.HealthThreshold, r.SHA,
			r.Message, r.Author, r.CommitDate, r.PRStatus, r.MergedDate,
			r.FilesChanged, r.LinesAdded, r.LinesDeleted, r.ChangeRequests,
		})
	}
	return e.writeSheet("commit_report.xlsx", "Commit Details", headers, cells)
}

// writeSheet writes one workbook with a styled, frozen header row.
func (e *Emitter) writeSheet(filename, sheet string, headers []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headerCells := make([]interface{}, len(headers))
	for i, h := range headers {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D3D3D3"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	path := filepath.Join(e.outputDir, filename)
	if err := f.SaveAs(path); err != nil {
		return err
	}
	e.log.Infow("report saved", "path", path, "rows", len(rows))
	return nil
}

func healthBadge(health string) string {
	if health == review.Unhealthy {
		return "❌ " + health
	}
	return "✅ " + health
}
