package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/devmetrics/gh-metrics-reporter/aggregate"
	"github.com/devmetrics/gh-metrics-reporter/crawler"
	"github.com/devmetrics/gh-metrics-reporter/github"
	"github.com/devmetrics/gh-metrics-reporter/models"
	"github.com/devmetrics/gh-metrics-reporter/report"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	orgName     string
	startDate   string
	endDate     string
	reposFile   string
	tokenFile   string
	outputDir   string
	prThreshold int
	verbose     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run metrics collection and generate the reports",
	Long: `Run metrics collection for one organization over a date window.

Examples:
  gh-metrics-reporter run --org acme --start-date 2025-01-01 --end-date 2025-03-31
  gh-metrics-reporter run --org acme --start-date 2025-01-01 --end-date 2025-03-31 \
      --repos-file repos.txt --pr-threshold 3 -O reports

Repositories come from --repos-file (one name per line) when given,
otherwise all repositories of the organization are crawled. The token is
read from --token-file or the GITHUB_TOKEN environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&orgName, "org", "o", "", "GitHub organization/owner name")
	runCmd.Flags().StringVar(&startDate, "start-date", "", "Start date in YYYY-MM-DD format")
	runCmd.Flags().StringVar(&endDate, "end-date", "", "End date in YYYY-MM-DD format")
	runCmd.Flags().StringVarP(&reposFile, "repos-file", "i", "", "File with repository names, one per line (optional)")
	runCmd.Flags().StringVar(&tokenFile, "token-file", "", "File containing the GitHub token (optional)")
	runCmd.Flags().StringVarP(&outputDir, "output-dir", "O", "github_reports", "Output directory for the reports")
	runCmd.Flags().IntVar(&prThreshold, "pr-threshold", 2, "PR health threshold in days")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	_ = runCmd.MarkFlagRequired("org")
	_ = runCmd.MarkFlagRequired("start-date")
	_ = runCmd.MarkFlagRequired("end-date")
}

func run(ctx context.Context) error {
	log, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	start, end, err := parseWindow(startDate, endDate)
	if err != nil {
		return err
	}
	log.Infow("date range", "start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"),
		"pr_threshold_days", prThreshold)

	token, err := resolveToken(tokenFile)
	if err != nil {
		return err
	}

	client := github.NewClient(token, orgName, log)
	if err := client.ValidateToken(ctx); err != nil {
		return fmt.Errorf("github authentication failed: %w", err)
	}

	repos, err := resolveRepos(ctx, client, log)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return fmt.Errorf("no repositories found for %s", orgName)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	c := crawler.New(client, prThreshold, log)
	bundles := make(map[string]models.RepositoryMetricsBundle)
	skipped := 0

	for i, repo := range repos {
		pterm.Info.Printf("Processing [%d/%d]: %s\n", i+1, len(repos), repo)

		bundle, err := c.Crawl(ctx, repo, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("crawl interrupted: %w", ctx.Err())
			}
			if errors.Is(err, github.ErrQuotaExhausted) {
				return err
			}
			log.Errorw("skipping repository", "repo", repo, "error", err)
			skipped++
			continue
		}

		bundles[bundle.Repository] = bundle
		log.Infow("repository crawled",
			"repo", bundle.Repository,
			"prs", bundle.Counters.TotalPRs,
			"healthy", bundle.Counters.HealthyPRs,
			"unhealthy", bundle.Counters.UnhealthyPRs,
			"change_requests", bundle.Counters.TotalChangeRequests,
			"additions", bundle.Counters.TotalAdditions,
			"deletions", bundle.Counters.TotalDeletions,
			"api_calls", client.APICalls(),
			"quota_remaining", client.RemainingQuota())
	}

	if len(bundles) == 0 {
		return fmt.Errorf("no metrics collected, reports cannot be generated")
	}

	// A cancelled run must not emit partial reports.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl interrupted: %w", err)
	}

	activity := aggregate.Activity(bundles, prThreshold)
	contributors := aggregate.Contributors(bundles)
	commits := aggregate.Commits(bundles, prThreshold)
	summary := aggregate.Summarize(bundles, skipped)

	emitter := report.NewEmitter(outputDir, log)
	if err := emitter.WriteAll(activity, contributors, commits); err != nil {
		return err
	}

	printSummary(summary, client)
	return nil
}

// printSummary is the per-run status report, printed regardless of log
// verbosity.
func printSummary(s models.RunSummary, client *github.Client) {
	pterm.DefaultSection.Println("Run summary")
	pterm.Printf("Processed %d PRs across %d repositories (%d skipped)\n",
		s.TotalPRs, s.Repositories, s.SkippedRepositories)
	pterm.Printf("Health: %d healthy, %d unhealthy; %d merged\n",
		s.HealthyPRs, s.UnhealthyPRs, s.MergedPRs)
	pterm.Printf("Change requests: %d\n", s.TotalChangeRequests)
	pterm.Printf("Code changes: %d lines added, %d lines deleted\n",
		s.TotalAdditions, s.TotalDeletions)
	pterm.Printf("API calls: %d (quota remaining: %d)\n",
		client.APICalls(), client.RemainingQuota())
	pterm.Printf("Reports are available in: %s\n", outputDir)
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Sugar(), nil
}

// parseWindow interprets the calendar dates as inclusive UTC midnight
// boundaries.
func parseWindow(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", startStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", startStr, err)
	}
	end, err := time.ParseInLocation("2006-01-02", endStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", endStr, err)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date must be before end date")
	}
	return start, end, nil
}

func resolveToken(tokenFile string) (string, error) {
	if tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("no GitHub token: use --token-file or set GITHUB_TOKEN")
}

func resolveRepos(ctx context.Context, client *github.Client, log *zap.SugaredLogger) ([]string, error) {
	if reposFile == "" {
		return client.ListRepositories(ctx)
	}

	f, err := os.Open(reposFile)
	if err != nil {
		return nil, fmt.Errorf("opening repos file: %w", err)
	}
	defer f.Close()

	var repos []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			repos = append(repos, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading repos file: %w", err)
	}
	log.Infow("loaded repositories", "file", reposFile, "count", len(repos))
	return repos, nil
}
