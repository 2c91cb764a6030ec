package github

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/go-github/v56/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ErrQuotaExhausted is surfaced when the API rate limit is fatally exhausted.
// Callers decide whether to back off or fail the run; the client never
// retries on its own.
var ErrQuotaExhausted = errors.New("github API rate limit exhausted")

const perPage = 100

// Client wraps the GitHub REST API for one organization. All API access of
// the crawl is funneled through it; it counts calls and surfaces remaining
// quota but does not enforce back-off beyond its request limiter.
type Client struct {
	gh        *github.Client
	org       string
	limiter   *rate.Limiter
	log       *zap.SugaredLogger
	apiCalls  atomic.Int64
	remaining atomic.Int64
}

// NewClient builds an authenticated client for the given organization.
func NewClient(token, org string, log *zap.SugaredLogger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	// Rate limiter: 5000 requests per hour = ~83 per minute = ~1.4 per second.
	// Set to 1 per second to be conservative.
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)

	return &Client{
		gh:      github.NewClient(tc),
		org:     org,
		limiter: limiter,
		log:     log,
	}
}

// NewFromGitHub wraps an existing go-github client. Used by tests and by
// GitHub Enterprise setups that need a custom base URL.
func NewFromGitHub(gh *github.Client, org string, log *zap.SugaredLogger) *Client {
	return &Client{
		gh:      gh,
		org:     org,
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     log,
	}
}

// ValidateToken verifies the credential against the authenticated-user
// endpoint and logs the current rate limit status. A failure here is fatal
// to the run.
func (c *Client) ValidateToken(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	user, resp, err := c.gh.Users.Get(ctx, "")
	c.track(resp)
	if err != nil {
		return fmt.Errorf("token validation failed: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	limits, resp, err := c.gh.RateLimits(ctx)
	c.track(resp)
	if err == nil && limits.Core != nil {
		c.remaining.Store(int64(limits.Core.Remaining))
		c.log.Infow("token validated",
			"login", user.GetLogin(),
			"rate_remaining", limits.Core.Remaining,
			"rate_limit", limits.Core.Limit)
	} else {
		c.log.Infow("token validated", "login", user.GetLogin())
	}
	return nil
}

// Org returns the organization this client is scoped to.
func (c *Client) Org() string {
	return c.org
}

// APICalls reports the number of API calls made so far in this run.
func (c *Client) APICalls() int64 {
	return c.apiCalls.Load()
}

// RemainingQuota reports the rate-limit quota left as of the last response.
func (c *Client) RemainingQuota() int64 {
	return c.remaining.Load()
}

// track records one API call and the quota from its response.
func (c *Client) track(resp *github.Response) {
	c.apiCalls.Add(1)
	if resp != nil && resp.Rate.Limit > 0 {
		c.remaining.Store(int64(resp.Rate.Remaining))
	}
}

// wrapErr maps rate-limit errors to ErrQuotaExhausted so callers can
// distinguish fatal exhaustion from an ordinary failed sub-fetch.
func wrapErr(err error, repo, resource string) error {
	if isRateLimited(err) {
		return fmt.Errorf("%w: %s %s", ErrQuotaExhausted, repo, resource)
	}
	return fmt.Errorf("fetching %s for %s: %w", resource, repo, err)
}

func isRateLimited(err error) bool {
	var limitErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	return errors.As(err, &limitErr) || errors.As(err, &abuseErr)
}

// collectPages walks a paginated collection until an empty page, following
// NextPage boundaries. On a failed page it logs and returns the items
// accumulated so far with a nil error: a partial fetch degrades counts but
// must not abort the crawl. Only cancellation and fatal quota exhaustion
// come back as errors.
func collectPages[T any](
	ctx context.Context,
	c *Client,
	repo, resource string,
	fetch func(ctx context.Context, page int) ([]T, *github.Response, error),
) ([]T, error) {
	var all []T
	page := 1
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return all, err
		}
		items, resp, err := fetch(ctx, page)
		c.track(resp)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			if isRateLimited(err) {
				return all, wrapErr(err, repo, resource)
			}
			c.log.Warnw("partial fetch, keeping items accumulated so far",
				"repo", repo, "resource", resource, "page", page, "error", err)
			return all, nil
		}
		if len(items) == 0 {
			return all, nil
		}
		all = append(all, items...)
		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		page = resp.NextPage
	}
}
