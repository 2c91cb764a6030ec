package crawler

import (
	"context"
	"sync"

	"github.com/devmetrics/gh-metrics-reporter/models"
	"go.uber.org/zap"
)

// membershipCache memoizes team membership per login for the duration of
// one crawl run. The underlying lookup walks every organization team, which
// is O(teams) per login; the cache keeps that to one walk per approver.
type membershipCache struct {
	api API
	log *zap.SugaredLogger

	mu          sync.Mutex
	teams       []models.Team
	teamsLoaded bool
	byLogin     map[string][]string
}

func newMembershipCache(api API, log *zap.SugaredLogger) *membershipCache {
	return &membershipCache{
		api:     api,
		log:     log,
		byLogin: make(map[string][]string),
	}
}

// TeamsFor returns the organization team names the login belongs to, or an
// empty set for non-members and failed lookups. Only fatal errors propagate.
func (m *membershipCache) TeamsFor(ctx context.Context, login string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if teams, ok := m.byLogin[login]; ok {
		return teams, nil
	}

	member, err := m.api.OrgMember(ctx, login)
	if err != nil {
		if fatal(ctx, err) {
			return nil, err
		}
		member = false
	}
	if !member {
		m.byLogin[login] = nil
		return nil, nil
	}

	if !m.teamsLoaded {
		teams, err := m.api.OrgTeams(ctx)
		if err != nil {
			if fatal(ctx, err) {
				return nil, err
			}
			m.log.Warnw("team list unavailable, reporting no teams", "error", err)
			teams = nil
		}
		m.teams = teams
		m.teamsLoaded = true
	}

	var names []string
	for _, team := range m.teams {
		ok, err := m.api.IsTeamMember(ctx, team.Slug, login)
		if err != nil {
			if fatal(ctx, err) {
				return nil, err
			}
			continue
		}
		if ok {
			names = append(names, team.Name)
		}
	}

	m.byLogin[login] = names
	return names, nil
}
