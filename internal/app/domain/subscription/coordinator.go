package subscription

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
	"github.com/vacadoc/vacadoc/internal/pkg/cache"
)

// TokenMinter produces a session token for a user's status calls.
type TokenMinter func(userID string) (string, error)

// fetcherIdleTTL is how long an unconsulted fetcher keeps polling before the
// janitor stops it. Two poll intervals, so a fetcher always survives at
// least one quiet cycle.
const fetcherIdleTTL = 2 * defaultPollInterval

type fetcherEntry struct {
	f        *Fetcher
	cancel   context.CancelFunc
	lastSeen time.Time
}

// Coordinator owns one Fetcher per signed-in doctor. Fetchers are created on
// first demand, run against the coordinator's base context, and are torn
// down when unconsulted past the idle TTL or when the server shuts down.
type Coordinator struct {
	svc      Service
	activity cache.ActivityStore
	mint     TokenMinter
	logger   *zap.Logger

	// statusEndpoint, when set, points fetchers at a remote status service
	// instead of the in-process one.
	statusEndpoint string

	baseCtx context.Context

	mu       sync.Mutex
	fetchers map[string]*fetcherEntry
}

func NewCoordinator(baseCtx context.Context, svc Service, activity cache.ActivityStore, mint TokenMinter, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		svc:      svc,
		activity: activity,
		mint:     mint,
		logger:   logger,
		baseCtx:  baseCtx,
		fetchers: make(map[string]*fetcherEntry),
	}
	go c.janitor()
	return c
}

// UseRemoteStatus makes subsequently created fetchers resolve status against
// the given HTTP endpoint. Call before the first ForUser.
func (c *Coordinator) UseRemoteStatus(endpoint string) {
	c.mu.Lock()
	c.statusEndpoint = endpoint
	c.mu.Unlock()
}

// ForUser returns the user's fetcher, starting one when none exists yet.
func (c *Coordinator) ForUser(userID string, role models.UserRole) *Fetcher {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.fetchers[userID]; ok {
		e.lastSeen = time.Now()
		return e.f
	}

	tokens := TokenFunc(func(_ context.Context) (string, error) {
		return c.mint(userID)
	})
	var client StatusClient = NewServiceStatusClient(c.svc, userID)
	if c.statusEndpoint != "" {
		client = NewHTTPStatusClient(c.statusEndpoint)
	}
	f := NewFetcher(userID, role, tokens, client, c.activity, c.logger)
	runCtx, cancel := context.WithCancel(c.baseCtx)
	c.fetchers[userID] = &fetcherEntry{f: f, cancel: cancel, lastSeen: time.Now()}
	go f.Run(runCtx)
	return f
}

// Entitled answers the access decision for a user. Non-doctors short-circuit
// without spinning up a fetcher.
func (c *Coordinator) Entitled(ctx context.Context, userID string, role models.UserRole) bool {
	if role != models.RoleDoctor {
		return true
	}
	return c.ForUser(userID, role).Entitled(ctx)
}

// Refresh signals the user's fetcher to re-poll immediately; a no-op when no
// fetcher is live.
func (c *Coordinator) Refresh(userID string) {
	c.mu.Lock()
	e, ok := c.fetchers[userID]
	if ok {
		e.lastSeen = time.Now()
	}
	c.mu.Unlock()
	if ok {
		e.f.Refresh()
	}
}

func (c *Coordinator) janitor() {
	ticker := time.NewTicker(fetcherIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-c.baseCtx.Done():
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

// sweep stops and drops every fetcher unconsulted past the idle TTL. The
// shared activity cache is untouched, so a returning doctor resumes with
// their grace state intact.
func (c *Coordinator) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.fetchers {
		if now.Sub(e.lastSeen) > fetcherIdleTTL {
			e.cancel()
			delete(c.fetchers, id)
		}
	}
}
