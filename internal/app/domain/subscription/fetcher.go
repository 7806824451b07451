package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vacadoc/vacadoc/internal/app/models"
	"github.com/vacadoc/vacadoc/internal/app/observability/metrics"
	"github.com/vacadoc/vacadoc/internal/pkg/cache"
)

// StatusResponse is the wire shape of the status endpoint. A user with no
// subscription row yields {"status":"none"}.
type StatusResponse struct {
	Status   models.SubscriptionStatus `json:"status"`
	PlanType string                    `json:"plan_type,omitempty"`
	Plan     string                    `json:"plan,omitempty"`
	PlanID   string                    `json:"plan_id,omitempty"`
}

// TokenSource obtains a fresh session token for the status call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to the TokenSource interface.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StatusClient fetches the current subscription status for one user.
type StatusClient interface {
	FetchStatus(ctx context.Context, token string) (*StatusResponse, error)
}

// StatusError carries the HTTP class of a failed status call so the fetcher
// can distinguish auth failures from transient ones.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status endpoint returned %d", e.Code)
}

// IsUnauthorized reports whether err is a 401-class status failure.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

const (
	// token acquisition: the session may not exist yet right after signup
	tokenRetries    = 2
	tokenRetryDelay = time.Second

	// 401 from the endpoint: the token may not have propagated yet
	authRetries    = 2
	authRetryDelay = time.Second

	// other failures: retried after the suppression check
	transientRetries    = 2
	transientRetryDelay = 2 * time.Second

	// a fetch error within this window of the last observed active state is
	// swallowed and the prior state kept
	errorSuppression = 5 * time.Minute

	defaultPollInterval = 10 * time.Minute
)

// Fetcher reconciles one doctor's entitlement state against the status
// endpoint. It polls, retries with spaced delays, honors the activity-cache
// grace windows, and publishes State snapshots to subscribers. Fetch errors
// never propagate to callers; they degrade per the failure policy: fail open
// during grace, fail closed after.
//
// Concurrent triggers (poll tick racing a manual refresh) coalesce into one
// outstanding request through a single-flight group; the latest completed
// response wins.
type Fetcher struct {
	userID   string
	role     models.UserRole
	tokens   TokenSource
	client   StatusClient
	activity cache.ActivityStore
	logger   *zap.Logger

	pollInterval time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error

	group   singleflight.Group
	refresh chan struct{}

	mu      sync.RWMutex
	runCtx  context.Context
	state   State
	subs    map[int]func(State)
	nextSub int
}

// NewFetcher creates a fetcher for one user. The activity store is shared
// across fetchers (and instances); everything else is per-user.
func NewFetcher(userID string, role models.UserRole, tokens TokenSource, client StatusClient, activity cache.ActivityStore, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		userID:       userID,
		role:         role,
		tokens:       tokens,
		client:       client,
		activity:     activity,
		logger:       logger,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		sleep:        sleepCtx,
		refresh:      make(chan struct{}, 1),
		state:        State{Loading: true},
		subs:         make(map[int]func(State)),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot returns a copy of the current state.
func (f *Fetcher) Snapshot() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Subscribe registers a callback invoked on every published state change.
// The returned function removes the subscription.
func (f *Fetcher) Subscribe(fn func(State)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Refresh asks the run loop to re-poll immediately. Non-blocking; multiple
// pending signals collapse into one.
func (f *Fetcher) Refresh() {
	select {
	case f.refresh <- struct{}{}:
	default:
	}
}

// Run fetches once, then re-fetches on every poll tick and refresh signal
// until ctx is canceled.
func (f *Fetcher) Run(ctx context.Context) {
	f.mu.Lock()
	f.runCtx = ctx
	f.mu.Unlock()

	f.Fetch(ctx)

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Fetch(ctx)
		case <-f.refresh:
			f.Fetch(ctx)
		}
	}
}

// Fetch resolves the current status, coalescing concurrent callers into one
// outstanding request. It never returns an error; failures resolve to a
// degraded state per the failure policy.
//
// The shared request runs on the run loop's context once Run has started:
// the winning caller is often a short-lived HTTP request, and its
// cancellation must not abort the fetch every coalesced caller is waiting on.
func (f *Fetcher) Fetch(ctx context.Context) State {
	v, _, _ := f.group.Do("status", func() (interface{}, error) {
		return f.doFetch(f.fetchCtx(ctx)), nil
	})
	return v.(State)
}

func (f *Fetcher) fetchCtx(caller context.Context) context.Context {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.runCtx != nil {
		return f.runCtx
	}
	return caller
}

// Entitled evaluates the current snapshot against the grace window.
func (f *Fetcher) Entitled(ctx context.Context) bool {
	last, ok := f.activity.LastActive(ctx, f.userID)
	return IsSubscribed(f.role, f.Snapshot(), last, ok, f.now())
}

func (f *Fetcher) doFetch(ctx context.Context) State {
	l := f.logger.With(zap.String("method", "Fetch"), zap.String("userID", f.userID))

	// only doctors are gated by subscription
	if f.userID == "" || f.role != models.RoleDoctor {
		return f.settle()
	}

	token, err := f.obtainToken(ctx, l)
	if err != nil {
		if ctx.Err() != nil {
			return f.settle()
		}
		l.Warn("Token retrieval failed, treating as fetch failure", zap.Error(err))
		return f.resolveFailure(ctx, l, err)
	}

	resp, err := f.client.FetchStatus(ctx, token)
	if err != nil && IsUnauthorized(err) {
		// the token may not have propagated yet after signup/login
		for attempt := 1; attempt <= authRetries && err != nil && IsUnauthorized(err); attempt++ {
			l.Debug("Status call unauthorized, retrying", zap.Int("attempt", attempt))
			if f.sleep(ctx, authRetryDelay) != nil {
				return f.settle()
			}
			resp, err = f.client.FetchStatus(ctx, token)
		}
	}
	if err != nil && !IsUnauthorized(err) {
		// transiently stale-but-fine: keep prior state when the last known
		// active observation is recent
		if last, ok := f.activity.LastActive(ctx, f.userID); ok && f.now().Sub(last) <= errorSuppression {
			l.Debug("Status fetch failed within suppression window, keeping prior state", zap.Error(err))
			return f.settle()
		}
		for attempt := 1; attempt <= transientRetries && err != nil; attempt++ {
			l.Debug("Status fetch failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			if f.sleep(ctx, transientRetryDelay) != nil {
				return f.settle()
			}
			resp, err = f.client.FetchStatus(ctx, token)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return f.settle()
		}
		l.Warn("Status fetch failed after retries, degrading to inactive", zap.Error(err))
		f.countFetch(ctx, "failure")
		return f.publish(State{Status: models.StatusInactive, FetchedAt: f.now()})
	}

	f.countFetch(ctx, "success")
	st := f.stateFromResponse(resp)
	if st.Status == models.StatusActive {
		f.activity.MarkActive(ctx, f.userID, f.now())
	}
	return f.publish(st)
}

func (f *Fetcher) countFetch(ctx context.Context, outcome string) {
	m := metrics.TryGet()
	if m == nil {
		return
	}
	m.StatusFetchesTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == "failure" {
		m.StatusFetchFailuresTotal.Add(ctx, 1)
	}
}

func (f *Fetcher) obtainToken(ctx context.Context, l *zap.Logger) (string, error) {
	token, err := f.tokens.Token(ctx)
	for attempt := 1; attempt <= tokenRetries && err != nil; attempt++ {
		l.Debug("Token retrieval failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		if serr := f.sleep(ctx, tokenRetryDelay); serr != nil {
			return "", serr
		}
		token, err = f.tokens.Token(ctx)
	}
	return token, err
}

// resolveFailure applies the sustained-failure policy: prior state within the
// suppression window, inactive otherwise.
func (f *Fetcher) resolveFailure(ctx context.Context, l *zap.Logger, cause error) State {
	if last, ok := f.activity.LastActive(ctx, f.userID); ok && f.now().Sub(last) <= errorSuppression {
		l.Debug("Failure within suppression window, keeping prior state", zap.Error(cause))
		return f.settle()
	}
	f.countFetch(ctx, "failure")
	return f.publish(State{Status: models.StatusInactive, FetchedAt: f.now()})
}

func (f *Fetcher) stateFromResponse(resp *StatusResponse) State {
	st := State{Status: resp.Status, FetchedAt: f.now()}
	if st.Status == "" {
		st.Status = models.StatusNone
	}
	if tier, ok := ParsePlanName(resp.PlanType); ok {
		st.Plan = tier
	} else if tier, ok := ParsePlanName(resp.Plan); ok {
		st.Plan = tier
	} else if tier, ok := priceToPlan[resp.PlanID]; ok {
		st.Plan = tier
	}
	// plan_type is never null for a live subscription
	if st.Plan == "" {
		switch st.Status {
		case models.StatusActive, models.StatusTrialing, models.StatusPastDue:
			st.Plan = models.PlanEssentiel
		}
	}
	return st
}

// settle marks loading finished without touching the resolved status.
func (f *Fetcher) settle() State {
	f.mu.Lock()
	f.state.Loading = false
	st := f.state
	subs := f.snapshotSubs()
	f.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
	return st
}

func (f *Fetcher) publish(st State) State {
	f.mu.Lock()
	f.state = st
	subs := f.snapshotSubs()
	f.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
	return st
}

// callers must hold f.mu
func (f *Fetcher) snapshotSubs() []func(State) {
	out := make([]func(State), 0, len(f.subs))
	for _, fn := range f.subs {
		out = append(out, fn)
	}
	return out
}
