package subscription

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

type fakeTokens struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *fakeTokens) Token(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("session not ready")
	}
	return "token-123", nil
}

// scriptedClient replays a fixed sequence of results; the last entry repeats.
type scriptedClient struct {
	mu      sync.Mutex
	script  []scriptStep
	calls   int
	gate    chan struct{}
	started chan struct{}
}

type scriptStep struct {
	resp *StatusResponse
	err  error
}

func (c *scriptedClient) FetchStatus(_ context.Context, token string) (*StatusResponse, error) {
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	step := c.script[len(c.script)-1]
	if c.calls < len(c.script) {
		step = c.script[c.calls]
	}
	c.calls++
	return step.resp, step.err
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeActivity struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	marks int
}

func newFakeActivity() *fakeActivity {
	return &fakeActivity{seen: make(map[string]time.Time)}
}

func (a *fakeActivity) LastActive(_ context.Context, userID string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.seen[userID]
	return t, ok
}

func (a *fakeActivity) MarkActive(_ context.Context, userID string, t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen[userID] = t
	a.marks++
}

func newTestFetcher(role models.UserRole, tokens TokenSource, client StatusClient, activity *fakeActivity) *Fetcher {
	f := NewFetcher("doc-1", role, tokens, client, activity, nil)
	f.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	f.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return f
}

func TestFetchResolvesStateAndMarksActivity(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{resp: &StatusResponse{Status: models.StatusActive, PlanType: "pro"}},
	}}
	activity := newFakeActivity()
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, activity)

	st := f.Fetch(context.Background())

	assert.False(t, st.Loading)
	assert.Equal(t, models.StatusActive, st.Status)
	assert.Equal(t, models.PlanPro, st.Plan)

	_, ok := activity.LastActive(context.Background(), "doc-1")
	assert.True(t, ok, "active observation should be recorded")
	assert.True(t, f.Entitled(context.Background()))
}

func TestFetchEmptyStatusMeansNoSubscription(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{resp: &StatusResponse{}},
	}}
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, newFakeActivity())

	st := f.Fetch(context.Background())

	assert.Equal(t, models.StatusNone, st.Status)
	assert.False(t, f.Entitled(context.Background()), "no subscription after a completed fetch must not grant access")
}

func TestFetchLiveStatusWithoutPlanDefaultsToEssentiel(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{resp: &StatusResponse{Status: models.StatusTrialing}},
	}}
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, newFakeActivity())

	st := f.Fetch(context.Background())

	assert.Equal(t, models.StatusTrialing, st.Status)
	assert.Equal(t, models.PlanEssentiel, st.Plan)
}

func TestFetchRetriesUnauthorizedThenSucceeds(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{err: &StatusError{Code: http.StatusUnauthorized}},
		{err: &StatusError{Code: http.StatusUnauthorized}},
		{resp: &StatusResponse{Status: models.StatusActive, PlanType: "premium"}},
	}}
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, newFakeActivity())

	st := f.Fetch(context.Background())

	assert.Equal(t, 3, client.callCount())
	assert.Equal(t, models.StatusActive, st.Status)
	assert.Equal(t, models.PlanPremium, st.Plan)
}

func TestFetchExhaustedUnauthorizedDegradesToInactive(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{err: &StatusError{Code: http.StatusUnauthorized}},
	}}
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, newFakeActivity())

	st := f.Fetch(context.Background())

	assert.Equal(t, models.StatusInactive, st.Status)
	assert.False(t, st.Loading)
	assert.False(t, f.Entitled(context.Background()))
}

func TestFetchErrorWithinSuppressionWindowKeepsPriorState(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{resp: &StatusResponse{Status: models.StatusActive, PlanType: "pro"}},
		{err: errors.New("upstream down")},
	}}
	activity := newFakeActivity()
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, activity)

	first := f.Fetch(context.Background())
	require.Equal(t, models.StatusActive, first.Status)

	// the active observation is seconds old, so the failure is swallowed
	second := f.Fetch(context.Background())

	assert.Equal(t, models.StatusActive, second.Status)
	assert.Equal(t, models.PlanPro, second.Plan)
	assert.Equal(t, 2, client.callCount(), "suppressed failure must not retry")
	assert.True(t, f.Entitled(context.Background()))
}

func TestFetchErrorPastSuppressionWindowDegradesToInactive(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{err: errors.New("upstream down")},
	}}
	activity := newFakeActivity()
	// last active observation predates the suppression window
	activity.MarkActive(context.Background(), "doc-1",
		time.Date(2026, 3, 15, 11, 50, 0, 0, time.UTC))
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, activity)

	st := f.Fetch(context.Background())

	assert.Equal(t, models.StatusInactive, st.Status)
	assert.Equal(t, 3, client.callCount(), "expected the initial call plus two retries")
}

func TestFetchTokenFailureResolvesLikeFetchFailure(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{resp: &StatusResponse{Status: models.StatusActive}},
	}}
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{failures: 10}, client, newFakeActivity())

	st := f.Fetch(context.Background())

	assert.Equal(t, models.StatusInactive, st.Status)
	assert.Zero(t, client.callCount(), "status endpoint must not be called without a token")
}

func TestFetchNonDoctorSkipsEndpoint(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{resp: &StatusResponse{Status: models.StatusActive}},
	}}
	f := NewFetcher("est-1", models.RoleEstablishment, &fakeTokens{}, client, newFakeActivity(), nil)

	st := f.Fetch(context.Background())

	assert.False(t, st.Loading)
	assert.Zero(t, client.callCount())
	assert.True(t, f.Entitled(context.Background()))
}

func TestConcurrentFetchesCoalesce(t *testing.T) {
	client := &scriptedClient{
		script:  []scriptStep{{resp: &StatusResponse{Status: models.StatusActive, PlanType: "pro"}}},
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, newFakeActivity())

	var wg sync.WaitGroup
	results := make([]State, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.Fetch(context.Background())
		}(i)
	}

	<-client.started
	// give the remaining callers time to pile onto the in-flight request
	time.Sleep(50 * time.Millisecond)
	close(client.gate)
	wg.Wait()

	assert.Equal(t, 1, client.callCount(), "concurrent fetches should share one request")
	for _, st := range results {
		assert.Equal(t, models.StatusActive, st.Status)
	}
}

func TestSubscribeReceivesPublishedStates(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{resp: &StatusResponse{Status: models.StatusActive, PlanType: "premium"}},
	}}
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, newFakeActivity())

	var mu sync.Mutex
	var got []State
	cancel := f.Subscribe(func(st State) {
		mu.Lock()
		got = append(got, st)
		mu.Unlock()
	})

	f.Fetch(context.Background())

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusActive, got[0].Status)
	mu.Unlock()

	cancel()
	f.Fetch(context.Background())

	mu.Lock()
	assert.Len(t, got, 1, "canceled subscription must not be notified")
	mu.Unlock()
}

func TestRefreshSignalIsNonBlocking(t *testing.T) {
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, &scriptedClient{script: []scriptStep{{resp: &StatusResponse{}}}}, newFakeActivity())

	done := make(chan struct{})
	go func() {
		f.Refresh()
		f.Refresh()
		f.Refresh()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Refresh blocked")
	}
}

func TestRunHonorsRefreshSignal(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{resp: &StatusResponse{Status: models.StatusActive, PlanType: "pro"}},
	}}
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, newFakeActivity())
	f.pollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	// wait for the initial fetch, then ask for another
	assert.Eventually(t, func() bool { return client.callCount() == 1 }, time.Second, 10*time.Millisecond)
	f.Refresh()
	assert.Eventually(t, func() bool { return client.callCount() == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

// ctxAwareClient fails the way a real HTTP client does when its context is
// already canceled.
type ctxAwareClient struct {
	mu    sync.Mutex
	calls int
}

func (c *ctxAwareClient) FetchStatus(ctx context.Context, _ string) (*StatusResponse, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &StatusResponse{Status: models.StatusActive, PlanType: "pro"}, nil
}

func TestFetchSurvivesCanceledCaller(t *testing.T) {
	client := &ctxAwareClient{}
	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, client, newFakeActivity())
	f.mu.Lock()
	f.runCtx = context.Background()
	f.mu.Unlock()

	// the winning caller is a short-lived request whose context is already
	// gone; the shared fetch must still resolve on the run loop's context
	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()

	st := f.Fetch(reqCtx)

	assert.Equal(t, models.StatusActive, st.Status)
	assert.Equal(t, models.PlanPro, st.Plan)
	assert.False(t, st.Loading)
}
