package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/yndnr/keymesh-go/internal/authtest"
	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/credstore"
	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
)

type fixture struct {
	srv     *authtest.Server
	store   *credstore.KVStore
	p       *Pipeline
	metrics *metric.Registry
	expired atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := authtest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser("alice", "alice@example.com", "correct-pw")

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	f := &fixture{
		srv:     srv,
		store:   credstore.NewMemoryStore(),
		metrics: metric.NewRegistry(),
	}
	transport := NewHTTPTransport(TransportConfig{
		Server:  srv.URL(),
		Jar:     jar,
		Logger:  logger.Discard(),
		Metrics: f.metrics,
	})
	f.p = NewPipeline(transport, f.store, WithLogger(logger.Discard()), WithMetrics(f.metrics))
	f.p.OnSessionExpired(func() { f.expired.Add(1) })
	return f
}

func (f *fixture) login(t *testing.T) domain.LoginResult {
	t.Helper()

	req, err := NewRequest(http.MethodPost, "/auth/login", map[string]string{
		"username": "alice",
		"password": "correct-pw",
	})
	require.NoError(t, err)

	var res domain.LoginResult
	require.NoError(t, f.p.Do(context.Background(), req.Unauthenticated().WithCredentials(), &res))
	f.store.Set(res.AccessToken, res.User)
	return res
}

func (f *fixture) fetchMe(ctx context.Context) (domain.User, error) {
	var u domain.User
	err := f.p.Do(ctx, Get("/auth/me"), &u)
	return u, err
}

func TestPipeline_AttachesStoredToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	u, err := f.fetchMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, int64(0), f.srv.RefreshCalls())
}

func TestPipeline_SingleFlightRefresh(t *testing.T) {
	for _, n := range []int{1, 5, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			f := newFixture(t)
			original := f.login(t)

			f.srv.ExpireAccessTokens()
			f.srv.DelayRefresh(50 * time.Millisecond)

			g, ctx := errgroup.WithContext(context.Background())
			for i := 0; i < n; i++ {
				g.Go(func() error {
					u, err := f.fetchMe(ctx)
					if err != nil {
						return err
					}
					if u.Username != "alice" {
						return fmt.Errorf("unexpected user %q", u.Username)
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			assert.Equal(t, int64(1), f.srv.RefreshCalls())
			assert.Equal(t, int64(2*n), f.srv.Calls(http.MethodGet, "/auth/me"))
			assert.Equal(t, float64(n), testutil.ToFloat64(f.metrics.RetriesTotal))
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues(metric.RefreshSuccess)))

			creds := f.store.Get()
			assert.NotEqual(t, original.AccessToken, creds.AccessToken)
			require.NotNil(t, creds.User)
			assert.Equal(t, "alice", creds.User.Username)
			assert.Zero(t, f.expired.Load())
		})
	}
}

func TestPipeline_RefreshFailureFailsAllWaiters(t *testing.T) {
	const n = 10
	f := newFixture(t)
	f.login(t)

	f.srv.ExpireAccessTokens()
	f.srv.FailRefresh(true)
	f.srv.DelayRefresh(50 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.fetchMe(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, domain.ErrAuthenticationExpired)
	}
	assert.Equal(t, int64(1), f.srv.RefreshCalls())
	assert.Equal(t, int64(n), f.srv.Calls(http.MethodGet, "/auth/me"), "failed waiters must not be retried")
	assert.True(t, f.store.Get().Empty())
	assert.Equal(t, int64(1), f.expired.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ForcedLogouts))
}

func TestPipeline_NoDoubleRetry(t *testing.T) {
	const n = 5
	f := newFixture(t)
	f.login(t)

	f.srv.RejectAllTokens(true)
	f.srv.DelayRefresh(50 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.fetchMe(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, domain.ErrAuthenticationExpired)
	}
	assert.Equal(t, int64(1), f.srv.RefreshCalls())
	assert.Equal(t, int64(2*n), f.srv.Calls(http.MethodGet, "/auth/me"))
	assert.True(t, f.store.Get().Empty())
	assert.Equal(t, int64(1), f.expired.Load(), "session must be cleared exactly once")
}

func TestPipeline_EndToEndTransparentRefresh(t *testing.T) {
	f := newFixture(t)
	res := f.login(t)
	assert.Equal(t, "alice", f.store.Get().User.Username)

	f.srv.ExpireAccessTokens()

	u, err := f.fetchMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	creds := f.store.Get()
	assert.NotEqual(t, res.AccessToken, creds.AccessToken)
	assert.Equal(t, int64(1), f.srv.RefreshCalls())

	// The refreshed token keeps working without another refresh.
	_, err = f.fetchMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.srv.RefreshCalls())
}

func TestPipeline_WaiterCancellationDoesNotFailOthers(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.srv.ExpireAccessTokens()
	f.srv.DelayRefresh(200 * time.Millisecond)

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var (
		wg         sync.WaitGroup
		cancelErr  error
		patientErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = f.fetchMe(shortCtx)
	}()
	go func() {
		defer wg.Done()
		_, patientErr = f.fetchMe(context.Background())
	}()
	wg.Wait()

	assert.ErrorIs(t, cancelErr, domain.ErrNetworkFailure)
	assert.ErrorIs(t, cancelErr, context.DeadlineExceeded)
	assert.NoError(t, patientErr)
	assert.Equal(t, int64(1), f.srv.RefreshCalls())
	assert.False(t, f.store.Get().Empty())
}

func TestPipeline_UnauthenticatedRequestDoesNotRefresh(t *testing.T) {
	f := newFixture(t)

	req, err := NewRequest(http.MethodPost, "/auth/login", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	require.NoError(t, err)

	err = f.p.Do(context.Background(), req.Unauthenticated().WithCredentials(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "Invalid username or password")
	assert.Equal(t, int64(0), f.srv.RefreshCalls())
}

func TestPipeline_NoSessionRefreshIsNotPersisted(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.store.Clear()

	// The refresh cookie is still valid, so the retry succeeds, but the
	// renewed token is not written into an empty store.
	u, err := f.fetchMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, f.store.Get().Empty())
}

func TestPipeline_NetworkFailure(t *testing.T) {
	srv := authtest.NewServer()
	url := srv.URL()
	srv.Close()

	p := NewPipeline(NewHTTPTransport(TransportConfig{Server: url, Logger: logger.Discard()}),
		credstore.NewMemoryStore(), WithLogger(logger.Discard()))

	err := p.Do(context.Background(), Get("/auth/me"), nil)
	assert.ErrorIs(t, err, domain.ErrNetworkFailure)
}

// scriptedSender replays canned responses and records what was sent.
type scriptedSender struct {
	mu     sync.Mutex
	steps  []func(req Request, token string) (*Response, error)
	sent   []Request
	tokens []string
	ids    []string
}

func (s *scriptedSender) Send(ctx context.Context, req Request, token string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, req)
	s.tokens = append(s.tokens, token)
	s.ids = append(s.ids, logger.RequestIDFromContext(ctx))
	if len(s.steps) == 0 {
		return nil, errors.New("unexpected request")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step(req, token)
}

func respond(status int, body string) func(Request, string) (*Response, error) {
	return func(Request, string) (*Response, error) {
		return &Response{Status: status, Body: []byte(body)}, nil
	}
}

func TestPipeline_StaleTokenRetriesWithoutRefresh(t *testing.T) {
	store := credstore.NewMemoryStore()
	store.Set("T1", &domain.User{ID: "u-1", Username: "alice"})

	sender := &scriptedSender{}
	sender.steps = []func(Request, string) (*Response, error){
		func(Request, string) (*Response, error) {
			// Another request refreshed while this one was in flight.
			store.ReplaceToken("T1", "T2")
			return &Response{Status: http.StatusUnauthorized}, nil
		},
		respond(http.StatusOK, `{"id":"u-1","username":"alice"}`),
	}

	p := NewPipeline(sender, store, WithLogger(logger.Discard()))
	var u domain.User
	require.NoError(t, p.Do(context.Background(), Get("/auth/me"), &u))

	assert.Equal(t, []string{"T1", "T2"}, sender.tokens)
	for _, req := range sender.sent {
		assert.NotEqual(t, RefreshPath, req.Path)
	}
}

func TestPipeline_RetryResendsSameRequest(t *testing.T) {
	store := credstore.NewMemoryStore()
	store.Set("T1", &domain.User{ID: "u-1"})

	sender := &scriptedSender{}
	sender.steps = []func(Request, string) (*Response, error){
		respond(http.StatusUnauthorized, ""),
		respond(http.StatusOK, `{"accessToken":"T2","tokenType":"Bearer","expiresIn":900}`),
		respond(http.StatusCreated, `{"id":"key_1","name":"ci","active":true}`),
	}

	p := NewPipeline(sender, store, WithLogger(logger.Discard()))
	req, err := NewRequest(http.MethodPost, "/auth/api-keys", map[string]string{"name": "ci"})
	require.NoError(t, err)
	req.Header = http.Header{"X-Trace": []string{"abc"}}

	var key domain.APIKey
	require.NoError(t, p.Do(context.Background(), req, &key))
	assert.Equal(t, "key_1", key.ID)

	require.Len(t, sender.sent, 3)
	first, refresh, retry := sender.sent[0], sender.sent[1], sender.sent[2]
	assert.Equal(t, RefreshPath, refresh.Path)
	assert.True(t, refresh.Credentialed)
	assert.Equal(t, AuthNone, refresh.Auth)
	assert.Equal(t, first.Method, retry.Method)
	assert.Equal(t, first.Body, retry.Body)
	assert.Equal(t, first.Header, retry.Header)
	assert.Equal(t, []string{"T1", "", "T2"}, sender.tokens)
	assert.Equal(t, "T2", store.Get().AccessToken)
}

func TestPipeline_RefreshLosesToLogout(t *testing.T) {
	store := credstore.NewMemoryStore()
	store.Set("T1", &domain.User{ID: "u-1"})

	sender := &scriptedSender{}
	sender.steps = []func(Request, string) (*Response, error){
		respond(http.StatusUnauthorized, ""),
		func(Request, string) (*Response, error) {
			store.Clear()
			return &Response{Status: http.StatusOK, Body: []byte(`{"accessToken":"T2"}`)}, nil
		},
	}

	p := NewPipeline(sender, store, WithLogger(logger.Discard()))
	err := p.Do(context.Background(), Get("/auth/me"), nil)

	assert.ErrorIs(t, err, domain.ErrAuthenticationExpired)
	assert.True(t, store.Get().Empty(), "refresh must not resurrect a logged-out session")
}

func TestPipeline_RefreshWithoutToken(t *testing.T) {
	store := credstore.NewMemoryStore()
	store.Set("T1", &domain.User{ID: "u-1"})

	sender := &scriptedSender{}
	sender.steps = []func(Request, string) (*Response, error){
		respond(http.StatusUnauthorized, ""),
		respond(http.StatusOK, `{"tokenType":"Bearer"}`),
	}

	var expired int
	p := NewPipeline(sender, store, WithLogger(logger.Discard()))
	p.OnSessionExpired(func() { expired++ })

	err := p.Do(context.Background(), Get("/auth/me"), nil)
	assert.ErrorIs(t, err, domain.ErrAuthenticationExpired)
	assert.ErrorIs(t, err, domain.ErrUnexpectedResponse)
	assert.Equal(t, 1, expired)
	assert.Equal(t, stateIdle, p.refresh.current())
}

func TestPipeline_OnSessionExpiredUnsubscribe(t *testing.T) {
	store := credstore.NewMemoryStore()
	store.Set("T1", &domain.User{ID: "u-1"})

	sender := &scriptedSender{}
	sender.steps = []func(Request, string) (*Response, error){
		respond(http.StatusUnauthorized, ""),
		respond(http.StatusUnauthorized, `{"code":"REFRESH_EXPIRED","message":"refresh token expired"}`),
	}

	var calls int
	p := NewPipeline(sender, store, WithLogger(logger.Discard()))
	unsubscribe := p.OnSessionExpired(func() { calls++ })
	unsubscribe()

	err := p.Do(context.Background(), Get("/auth/me"), nil)
	assert.ErrorIs(t, err, domain.ErrAuthenticationExpired)
	assert.Contains(t, err.Error(), "token refresh failed")
	assert.Zero(t, calls)
	assert.True(t, store.Get().Empty())
}

func TestPipeline_RequestIDs(t *testing.T) {
	store := credstore.NewMemoryStore()
	store.Set("T1", &domain.User{ID: "u-1"})

	sender := &scriptedSender{}
	sender.steps = []func(Request, string) (*Response, error){
		respond(http.StatusUnauthorized, ""),
		respond(http.StatusOK, `{"accessToken":"T2"}`),
		respond(http.StatusOK, `{}`),
		respond(http.StatusOK, `{}`),
	}

	p := NewPipeline(sender, store, WithLogger(logger.Discard()))
	require.NoError(t, p.Do(context.Background(), Get("/auth/me"), nil))

	require.Len(t, sender.ids, 3)
	first, refresh, retry := sender.ids[0], sender.ids[1], sender.ids[2]
	assert.NotEmpty(t, first)
	assert.Equal(t, first, retry, "retry keeps the request ID of its call")
	assert.NotEmpty(t, refresh)
	assert.NotEqual(t, first, refresh, "refresh runs under its own request ID")

	ctx := logger.WithRequestID(context.Background(), "caller-id")
	require.NoError(t, p.Do(ctx, Get("/auth/me"), nil))
	assert.Equal(t, "caller-id", sender.ids[3])
}

func TestPipeline_ExpiryHookMayUsePipeline(t *testing.T) {
	store := credstore.NewMemoryStore()
	store.Set("T1", &domain.User{ID: "u-1"})

	sender := &scriptedSender{}
	sender.steps = []func(Request, string) (*Response, error){
		respond(http.StatusUnauthorized, ""),
		respond(http.StatusUnauthorized, `{"message":"refresh token expired"}`),
		// The hook's own request and the refresh it triggers.
		respond(http.StatusUnauthorized, ""),
		respond(http.StatusUnauthorized, ""),
	}

	p := NewPipeline(sender, store, WithLogger(logger.Discard()))

	var hookErr error
	p.OnSessionExpired(func() {
		hookErr = p.Do(context.Background(), Get("/auth/me"), nil)
	})

	done := make(chan error, 1)
	go func() { done <- p.Do(context.Background(), Get("/auth/me"), nil) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrAuthenticationExpired)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline call from an expiry hook blocked the refresh round")
	}
	assert.ErrorIs(t, hookErr, domain.ErrAuthenticationExpired)
	assert.Equal(t, stateIdle, p.refresh.current())
}
