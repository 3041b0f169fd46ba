package connection

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/credstore"
	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
)

// RefreshPath is the endpoint exchanging the refresh cookie for a new access token.
const RefreshPath = "/auth/refresh"

// DefaultRefreshTimeout bounds one refresh round.
const DefaultRefreshTimeout = 15 * time.Second

// maxAttempt is the attempt number of the single retry.
const maxAttempt = 1

// Sender performs a single HTTP exchange.
type Sender interface {
	Send(ctx context.Context, req Request, token string) (*Response, error)
}

// Pipeline sends requests with the stored access token and coordinates
// token refresh across concurrent callers.
type Pipeline struct {
	sender  Sender
	store   credstore.TokenStore
	refresh *refreshCoordinator
	logger  logger.Logger
	metrics *metric.Registry

	hooksMu  sync.Mutex
	hooks    map[int]func()
	nextHook int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics records refresh and retry metrics.
func WithMetrics(m *metric.Registry) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithRefreshTimeout bounds each refresh round.
func WithRefreshTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.refresh.timeout = d
	}
}

// NewPipeline creates a pipeline over sender and store.
func NewPipeline(sender Sender, store credstore.TokenStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		sender: sender,
		store:  store,
		hooks:  make(map[int]func()),
	}
	p.refresh = newRefreshCoordinator(p.doRefresh, DefaultRefreshTimeout)
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrDefault(p.logger).With("component", "pipeline")
	p.refresh.onDone = p.observeRefresh
	return p
}

// OnSessionExpired registers fn to run once each time the pipeline ends the
// session. It returns a function that removes the hook.
func (p *Pipeline) OnSessionExpired(fn func()) (unsubscribe func()) {
	p.hooksMu.Lock()
	id := p.nextHook
	p.nextHook++
	p.hooks[id] = fn
	p.hooksMu.Unlock()

	return func() {
		p.hooksMu.Lock()
		delete(p.hooks, id)
		p.hooksMu.Unlock()
	}
}

// Do sends req and decodes a 2xx JSON body into out (which may be nil).
// Every attempt of one call carries the same request ID.
func (p *Pipeline) Do(ctx context.Context, req Request, out any) error {
	if logger.RequestIDFromContext(ctx) == "" {
		ctx = logger.WithRequestID(ctx, newRequestID())
	}

	token := ""
	if req.Auth == AuthBearer {
		token = p.store.Get().AccessToken
	}
	return p.send(ctx, req, out, 0, token)
}

func (p *Pipeline) send(ctx context.Context, req Request, out any, attempt int, token string) error {
	resp, err := p.sender.Send(ctx, req, token)
	if err != nil {
		return transportError(err)
	}

	if resp.Status == http.StatusUnauthorized && req.Auth == AuthBearer {
		if attempt >= maxAttempt {
			if p.endSession(token) {
				p.notifyExpired()
			}
			return statusError(resp.Status, req.Auth, resp.Body)
		}

		next, err := p.renew(ctx, token)
		if err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.RetriesTotal.Inc()
		}
		logger.L(ctx, p.logger).Debug("retrying after token renewal", "method", req.Method, "path", req.Path)
		return p.send(ctx, req, out, attempt+1, next)
	}

	if resp.Status < 200 || resp.Status > 299 {
		return statusError(resp.Status, req.Auth, resp.Body)
	}
	return decodeBody(resp.Body, out)
}

// renew returns the token to retry with after rejected got a 401.
func (p *Pipeline) renew(ctx context.Context, rejected string) (string, error) {
	current := p.store.Get().AccessToken
	switch {
	case current != "" && current != rejected:
		// A refresh or login finished after this request was sent.
		return current, nil
	case current == "" && rejected != "":
		// The session ended while this request was in flight.
		return "", domain.ErrAuthenticationExpired.WithDetails("session ended")
	}

	token, err := p.refresh.join(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", transportError(err)
		}
		return "", err
	}
	return token, nil
}

// doRefresh runs one refresh round and applies it to the store.
func (p *Pipeline) doRefresh(ctx context.Context) refreshOutcome {
	ctx = logger.WithRequestID(ctx, newRequestID())
	log := logger.L(ctx, p.logger)
	before := p.store.Get().AccessToken

	req := Request{Method: http.MethodPost, Path: RefreshPath, Auth: AuthNone, Credentialed: true}
	resp, err := p.sender.Send(ctx, req, "")

	var result domain.RefreshResult
	switch {
	case err != nil:
		err = transportError(err)
	case resp.Status < 200 || resp.Status > 299:
		err = statusError(resp.Status, req.Auth, resp.Body)
	default:
		err = decodeBody(resp.Body, &result)
		if err == nil && result.AccessToken == "" {
			err = domain.ErrUnexpectedResponse.WithDetails("refresh response without access token")
		}
	}

	if err != nil {
		log.Warn("token refresh failed", "error", err)
		return refreshOutcome{
			err:     domain.ErrAuthenticationExpired.WithDetails("token refresh failed").WithCause(err),
			expired: p.endSession(before),
		}
	}

	if before == "" {
		// No session to update; the token only serves the waiting retries.
		return refreshOutcome{token: result.AccessToken}
	}
	if !p.store.ReplaceToken(before, result.AccessToken) {
		// An explicit login or logout won the race.
		if current := p.store.Get().AccessToken; current != "" {
			return refreshOutcome{token: current}
		}
		return refreshOutcome{err: domain.ErrAuthenticationExpired.WithDetails("session ended")}
	}

	log.Debug("access token refreshed")
	return refreshOutcome{token: result.AccessToken}
}

// endSession clears the session if it still holds token. Concurrent calls
// for the same token clear once and only one of them reports true.
func (p *Pipeline) endSession(token string) bool {
	if !p.store.ClearIfToken(token) {
		return false
	}
	p.logger.Info("session expired, credentials cleared")
	if p.metrics != nil {
		p.metrics.ForcedLogouts.Inc()
	}
	return true
}

// notifyExpired runs the session-expired hooks. A round that ended the
// session notifies only after the coordinator is idle again, so hooks may
// use the pipeline.
func (p *Pipeline) notifyExpired() {
	p.hooksMu.Lock()
	hooks := make([]func(), 0, len(p.hooks))
	for _, fn := range p.hooks {
		hooks = append(hooks, fn)
	}
	p.hooksMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

func (p *Pipeline) observeRefresh(out refreshOutcome, waiters int) {
	if p.metrics != nil {
		p.metrics.ObserveRefresh(out.err == nil, waiters)
	}
	if out.expired {
		p.notifyExpired()
	}
}
