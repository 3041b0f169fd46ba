package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/yndnr/keymesh-go/internal/connection"
	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/credstore"
	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
)

// Stage identifies which step of a composite operation failed.
type Stage string

const (
	StageRegister Stage = "register"
	StageLogin    Stage = "login"
)

// StageError reports the step of Register that failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RegisterInput contains parameters for account registration.
type RegisterInput struct {
	Username        string `json:"username" validate:"required,min=3,max=64"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=Password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionManager owns the client session. It is the only writer of the
// credential store outside the pipeline's refresh path.
type SessionManager struct {
	api      Doer
	store    credstore.Store
	validate *validator.Validate
	logger   logger.Logger
	metrics  *metric.Registry

	mu      sync.RWMutex
	session domain.Session

	subsMu  sync.Mutex
	subs    map[int]func(domain.Session)
	nextSub int

	unhook func()
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionLogger sets the manager logger.
func WithSessionLogger(l logger.Logger) SessionOption {
	return func(m *SessionManager) {
		m.logger = l
	}
}

// WithSessionMetrics updates the authenticated gauge on every change.
func WithSessionMetrics(r *metric.Registry) SessionOption {
	return func(m *SessionManager) {
		m.metrics = r
	}
}

// WithExpiryNotifier subscribes the manager to forced logouts.
func WithExpiryNotifier(n ExpiryNotifier) SessionOption {
	return func(m *SessionManager) {
		m.unhook = n.OnSessionExpired(m.handleExpired)
	}
}

// NewSessionManager creates a manager in the Initializing state.
func NewSessionManager(api Doer, store credstore.Store, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		api:      api,
		store:    store,
		validate: newValidator(),
		session:  domain.Session{Status: domain.StatusInitializing},
		subs:     make(map[int]func(domain.Session)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.OrDefault(m.logger).With("component", "session")
	return m
}

// Close detaches the manager from the pipeline.
func (m *SessionManager) Close() {
	if m.unhook != nil {
		m.unhook()
		m.unhook = nil
	}
}

// Current returns a copy of the session. The access token reflects the
// store, so a token renewed by the pipeline is visible immediately.
func (m *SessionManager) Current() domain.Session {
	m.mu.RLock()
	s := m.session.Clone()
	m.mu.RUnlock()

	if s.Status == domain.StatusAuthenticated {
		if tok := m.store.Get().AccessToken; tok != "" {
			s.AccessToken = tok
		}
	}
	return s
}

// Subscribe registers fn to receive every session change. It returns a
// function that removes the subscription.
func (m *SessionManager) Subscribe(fn func(domain.Session)) (unsubscribe func()) {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

// InitAuth restores the persisted session. A cached session is reported
// as authenticated at once and then verified against the server; a failed
// verification clears it.
func (m *SessionManager) InitAuth(ctx context.Context) domain.Session {
	creds := m.store.Get()
	if !creds.Complete() {
		if !creds.Empty() {
			m.store.Clear()
		}
		m.set(domain.Unauthenticated())
		return m.Current()
	}

	m.set(domain.Authenticated(creds.AccessToken, creds.User))

	if err := m.api.Do(ctx, connection.Get(pathMe), nil); err != nil {
		m.logger.Warn("stored session rejected", "error", err)
		// A failed refresh has already ended the session through the
		// expiry hook.
		if m.Current().Status != domain.StatusUnauthenticated {
			m.store.Clear()
			m.set(domain.Unauthenticated())
		}
		return m.Current()
	}

	m.logger.Debug("session restored", "user", creds.User.Username)
	return m.Current()
}

// Login authenticates with username and password and stores the session.
// On failure the current session is left unchanged.
func (m *SessionManager) Login(ctx context.Context, username, password string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, domain.ErrValidationFailure.WithDetails("username and password are required")
	}

	req, err := connection.NewRequest(http.MethodPost, pathLogin, loginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	var res domain.LoginResult
	if err := m.api.Do(ctx, req.Unauthenticated().WithCredentials(), &res); err != nil {
		return nil, err
	}
	if res.AccessToken == "" || res.User == nil {
		return nil, domain.ErrUnexpectedResponse.WithDetails("login response without token or user")
	}

	m.store.Set(res.AccessToken, res.User)
	m.set(domain.Authenticated(res.AccessToken, res.User))
	m.logger.Info("logged in", "user", res.User.Username)

	return res.User.Clone(), nil
}

// Register creates an account and then logs in with the same credentials.
// Errors are *StageError values naming the step that failed.
func (m *SessionManager) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := m.validate.Struct(in); err != nil {
		return nil, &StageError{Stage: StageRegister, Err: validationError(err)}
	}

	req, err := connection.NewRequest(http.MethodPost, pathRegister, registerRequest{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		return nil, &StageError{Stage: StageRegister, Err: err}
	}
	if err := m.api.Do(ctx, req.Unauthenticated(), nil); err != nil {
		return nil, &StageError{Stage: StageRegister, Err: err}
	}
	m.logger.Info("account registered", "user", in.Username)

	user, err := m.Login(ctx, in.Username, in.Password)
	if err != nil {
		return nil, &StageError{Stage: StageLogin, Err: err}
	}
	return user, nil
}

// Logout ends the session. The server call is best effort; local state
// is always cleared.
func (m *SessionManager) Logout(ctx context.Context) {
	req := connection.Request{Method: http.MethodPost, Path: pathLogout}
	if err := m.api.Do(ctx, req.Unauthenticated().WithCredentials(), nil); err != nil {
		m.logger.Warn("server logout failed", "error", err)
	}

	m.store.Clear()
	m.set(domain.Unauthenticated())
	m.logger.Info("logged out")
}

// RefreshUser re-fetches the profile and replaces the cached user. A
// failure is returned without ending the session.
func (m *SessionManager) RefreshUser(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := m.api.Do(ctx, connection.Get(pathMe), &user); err != nil {
		return nil, err
	}

	creds := m.store.Get()
	if creds.AccessToken == "" {
		// The session ended while the profile was in flight.
		return user.Clone(), nil
	}
	m.store.Set(creds.AccessToken, &user)
	m.set(domain.Authenticated(creds.AccessToken, &user))

	return user.Clone(), nil
}

// TokenSource exposes the stored access token as an oauth2.TokenSource.
// Expiry is read from the token's claims when it is a JWT.
func (m *SessionManager) TokenSource() oauth2.TokenSource {
	return storeTokenSource{store: m.store}
}

type storeTokenSource struct {
	store credstore.Store
}

func (ts storeTokenSource) Token() (*oauth2.Token, error) {
	creds := ts.store.Get()
	if creds.AccessToken == "" {
		return nil, domain.ErrAuthenticationExpired.WithDetails("not logged in")
	}

	tok := &oauth2.Token{
		AccessToken: creds.AccessToken,
		TokenType:   domain.TokenType,
	}
	if claims, err := domain.ParseTokenClaims(creds.AccessToken); err == nil {
		tok.Expiry = claims.ExpiresAt
	}
	return tok, nil
}

func (m *SessionManager) handleExpired() {
	m.logger.Warn("session expired, logged out")
	m.set(domain.Unauthenticated())
}

// set replaces the session and notifies subscribers outside the lock.
func (m *SessionManager) set(s domain.Session) {
	m.mu.Lock()
	m.session = s.Clone()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetAuthenticated(s.IsAuthenticated())
	}

	m.subsMu.Lock()
	subs := make([]func(domain.Session), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range subs {
		fn(s.Clone())
	}
}
