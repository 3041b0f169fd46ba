package authtest

import (
	"crypto/rand"
	"encoding/hex"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/pkg/token"
)

const (
	// BasePath is the prefix every endpoint is mounted under.
	BasePath = "/api"

	// RefreshCookie is the name of the refresh token cookie.
	RefreshCookie = "refresh_token"

	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

type account struct {
	user domain.User
	hash []byte
}

// Server is a fake identity service.
type Server struct {
	echo   *echo.Echo
	server *httptest.Server
	key    []byte

	mu         sync.Mutex
	accounts   map[string]*account       // by username
	refresh    map[string]string         // refresh token digest -> user ID
	keys       map[string]*domain.APIKey // stored without secret
	keyHashes  map[string]string         // key ID -> secret digest
	keyOwner   map[string]string         // key ID -> user ID
	keyOrder   []string
	generation int64
	failures   map[string]int // "METHOD path" -> status

	rejectAll    atomic.Bool
	failRefresh  atomic.Bool
	refreshDelay atomic.Int64
	refreshCalls atomic.Int64

	counts sync.Map // "METHOD path" -> *atomic.Int64
	now    func() time.Time
}

// NewServer starts a fake identity service. Call Close when done.
func NewServer() *Server {
	s := &Server{
		echo:      echo.New(),
		key:       randomBytes(32),
		accounts:  make(map[string]*account),
		refresh:   make(map[string]string),
		keys:      make(map[string]*domain.APIKey),
		keyHashes: make(map[string]string),
		keyOwner:  make(map[string]string),
		failures:  make(map[string]int),
		now:       time.Now,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.routes()
	s.server = httptest.NewServer(s.echo)
	return s
}

// URL returns the API base URL, including BasePath.
func (s *Server) URL() string {
	return s.server.URL + BasePath
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.Close()
}

// AddUser registers an account directly.
func (s *Server) AddUser(username, email, password string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.createAccountLocked(username, email, password)
	return acct.user
}

// IssueAccessToken mints a valid access token for username.
func (s *Server) IssueAccessToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[username]
	if !ok {
		return ""
	}
	tok, _ := s.mintAccessLocked(&acct.user)
	return tok
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// RevokeRefreshTokens invalidates every refresh cookie issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	s.refresh = make(map[string]string)
	s.mu.Unlock()
}

// RejectAllTokens makes every bearer request fail with 401, including
// those carrying freshly refreshed tokens.
func (s *Server) RejectAllTokens(v bool) {
	s.rejectAll.Store(v)
}

// FailRefresh makes the refresh endpoint answer 401.
func (s *Server) FailRefresh(v bool) {
	s.failRefresh.Store(v)
}

// DelayRefresh holds each refresh response for d.
func (s *Server) DelayRefresh(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// Fail makes method+path answer with status until cleared with status 0.
// path is relative to BasePath.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == 0 {
		delete(s.failures, method+" "+BasePath+path)
		return
	}
	s.failures[method+" "+BasePath+path] = status
}

// RefreshCalls returns how many refresh requests were received.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// Calls returns how many requests hit method+route. route is the echo
// route pattern relative to BasePath, e.g. "/auth/api-keys/:id".
func (s *Server) Calls(method, route string) int64 {
	v, ok := s.counts.Load(method + " " + BasePath + route)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// APIKey returns the stored key. The server keeps only the secret's digest.
func (s *Server) APIKey(id string) (domain.APIKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return domain.APIKey{}, false
	}
	return *k, true
}

// VerifyAPIKey reports whether secret belongs to key id.
func (s *Server) VerifyAPIKey(id, secret string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	digest, ok := s.keyHashes[id]
	return ok && token.Verify(secret, digest)
}

func (s *Server) createAccountLocked(username, email, password string) *account {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	now := s.now().UTC()
	acct := &account{
		user: domain.User{
			ID:        "usr_" + randomHex(8),
			Username:  username,
			Email:     email,
			Active:    true,
			CreatedAt: &now,
		},
		hash: hash,
	}
	s.accounts[username] = acct
	return acct
}

func (s *Server) accountByIDLocked(id string) *account {
	for _, acct := range s.accounts {
		if acct.user.ID == id {
			return acct
		}
	}
	return nil
}

func (s *Server) count(c echo.Context) {
	key := c.Request().Method + " " + c.Path()
	v, _ := s.counts.LoadOrStore(key, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func (s *Server) failure(c echo.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[c.Request().Method+" "+c.Request().URL.Path]
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

func randomHex(n int) string {
	return hex.EncodeToString(randomBytes(n))
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, map[string]string{"code": code, "message": message})
}
