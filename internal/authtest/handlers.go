package authtest

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/pkg/token"
)

type accessClaims struct {
	Username   string `json:"username"`
	Generation int64  `json:"gen"`
	jwt.RegisteredClaims
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

type createKeyRequest struct {
	Name          string            `json:"name"`
	ExpiresInDays *int              `json:"expiresInDays"`
	Permissions   domain.Permission `json:"permissions"`
}

func (s *Server) routes() {
	api := s.echo.Group(BasePath, s.instrument)

	api.POST("/auth/login", s.login)
	api.POST("/auth/register", s.register)
	api.POST("/auth/refresh", s.refreshToken)
	api.POST("/auth/logout", s.logout)

	authed := api.Group("", s.authenticate)
	authed.GET("/auth/me", s.me)
	authed.POST("/auth/api-keys", s.createKey)
	authed.GET("/auth/api-keys", s.listKeys)
	authed.GET("/auth/api-keys/:id", s.getKey)
	authed.DELETE("/auth/api-keys/:id", s.revokeKey)
}

// instrument counts requests and applies injected failures.
func (s *Server) instrument(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.count(c)
		if status := s.failure(c); status != 0 {
			return errorJSON(c, status, "INJECTED", http.StatusText(status))
		}
		return next(c)
	}
}

// authenticate validates the bearer token and stores the user ID.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		}
		if s.rejectAll.Load() {
			return errorJSON(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "access token expired")
		}

		claims := &accessClaims{}
		tkn, err := jwt.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
			return s.key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tkn.Valid {
			return errorJSON(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid access token")
		}

		s.mu.Lock()
		current := s.generation
		s.mu.Unlock()
		if claims.Generation < current {
			return errorJSON(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "access token expired")
		}

		c.Set("user_id", claims.Subject)
		return next(c)
	}
}

func (s *Server) mintAccessLocked(u *domain.User) (string, error) {
	now := s.now()
	claims := accessClaims{
		Username:   u.Username,
		Generation: s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[req.Username]
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(req.Password)) != nil {
		return errorJSON(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
	}

	now := s.now().UTC()
	acct.user.LastLoginAt = &now

	access, err := s.mintAccessLocked(&acct.user)
	if err != nil {
		return err
	}
	refresh, err := token.Generate(token.PrefixRefresh)
	if err != nil {
		return err
	}
	s.refresh[token.Hash(refresh)] = acct.user.ID

	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Value:    refresh,
		Path:     BasePath + "/auth",
		MaxAge:   int(refreshTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	user := acct.user
	return c.JSON(http.StatusOK, domain.LoginResult{
		AccessToken:      access,
		TokenType:        domain.TokenType,
		ExpiresIn:        int64(accessTTL / time.Second),
		RefreshExpiresIn: int64(refreshTTL / time.Second),
		User:             &user,
	})
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid payload")
	}
	if len(req.Username) < 3 || !strings.Contains(req.Email, "@") || len(req.Password) < 8 {
		return errorJSON(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid registration data")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[req.Username]; exists {
		return errorJSON(c, http.StatusConflict, "USERNAME_TAKEN", "Username already exists")
	}
	for _, acct := range s.accounts {
		if strings.EqualFold(acct.user.Email, req.Email) {
			return errorJSON(c, http.StatusConflict, "EMAIL_TAKEN", "Email already registered")
		}
	}

	acct := s.createAccountLocked(req.Username, req.Email, req.Password)
	return c.JSON(http.StatusCreated, acct.user)
}

func (s *Server) refreshToken(c echo.Context) error {
	s.refreshCalls.Add(1)
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}
	if s.failRefresh.Load() {
		return errorJSON(c, http.StatusUnauthorized, "REFRESH_EXPIRED", "refresh token expired")
	}

	cookie, err := c.Cookie(RefreshCookie)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "REFRESH_MISSING", "refresh token missing")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.refresh[token.Hash(cookie.Value)]
	acct := s.accountByIDLocked(userID)
	if !ok || acct == nil {
		return errorJSON(c, http.StatusUnauthorized, "REFRESH_INVALID", "refresh token invalid")
	}

	access, err := s.mintAccessLocked(&acct.user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, domain.RefreshResult{
		AccessToken: access,
		TokenType:   domain.TokenType,
		ExpiresIn:   int64(accessTTL / time.Second),
	})
}

func (s *Server) logout(c echo.Context) error {
	if cookie, err := c.Cookie(RefreshCookie); err == nil {
		s.mu.Lock()
		delete(s.refresh, token.Hash(cookie.Value))
		s.mu.Unlock()
	}
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Path:     BasePath + "/auth",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) me(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.accountByIDLocked(c.Get("user_id").(string))
	if acct == nil {
		return errorJSON(c, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
	}
	return c.JSON(http.StatusOK, acct.user)
}

func (s *Server) createKey(c echo.Context) error {
	var req createKeyRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid payload")
	}
	if strings.TrimSpace(req.Name) == "" {
		return errorJSON(c, http.StatusBadRequest, "VALIDATION_FAILED", "name is required")
	}
	if req.ExpiresInDays != nil && !domain.IsValidExpiryDays(*req.ExpiresInDays) {
		return errorJSON(c, http.StatusBadRequest, "VALIDATION_FAILED", "expiresInDays must be 30, 60 or 90")
	}
	if req.Permissions == "" {
		req.Permissions = domain.DefaultPermission
	}
	if !domain.IsValidPermission(string(req.Permissions)) {
		return errorJSON(c, http.StatusBadRequest, "VALIDATION_FAILED", "unknown permission")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	secret, err := token.Generate(token.PrefixAPIKey)
	if err != nil {
		return err
	}
	key := &domain.APIKey{
		ID:          "key_" + randomHex(8),
		Name:        req.Name,
		Active:      true,
		CreatedAt:   now,
		Permissions: req.Permissions,
		Secret:      &secret,
	}
	if req.ExpiresInDays != nil {
		exp := now.AddDate(0, 0, *req.ExpiresInDays)
		key.ExpiresAt = &exp
	}

	stored := key.WithoutSecret()
	s.keys[key.ID] = &stored
	s.keyHashes[key.ID] = token.Hash(secret)
	s.keyOwner[key.ID] = c.Get("user_id").(string)
	s.keyOrder = append(s.keyOrder, key.ID)

	return c.JSON(http.StatusCreated, key)
}

func (s *Server) listKeys(c echo.Context) error {
	userID := c.Get("user_id").(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]domain.APIKey, 0)
	for _, id := range s.keyOrder {
		if s.keyOwner[id] == userID {
			keys = append(keys, s.keys[id].WithoutSecret())
		}
	}
	return c.JSON(http.StatusOK, keys)
}

func (s *Server) getKey(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.ownedKeyLocked(c)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "API_KEY_NOT_FOUND", "API key not found")
	}
	return c.JSON(http.StatusOK, key.WithoutSecret())
}

func (s *Server) revokeKey(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.ownedKeyLocked(c)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "API_KEY_NOT_FOUND", "API key not found")
	}
	if !key.Active {
		return errorJSON(c, http.StatusConflict, "API_KEY_REVOKED", "API key already revoked")
	}
	key.Active = false
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ownedKeyLocked(c echo.Context) (*domain.APIKey, bool) {
	id := c.Param("id")
	key, ok := s.keys[id]
	if !ok || s.keyOwner[id] != c.Get("user_id").(string) {
		return nil, false
	}
	return key, true
}
