package service

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/yndnr/keymesh-go/internal/connection"
	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
)

// revokeConcurrency bounds parallel calls in RevokeMany.
const revokeConcurrency = 4

// CreateAPIKeyInput contains parameters for creating an API key.
type CreateAPIKeyInput struct {
	Name string `json:"name" validate:"required,max=100"`

	// ExpiresInDays is nil for a key that never expires.
	ExpiresInDays *int `json:"expiresInDays" validate:"omitempty,oneof=30 60 90"`

	// Permission defaults to the service's default permission when empty.
	Permission domain.Permission `json:"permissions" validate:"omitempty,oneof=READ_ONLY READ_WRITE FULL_ACCESS"`
}

type createAPIKeyRequest struct {
	Name          string            `json:"name"`
	ExpiresInDays *int              `json:"expiresInDays,omitempty"`
	Permissions   domain.Permission `json:"permissions"`
}

// APIKeyService manages API keys of the logged-in user. It keeps the last
// listing as a replaceable cache; secrets are never cached.
type APIKeyService struct {
	api               Doer
	validate          *validator.Validate
	defaultPermission domain.Permission
	now               func() time.Time
	logger            logger.Logger

	mu     sync.RWMutex
	cached []domain.APIKey
}

// APIKeyOption configures an APIKeyService.
type APIKeyOption func(*APIKeyService)

// WithDefaultPermission sets the permission used when none is given.
func WithDefaultPermission(p domain.Permission) APIKeyOption {
	return func(s *APIKeyService) {
		if domain.IsValidPermission(string(p)) {
			s.defaultPermission = p
		}
	}
}

// WithClock sets the time source used by IsExpired.
func WithClock(now func() time.Time) APIKeyOption {
	return func(s *APIKeyService) {
		s.now = now
	}
}

// WithAPIKeyLogger sets the service logger.
func WithAPIKeyLogger(l logger.Logger) APIKeyOption {
	return func(s *APIKeyService) {
		s.logger = l
	}
}

// NewAPIKeyService creates an APIKeyService.
func NewAPIKeyService(api Doer, opts ...APIKeyOption) *APIKeyService {
	s := &APIKeyService{
		api:               api,
		validate:          newValidator(),
		defaultPermission: domain.DefaultPermission,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDefault(s.logger).With("component", "apikey")
	return s
}

// DefaultPermission returns the permission applied when none is given.
func (s *APIKeyService) DefaultPermission() domain.Permission {
	return s.defaultPermission
}

// Create creates a key. The returned key is the only place its secret
// ever appears.
func (s *APIKeyService) Create(ctx context.Context, in CreateAPIKeyInput) (*domain.APIKey, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if in.Permission == "" {
		in.Permission = s.defaultPermission
	}

	req, err := connection.NewRequest(http.MethodPost, pathAPIKeys, createAPIKeyRequest{
		Name:          in.Name,
		ExpiresInDays: in.ExpiresInDays,
		Permissions:   in.Permission,
	})
	if err != nil {
		return nil, err
	}

	var key domain.APIKey
	if err := s.api.Do(ctx, req, &key); err != nil {
		return nil, err
	}
	if !key.HasSecret() {
		return nil, domain.ErrUnexpectedResponse.WithDetails("created key without secret")
	}

	s.mu.Lock()
	s.cached = append(s.cached, key.WithoutSecret())
	s.mu.Unlock()

	s.logger.Info("api key created", "key_id", key.ID, "permission", key.Permissions)
	return &key, nil
}

// List returns the user's keys in server order, without secrets, and
// replaces the cache.
func (s *APIKeyService) List(ctx context.Context) ([]domain.APIKey, error) {
	var keys []domain.APIKey
	if err := s.api.Do(ctx, connection.Get(pathAPIKeys), &keys); err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i] = keys[i].WithoutSecret()
	}

	s.mu.Lock()
	s.cached = append([]domain.APIKey(nil), keys...)
	s.mu.Unlock()

	return keys, nil
}

// Get returns one key without its secret.
func (s *APIKeyService) Get(ctx context.Context, id string) (*domain.APIKey, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrValidationFailure.WithDetails("key id is required")
	}

	var key domain.APIKey
	if err := s.api.Do(ctx, connection.Get(keyPath(id)), &key); err != nil {
		return nil, err
	}
	key = key.WithoutSecret()

	s.updateCached(key.ID, func(k *domain.APIKey) { *k = key })
	return &key, nil
}

// Revoke deactivates a key. A key the server reports as already revoked
// or absent counts as revoked.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrValidationFailure.WithDetails("key id is required")
	}

	err := s.api.Do(ctx, connection.Delete(keyPath(id)), nil)
	switch {
	case err == nil:
		s.logger.Info("api key revoked", "key_id", id)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		s.logger.Debug("api key already revoked", "key_id", id, "error", err)
	default:
		return err
	}

	s.updateCached(id, func(k *domain.APIKey) { k.Active = false })
	return nil
}

// RevokeMany revokes ids concurrently and joins the failures.
func (s *APIKeyService) RevokeMany(ctx context.Context, ids []string) error {
	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(revokeConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := s.Revoke(gctx, id); err != nil {
				errs[i] = &RevokeError{KeyID: id, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// RevokeError names the key a bulk revoke failed on.
type RevokeError struct {
	KeyID string
	Err   error
}

func (e *RevokeError) Error() string {
	return e.KeyID + ": " + e.Err.Error()
}

func (e *RevokeError) Unwrap() error {
	return e.Err
}

// Cached returns the last listing, including local updates since.
func (s *APIKeyService) Cached() []domain.APIKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.APIKey(nil), s.cached...)
}

// IsExpired reports whether key's expiry is in the past.
func (s *APIKeyService) IsExpired(key domain.APIKey) bool {
	return key.IsExpired(s.now())
}

// Status derives key's display status at the current time.
func (s *APIKeyService) Status(key domain.APIKey) domain.KeyStatus {
	return key.Status(s.now())
}

func (s *APIKeyService) updateCached(id string, fn func(*domain.APIKey)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cached {
		if s.cached[i].ID == id {
			fn(&s.cached[i])
			return
		}
	}
}

func keyPath(id string) string {
	return pathAPIKeys + "/" + url.PathEscape(id)
}
