package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/storage"
	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
)

// Engine keys.
const (
	recordKey = "credentials/session"
	saltKey   = "credentials/salt"
)

const defaultWriteTimeout = 5 * time.Second

// KVStore is a Store backed by a storage.KVEngine.
type KVStore struct {
	mu     sync.RWMutex
	creds  Credentials
	engine storage.KVEngine
	sealer *Sealer

	passphrase string
	timeout    time.Duration
	logger     logger.Logger
}

var _ TokenStore = (*KVStore)(nil)

// Option configures a KVStore.
type Option func(*KVStore)

// WithPassphrase seals the persisted record with a key derived from passphrase.
func WithPassphrase(passphrase string) Option {
	return func(s *KVStore) {
		s.passphrase = passphrase
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *KVStore) {
		s.logger = l
	}
}

// WithTimeout bounds each engine call.
func WithTimeout(d time.Duration) Option {
	return func(s *KVStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewKVStore loads the persisted record from engine and returns the store.
//
// A record that is half-present or undecodable is discarded (logged) and
// the store starts empty. A record sealed under a different passphrase is
// reported as ErrUnsealFailed so the caller can tell the user.
func NewKVStore(ctx context.Context, engine storage.KVEngine, opts ...Option) (*KVStore, error) {
	s := &KVStore{
		engine:  engine,
		timeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDefault(s.logger).With("component", "credstore")

	if s.passphrase != "" {
		sealer, err := s.loadSealer(ctx)
		if err != nil {
			return nil, err
		}
		s.sealer = sealer
	}

	creds, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.creds = creds
	return s, nil
}

// NewMemoryStore returns a non-durable store.
func NewMemoryStore() *KVStore {
	return &KVStore{
		engine:  storage.NewMemoryEngine(),
		timeout: defaultWriteTimeout,
		logger:  logger.Discard(),
	}
}

func (s *KVStore) loadSealer(ctx context.Context) (*Sealer, error) {
	salt, err := s.engine.Get(ctx, saltKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		salt, err = NewSalt()
		if err != nil {
			return nil, err
		}
		if err := s.engine.Set(ctx, saltKey, salt); err != nil {
			return nil, fmt.Errorf("credstore: persist salt: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("credstore: read salt: %w", err)
	}
	return NewSealer(s.passphrase, salt)
}

func (s *KVStore) load(ctx context.Context) (Credentials, error) {
	raw, err := s.engine.Get(ctx, recordKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("credstore: read record: %w", err)
	}

	if s.sealer != nil {
		raw, err = s.sealer.Open(raw, []byte(recordKey))
		if err != nil {
			return Credentials{}, err
		}
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		s.logger.Warn("discarding undecodable credential record", "error", err)
		return Credentials{}, nil
	}
	if !creds.Complete() {
		s.logger.Warn("discarding incomplete credential record")
		return Credentials{}, nil
	}
	return creds, nil
}

// Get returns a copy of the current credentials.
func (s *KVStore) Get() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.clone()
}

// Set replaces both fields and persists them.
func (s *KVStore) Set(accessToken string, user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = Credentials{AccessToken: accessToken, User: user.Clone()}
	s.persistLocked()
}

// Clear drops both fields and removes the persisted record.
func (s *KVStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
}

// ReplaceToken swaps the access token if the current one is old.
func (s *KVStore) ReplaceToken(old, next string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds.AccessToken != old {
		return false
	}
	s.creds.AccessToken = next
	s.persistLocked()
	return true
}

// ClearIfToken clears the store if it still holds token.
func (s *KVStore) ClearIfToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds.Empty() || s.creds.AccessToken != token {
		return false
	}
	s.clearLocked()
	return true
}

// Close closes the underlying engine.
func (s *KVStore) Close() error {
	return s.engine.Close()
}

func (s *KVStore) clearLocked() {
	s.creds = Credentials{}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.engine.Delete(ctx, recordKey); err != nil {
		s.logger.Error("failed to delete persisted credentials", "error", err)
	}
}

func (s *KVStore) persistLocked() {
	raw, err := json.Marshal(s.creds)
	if err != nil {
		s.logger.Error("failed to encode credentials", "error", err)
		return
	}

	if s.sealer != nil {
		raw, err = s.sealer.Seal(raw, []byte(recordKey))
		if err != nil {
			s.logger.Error("failed to seal credentials", "error", err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.engine.Set(ctx, recordKey, raw); err != nil {
		s.logger.Error("failed to persist credentials", "error", err)
	}
}
