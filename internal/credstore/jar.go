package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/yndnr/keymesh-go/internal/storage"
)

const cookieKeyPrefix = "cookies/"

// CookieJar is an http.CookieJar whose cookies for a single origin are
// persisted next to the credentials. It carries the server's refresh
// cookie between invocations of a short-lived process.
type CookieJar struct {
	mu     sync.Mutex
	jar    *cookiejar.Jar
	origin *url.URL
	key    string
	saved  map[string]savedCookie
	store  *KVStore
	now    func() time.Time
}

var _ http.CookieJar = (*CookieJar)(nil)

type savedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

func (c savedCookie) id() string {
	return c.Name + "|" + c.Path
}

func (c savedCookie) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

// CookieJar returns a jar bound to origin that persists through the
// store's engine, sealed like the credentials when a passphrase is set.
func (s *KVStore) CookieJar(ctx context.Context, origin string) (*CookieJar, error) {
	return newCookieJar(ctx, s, origin, time.Now)
}

func newCookieJar(ctx context.Context, s *KVStore, origin string, now func() time.Time) (*CookieJar, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("credstore: parse origin: %w", err)
	}
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	j := &CookieJar{
		jar:    inner,
		origin: u,
		key:    cookieKeyPrefix + u.Host,
		saved:  make(map[string]savedCookie),
		store:  s,
		now:    now,
	}
	if err := j.load(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *CookieJar) load(ctx context.Context) error {
	raw, err := j.store.engine.Get(ctx, j.key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("credstore: read cookies: %w", err)
	}
	if j.store.sealer != nil {
		if raw, err = j.store.sealer.Open(raw, []byte(j.key)); err != nil {
			return err
		}
	}

	var cookies []savedCookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		j.store.logger.Warn("discarding undecodable cookie record", "error", err)
		return nil
	}

	now := j.now()
	replay := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		j.saved[c.id()] = c
		replay = append(replay, c.cookie())
	}
	j.jar.SetCookies(j.origin, replay)
	return nil
}

// SetCookies implements http.CookieJar.
func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)
	if u.Host != j.origin.Host {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, c := range cookies {
		sc := savedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.MaxAge > 0 {
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || (!sc.Expires.IsZero() && !sc.Expires.After(now)) {
			delete(j.saved, sc.id())
			continue
		}
		j.saved[sc.id()] = sc
	}
	j.persistLocked()
}

// Cookies implements http.CookieJar.
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func (j *CookieJar) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), j.store.timeout)
	defer cancel()

	if len(j.saved) == 0 {
		if err := j.store.engine.Delete(ctx, j.key); err != nil {
			j.store.logger.Error("failed to delete persisted cookies", "error", err)
		}
		return
	}

	cookies := make([]savedCookie, 0, len(j.saved))
	for _, c := range j.saved {
		cookies = append(cookies, c)
	}
	raw, err := json.Marshal(cookies)
	if err != nil {
		j.store.logger.Error("failed to encode cookies", "error", err)
		return
	}
	if j.store.sealer != nil {
		if raw, err = j.store.sealer.Seal(raw, []byte(j.key)); err != nil {
			j.store.logger.Error("failed to seal cookies", "error", err)
			return
		}
	}
	if err := j.store.engine.Set(ctx, j.key, raw); err != nil {
		j.store.logger.Error("failed to persist cookies", "error", err)
	}
}
