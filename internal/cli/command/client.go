package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keymesh-go/internal/connection"
	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/core/service"
	"github.com/yndnr/keymesh-go/internal/credstore"
	"github.com/yndnr/keymesh-go/internal/infra/buildinfo"
	"github.com/yndnr/keymesh-go/internal/infra/tlsroots"
	"github.com/yndnr/keymesh-go/internal/storage"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
)

// errNotLoggedIn is returned by commands that need a session.
var errNotLoggedIn = errors.New("not logged in; run 'keymesh-cli login' first")

// Client is the wired client stack for one invocation.
type Client struct {
	Server   string
	Store    *credstore.KVStore
	Pipeline *connection.Pipeline
	Session  *service.SessionManager
	Keys     *service.APIKeyService
	Metrics  *metric.Registry
}

// openClient opens the credential store and builds the client stack on it.
func openClient(ctx context.Context, e *env) (*Client, error) {
	cfg := e.cfg

	engine, err := storage.Open(ctx, cfg.KVConfig(), e.log)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	store, err := credstore.NewKVStore(ctx, engine,
		credstore.WithPassphrase(cfg.Store.Passphrase),
		credstore.WithLogger(e.log),
	)
	if err != nil {
		_ = engine.Close()
		if errors.Is(err, credstore.ErrUnsealFailed) {
			return nil, fmt.Errorf("%w (check KEYMESH_STORE__PASSPHRASE)", err)
		}
		return nil, err
	}

	server := connection.NormalizeServer(cfg.Server)
	jar, err := store.CookieJar(ctx, server)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	tlsConfig, err := tlsroots.ClientConfigFor(cfg.TLS.CAFile)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	metrics := metric.NewRegistry()
	transport := connection.NewHTTPTransport(connection.TransportConfig{
		Server:    server,
		Timeout:   cfg.Timeout,
		UserAgent: buildinfo.UserAgent(),
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Jar:       jar,
		TLS:       tlsConfig,
		Logger:    e.log,
		Metrics:   metrics,
	})
	pipeline := connection.NewPipeline(transport, store,
		connection.WithLogger(e.log),
		connection.WithMetrics(metrics),
		connection.WithRefreshTimeout(cfg.RefreshTimeout),
	)

	cl := &Client{
		Server:   server,
		Store:    store,
		Pipeline: pipeline,
		Metrics:  metrics,
		Session: service.NewSessionManager(pipeline, store,
			service.WithSessionLogger(e.log),
			service.WithSessionMetrics(metrics),
			service.WithExpiryNotifier(pipeline),
		),
		Keys: service.NewAPIKeyService(pipeline,
			service.WithDefaultPermission(domain.Permission(cfg.APIKey.DefaultPermission)),
			service.WithAPIKeyLogger(e.log),
		),
	}
	pipeline.OnSessionExpired(func() {
		e.notef("Session expired. Run 'keymesh-cli login' to sign in again.\n")
	})
	return cl, nil
}

// Close releases the store.
func (cl *Client) Close() error {
	cl.Session.Close()
	return cl.Store.Close()
}

// clientAction adapts fn into an action that runs with an open client.
// When restore is set the persisted session is verified first.
func clientAction(restore bool, fn func(c *cli.Context, e *env, cl *Client) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := setup(c)
		if err != nil {
			return err
		}
		cl, err := openClient(c.Context, e)
		if err != nil {
			return err
		}
		defer func() {
			if path := e.flags.MetricsFile; path != "" {
				if err := cl.Metrics.WriteTextfile(path); err != nil {
					e.log.Warn("write metrics file", "path", path, "error", err)
				}
			}
			if err := cl.Close(); err != nil {
				e.log.Warn("close credential store", "error", err)
			}
		}()

		if restore {
			cl.Session.InitAuth(c.Context)
		}
		return fn(c, e, cl)
	}
}

// requireSession returns the current user or errNotLoggedIn.
func requireSession(cl *Client) (*domain.User, error) {
	s := cl.Session.Current()
	if !s.IsAuthenticated() {
		return nil, errNotLoggedIn
	}
	return s.User, nil
}
