package service

import (
	"net/http/cookiejar"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/keymesh-go/internal/authtest"
	"github.com/yndnr/keymesh-go/internal/connection"
	"github.com/yndnr/keymesh-go/internal/credstore"
	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
)

type stack struct {
	srv      *authtest.Server
	store    *credstore.KVStore
	pipeline *connection.Pipeline
	metrics  *metric.Registry
	sessions *SessionManager
	keys     *APIKeyService
}

func newStack(t *testing.T) *stack {
	t.Helper()

	srv := authtest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser("alice", "alice@example.com", "correct-pw")

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	st := &stack{
		srv:     srv,
		store:   credstore.NewMemoryStore(),
		metrics: metric.NewRegistry(),
	}
	transport := connection.NewHTTPTransport(connection.TransportConfig{
		Server: srv.URL(),
		Jar:    jar,
		Logger: logger.Discard(),
	})
	st.pipeline = connection.NewPipeline(transport, st.store, connection.WithLogger(logger.Discard()))
	st.sessions = NewSessionManager(st.pipeline, st.store,
		WithSessionLogger(logger.Discard()),
		WithSessionMetrics(st.metrics),
		WithExpiryNotifier(st.pipeline),
	)
	t.Cleanup(st.sessions.Close)
	st.keys = NewAPIKeyService(st.pipeline, WithAPIKeyLogger(logger.Discard()))
	return st
}

func connectionGetMe() connection.Request {
	return connection.Get(pathMe)
}
