package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
)

// DefaultServer is the identity service base URL used when none is configured.
const DefaultServer = "http://localhost:8080/api"

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

// TransportConfig configures an HTTPTransport.
type TransportConfig struct {
	Server    string
	Timeout   time.Duration
	UserAgent string

	// RateLimit is the sustained requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int

	// Jar holds the refresh cookie. Only credentialed requests use it.
	Jar http.CookieJar

	// TLS overrides the client TLS settings, e.g. to trust a private CA.
	TLS *tls.Config

	Logger  logger.Logger
	Metrics *metric.Registry
}

// Response is a fully read HTTP response.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

// HTTPTransport performs single HTTP exchanges against the identity service.
type HTTPTransport struct {
	baseURL      string
	plain        *http.Client
	credentialed *http.Client
	limiter      *rate.Limiter
	userAgent    string
	logger       logger.Logger
	metrics      *metric.Registry
}

// NewHTTPTransport creates a transport. The plain and credentialed clients
// share one connection pool; only the credentialed client has the jar.
func NewHTTPTransport(cfg TransportConfig) *HTTPTransport {
	baseURL := NormalizeServer(cfg.Server)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "keymesh-cli"
	}

	shared := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLS != nil {
		shared.TLSClientConfig = cfg.TLS
	}

	t := &HTTPTransport{
		baseURL:      baseURL,
		plain:        &http.Client{Transport: shared, Timeout: timeout},
		credentialed: &http.Client{Transport: shared, Timeout: timeout, Jar: cfg.Jar},
		userAgent:    userAgent,
		logger:       logger.OrDefault(cfg.Logger).With("component", "transport"),
		metrics:      cfg.Metrics,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return t
}

// NormalizeServer returns server as an absolute base URL without a
// trailing slash. A bare host:port gets the http scheme.
func NormalizeServer(server string) string {
	if server == "" {
		server = DefaultServer
	}
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "http://" + server
	}
	return strings.TrimRight(server, "/")
}

// BaseURL returns the normalized base URL.
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

// Send performs one attempt of req. token is attached as a bearer
// credential when req.Auth is AuthBearer and token is non-empty.
// A non-nil error means no response was obtained.
func (t *HTTPTransport) Send(ctx context.Context, req Request, token string) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, t.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := logger.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = newRequestID()
	}
	t.addHeaders(httpReq, req, token, requestID)

	client := t.plain
	if req.Credentialed {
		client = t.credentialed
	}

	log := logger.L(logger.WithRequestID(ctx, requestID), t.logger).With("method", req.Method, "path", req.Path)
	start := time.Now()
	resp, err := client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		t.observe(req.Method, 0, elapsed)
		log.Debug("request failed", "error", err, "elapsed", elapsed)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		t.observe(req.Method, 0, elapsed)
		return nil, fmt.Errorf("read response: %w", err)
	}

	t.observe(req.Method, resp.StatusCode, elapsed)
	log.Debug("request completed", "status", resp.StatusCode, "elapsed", elapsed)

	return &Response{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      data,
		RequestID: requestID,
	}, nil
}

// addHeaders adds authentication and common headers.
func (t *HTTPTransport) addHeaders(httpReq *http.Request, req Request, token, requestID string) {
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Auth == AuthBearer && token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
}

func newRequestID() string {
	return ulid.Make().String()
}

func (t *HTTPTransport) observe(method string, status int, elapsed time.Duration) {
	if t.metrics != nil {
		t.metrics.ObserveRequest(method, status, elapsed)
	}
}
