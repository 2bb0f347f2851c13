package glpi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/autopdf/internal/config"
	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/logger"
)

const maxErrorBody = 512

var errDecode = errors.New("decode response")

// Options configures a Client.
type Options struct {
	BaseURL            string
	AppToken           string
	UserToken          string
	Timeout            time.Duration
	RateLimit          float64
	RateBurst          int
	InsecureSkipVerify bool

	// HTTPClient overrides the transport; Timeout and InsecureSkipVerify are ignored when set.
	HTTPClient *http.Client
}

// Client talks to the GLPI REST API through a single session token.
// The token is re-acquired once when a request is rejected as unauthorized.
type Client struct {
	baseURL   string
	appToken  string
	userToken string
	http      *http.Client
	limiter   *RateLimiter

	mu    sync.Mutex
	token string
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, apperrors.InvalidInput("glpi base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid glpi base url: %v", err))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed GLPI installs
		}
		httpClient = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}

	return &Client{
		baseURL:   base,
		appToken:  opts.AppToken,
		userToken: opts.UserToken,
		http:      httpClient,
		limiter:   NewRateLimiter(RateLimitConfig{RequestsPerSecond: opts.RateLimit, BurstSize: opts.RateBurst}),
	}, nil
}

// NewFromConfig builds a Client from the glpi config section.
func NewFromConfig(cfg config.GLPIConfig) (*Client, error) {
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultGLPITimeout)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid glpi timeout: %v", err))
	}
	return New(Options{
		BaseURL:            cfg.URL,
		AppToken:           cfg.AppToken,
		UserToken:          cfg.UserToken,
		Timeout:            timeout,
		RateLimit:          cfg.RateLimit,
		RateBurst:          cfg.RateBurst,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
}

// HasSession reports whether a session token is currently held.
func (c *Client) HasSession() bool {
	return c.currentToken() != ""
}

// Acquire opens a new session and replaces the current token.
func (c *Client) Acquire(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpointURL("initSession", nil), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "user_token "+c.userToken)

	status, data, err := c.send(req, "initSession")
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return apperrors.WrapWithCategory(upstreamError(http.MethodGet, "initSession", status, data), "init session", apperrors.ErrAuth)
	}

	var session struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.Unmarshal(data, &session); err != nil || session.SessionToken == "" {
		return apperrors.Auth("init session: no session token returned")
	}

	c.mu.Lock()
	c.token = session.SessionToken
	c.mu.Unlock()

	logger.FromContext(ctx).Debug("GLPI session initialized")
	return nil
}

// Close kills the remote session. Failures are logged and the local token is
// always cleared.
func (c *Client) Close(ctx context.Context) {
	token := c.currentToken()
	if token == "" {
		return
	}
	defer c.invalidate()

	log := logger.FromContext(ctx)
	req, err := c.newRequest(ctx, http.MethodGet, c.endpointURL("killSession", nil), nil)
	if err != nil {
		log.Warn("Failed to build kill session request", "error", err)
		return
	}
	req.Header.Set("Session-Token", token)

	status, data, err := c.send(req, "killSession")
	if err != nil {
		log.Warn("Failed to close GLPI session", "error", err)
		return
	}
	if status < 200 || status > 299 {
		log.Warn("Failed to close GLPI session", "error", upstreamError(http.MethodGet, "killSession", status, data))
		return
	}
	log.Debug("GLPI session closed")
}

// Request issues one API call and decodes the JSON response into out when out is non-nil.
// An unauthorized response triggers exactly one re-acquisition and one retry.
func (c *Client) Request(ctx context.Context, method, endpoint string, params url.Values, body, out any) error {
	data, err := c.request(ctx, method, endpoint, params, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &apperrors.UpstreamError{Method: method, Endpoint: endpoint, Err: fmt.Errorf("%w: %v", errDecode, err)}
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, endpoint string, params url.Values, body any) ([]byte, error) {
	if !c.HasSession() {
		if err := c.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.WrapWithCategory(err, "encode request body", apperrors.ErrInternal)
		}
		payload = encoded
	}

	status, data, err := c.do(ctx, method, endpoint, params, payload)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		logger.FromContext(ctx).Info("GLPI session rejected, re-initializing", "endpoint", endpoint)
		c.invalidate()
		if err := c.Acquire(ctx); err != nil {
			return nil, err
		}
		status, data, err = c.do(ctx, method, endpoint, params, payload)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			c.invalidate()
			return nil, apperrors.WrapWithCategory(upstreamError(method, endpoint, status, data), "unauthorized after session refresh", apperrors.ErrAuth)
		}
	}

	if status < 200 || status > 299 {
		return nil, upstreamError(method, endpoint, status, data)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, c.endpointURL(endpoint, params), reader)
	if err != nil {
		return 0, nil, err
	}
	if token := c.currentToken(); token != "" {
		req.Header.Set("Session-Token", token)
	}
	return c.send(req, endpoint)
}

// download fetches a raw path relative to the base url, outside the JSON API.
func (c *Client) download(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpointURL(path, nil), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Del("Content-Type")
	if token := c.currentToken(); token != "" {
		req.Header.Set("Session-Token", token)
	}
	status, data, err := c.send(req, path)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, upstreamError(http.MethodGet, path, status, data)
	}
	return data, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apperrors.WrapWithCategory(err, "build glpi request", apperrors.ErrInternal)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("App-Token", c.appToken)
	return req, nil
}

func (c *Client) send(req *http.Request, endpoint string) (int, []byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return 0, nil, apperrors.WrapWithCategory(err, "glpi rate limiter", apperrors.ErrTransient)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &apperrors.UpstreamError{Method: req.Method, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.RecordRateLimitError(retryAfterSeconds(resp.Header.Get("Retry-After")))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &apperrors.UpstreamError{Method: req.Method, Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, data, nil
}

func (c *Client) endpointURL(endpoint string, params url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return target
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func upstreamError(method, endpoint string, status int, body []byte) *apperrors.UpstreamError {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return &apperrors.UpstreamError{Method: method, Endpoint: endpoint, StatusCode: status, Body: text}
}
