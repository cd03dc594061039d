// Package portal is the Go client for the PM Notification Portal REST API
// and its server-sent event stream.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sapliy/pm-portal/pkg/observability"
)

const (
	DefaultBaseURL = "http://localhost:4000/api"

	// BaseURLEnv overrides DefaultBaseURL when set.
	BaseURLEnv = "PORTAL_BACKEND_URL"
)

// Client is the main entry point for the portal SDK. Authentication is
// carried by session cookies kept in the client's cookie jar.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics

	Auth          *AuthService
	Notifications *NotificationsService
	Recipients    *RecipientsService
	Groups        *GroupsService
	Applications  *ApplicationsService
	AI            *AIService
	Events        *EventsService
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// NewClient creates a new portal client.
func NewClient(opts ...ClientOption) *Client {
	baseURL := DefaultBaseURL
	if env := os.Getenv(BaseURLEnv); env != "" {
		baseURL = env
	}

	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Jar:       jar,
		},
	}

	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	c.Auth = &AuthService{client: c}
	c.Notifications = &NotificationsService{client: c}
	c.Recipients = &RecipientsService{client: c}
	c.Groups = &GroupsService{client: c}
	c.Applications = &ApplicationsService{client: c}
	c.AI = &AIService{client: c}
	c.Events = &EventsService{client: c}

	return c
}

// WithBaseURL sets the base URL for the client, including the /api prefix.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client. A client without a cookie jar
// gets the default one so sessions keep working.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc.Jar == nil {
			hc.Jar = c.httpClient.Jar
		}
		c.httpClient = hc
	}
}

// WithCookieJar replaces the session cookie jar.
func WithCookieJar(jar http.CookieJar) ClientOption {
	return func(c *Client) {
		c.httpClient.Jar = jar
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Cookies returns the session cookies held for the backend.
func (c *Client) Cookies() []*http.Cookie {
	u, err := url.Parse(c.baseURL)
	if err != nil || c.httpClient.Jar == nil {
		return nil
	}
	return c.httpClient.Jar.Cookies(u)
}

// SetCookies restores previously saved session cookies.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	u, err := url.Parse(c.baseURL)
	if err != nil || c.httpClient.Jar == nil {
		return
	}
	c.httpClient.Jar.SetCookies(u, cookies)
}

// APIError is returned for every non-2xx response. Message is the body's
// "error" field when the backend provided one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status=%d: %s", e.StatusCode, e.Message)
}

// Message returns the server supplied error text carried by err, or
// fallback when there is none.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, 0, time.Since(start))
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Error
	}
	return apiErr
}
