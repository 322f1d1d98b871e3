package api

import (
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

// Client provides access to the Pushi web API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	mu            sync.Mutex
	authenticated bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new web API client rooted at baseURL.
// The default HTTP client keeps session cookies so that Login carries over
// to later calls.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// BaseURL returns the web API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BuildURL joins path to the web API root.
func (c *Client) BuildURL(path string) string {
	return c.baseURL + path
}

// Authenticated reports whether Login succeeded.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// WebBaseURL returns baseWebURL when set, otherwise derives the web root
// from the websocket baseURL (wss → https, ws → http).
func WebBaseURL(baseWebURL, baseURL string) string {
	if baseWebURL != "" {
		return strings.TrimRight(baseWebURL, "/")
	}

	switch {
	case strings.HasPrefix(baseURL, "wss://"):
		baseURL = "https://" + strings.TrimPrefix(baseURL, "wss://")
	case strings.HasPrefix(baseURL, "ws://"):
		baseURL = "http://" + strings.TrimPrefix(baseURL, "ws://")
	}
	return strings.TrimRight(baseURL, "/")
}
