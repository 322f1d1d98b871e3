package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.example.com/")

		if c.baseURL != "https://api.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.example.com")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.httpClient.Jar == nil {
			t.Error("expected cookie jar on default HTTP client")
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
		if c.Authenticated() {
			t.Error("new client should not be authenticated")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		custom := &http.Client{}
		c := NewClient("https://api.example.com",
			WithHTTPClient(custom),
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
		)

		if c.httpClient != custom {
			t.Error("custom HTTP client not set")
		}
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 || c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retries = %d/%v, want 10/500ms", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})
}

func TestWebBaseURL(t *testing.T) {
	tests := []struct {
		name       string
		baseWebURL string
		baseURL    string
		want       string
	}{
		{"explicit web url", "https://api.example.com", "wss://example.com/", "https://api.example.com"},
		{"derived from wss", "", "wss://example.com/", "https://example.com"},
		{"derived from ws", "", "ws://localhost:8080/", "http://localhost:8080"},
		{"other scheme untouched", "", "https://example.com/", "https://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WebBaseURL(tt.baseWebURL, tt.baseURL); got != tt.want {
				t.Errorf("WebBaseURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildURL(t *testing.T) {
	c := NewClient(WebBaseURL("", "wss://example.com/"))

	if got := c.BuildURL("/test/path"); got != "https://example.com/test/path" {
		t.Errorf("BuildURL = %q, want %q", got, "https://example.com/test/path")
	}
}

func TestAuthorizeChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.URL.Query().Get("socket_id"); got != "123.456" {
			t.Errorf("socket_id = %q, want %q", got, "123.456")
		}
		if got := r.URL.Query().Get("channel"); got != "private-orders" {
			t.Errorf("channel = %q, want %q", got, "private-orders")
		}
		if got := r.URL.Query().Get("app"); got != "demo" {
			t.Errorf("existing query lost: app = %q", got)
		}
		w.Write([]byte(`{"auth":"key:signature","channel_data":{"user_id":"1"}}`))
	}))
	defer server.Close()

	c := NewClient("")
	a := &EndpointAuthorizer{Client: c, Endpoint: server.URL + "/auth?app=demo"}

	result, err := a.Authorize(context.Background(), "123.456", "private-orders")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if result.Auth != "key:signature" {
		t.Errorf("Auth = %q, want %q", result.Auth, "key:signature")
	}
	if string(result.ChannelData) != `{"user_id":"1"}` {
		t.Errorf("ChannelData = %s", result.ChannelData)
	}
}

func TestAuthorizeChannel_NoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient("", WithRetries(3, time.Millisecond))
	_, err := c.AuthorizeChannel(context.Background(), server.URL, "1", "private-x")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", apiErr.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestLogin_Validation(t *testing.T) {
	c := NewClient("https://api.example.com")

	if err := c.Login(context.Background(), "", "secret"); !errors.Is(err, ErrAppIDRequired) {
		t.Errorf("error = %v, want %v", err, ErrAppIDRequired)
	}
	if err := c.Login(context.Background(), "my-app", ""); !errors.Is(err, ErrAppSecretRequired) {
		t.Errorf("error = %v, want %v", err, ErrAppSecretRequired)
	}
}

func TestLogin_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s, want POST /login", r.Method, r.URL.Path)
		}
		var body loginRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.AppID != "my-app" || body.AppSecret != "my-secret" {
			t.Errorf("body = %+v", body)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	if err := c.Login(context.Background(), "my-app", "my-secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !c.Authenticated() {
		t.Error("expected client to be authenticated")
	}
}

func TestLogin_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(3, time.Millisecond))
	if err := c.Login(context.Background(), "my-app", "my-secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWebPush_RequiresLogin(t *testing.T) {
	c := NewClient("https://api.example.com")
	sub := PushSubscription{Endpoint: "https://push.example.com/abc123"}

	if err := c.RegisterWebPush(context.Background(), sub, "test-event"); !errors.Is(err, ErrLoginRequired) {
		t.Errorf("RegisterWebPush error = %v, want %v", err, ErrLoginRequired)
	}
	if err := c.UnregisterWebPush(context.Background(), sub, "test-event"); !errors.Is(err, ErrLoginRequired) {
		t.Errorf("UnregisterWebPush error = %v, want %v", err, ErrLoginRequired)
	}
}

func TestWebPush_RegisterAndUnregister(t *testing.T) {
	type request struct {
		method string
		path   string
		query  string
		body   string
	}
	requests := make(chan request, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- request{r.Method, r.URL.EscapedPath(), r.URL.RawQuery, string(body)}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	if err := c.Login(context.Background(), "my-app", "my-secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	<-requests

	sub := PushSubscription{
		Endpoint: "https://push.example.com/abc123",
		P256dh:   "p256dh-key-value",
		Auth:     "auth-key-value",
	}

	if err := c.RegisterWebPush(context.Background(), sub, "notifications"); err != nil {
		t.Fatalf("RegisterWebPush failed: %v", err)
	}
	reg := <-requests
	if reg.method != http.MethodPost || reg.path != "/web_pushes" {
		t.Errorf("register request = %s %s", reg.method, reg.path)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(reg.body), &body); err != nil {
		t.Fatalf("decode register body: %v", err)
	}
	want := map[string]string{
		"endpoint": "https://push.example.com/abc123",
		"p256dh":   "p256dh-key-value",
		"auth":     "auth-key-value",
		"event":    "notifications",
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%q] = %q, want %q", k, body[k], v)
		}
	}

	if err := c.UnregisterWebPush(context.Background(), sub, "notifications"); err != nil {
		t.Fatalf("UnregisterWebPush failed: %v", err)
	}
	unreg := <-requests
	if unreg.method != http.MethodDelete {
		t.Errorf("unregister method = %s, want DELETE", unreg.method)
	}
	if unreg.path != "/web_pushes/https:%2F%2Fpush.example.com%2Fabc123" {
		t.Errorf("unregister path = %q", unreg.path)
	}
	if unreg.query != "event=notifications" {
		t.Errorf("unregister query = %q", unreg.query)
	}
}

func TestDecodeVAPIDKey(t *testing.T) {
	// "Hello" in base64url
	got, err := DecodeVAPIDKey("SGVsbG8")
	if err != nil {
		t.Fatalf("DecodeVAPIDKey failed: %v", err)
	}
	if string(got) != "Hello" {
		t.Errorf("decoded = %q, want %q", got, "Hello")
	}

	// base64url uses - and _ instead of + and /
	if _, err := DecodeVAPIDKey("PDw_Pz4-"); err != nil {
		t.Errorf("DecodeVAPIDKey with url alphabet failed: %v", err)
	}

	if _, err := DecodeVAPIDKey("SGVsbG8="); err != nil {
		t.Errorf("DecodeVAPIDKey with padding failed: %v", err)
	}

	if _, err := DecodeVAPIDKey("not base64!"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		e := &APIError{StatusCode: tt.status, Message: http.StatusText(tt.status)}
		if got := e.IsRetryable(); got != tt.retryable {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.status, got, tt.retryable)
		}
		if e.Error() == "" {
			t.Error("Error() should not be empty")
		}
	}
}
