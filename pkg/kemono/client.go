package kemono

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/logger"
	"kemonosync/pkg/ratelimit"
)

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "kemonosync/1.0 (+https://github.com/kemonosync)"

// Options configures a Client
type Options struct {
	Hostname        string
	UserAgent       string
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	Limiter         ratelimit.Limiter
	Logger          logger.Logger
}

// Client talks to the upstream API. It is safe for concurrent use; file
// downloads go through per-worker Sessions created by NewSession.
type Client struct {
	httpClient      *http.Client
	headers         map[string]string
	baseURL         string
	downloadTimeout time.Duration
	limiter         ratelimit.Limiter
	logger          logger.Logger

	mu      sync.RWMutex
	cookies []*http.Cookie
}

// NewClient creates a new API client
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.RequestTimeout,
		},
		headers: map[string]string{
			"User-Agent": opts.UserAgent,
			"Accept":     "application/json",
		},
		baseURL:         BaseURL(opts.Hostname),
		downloadTimeout: opts.DownloadTimeout,
		limiter:         opts.Limiter,
		logger:          opts.Logger,
	}
}

// BaseURL returns the site root requests are sent to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Posts fetches one page of posts for a creator on a service. An empty
// slice means the listing is exhausted.
func (c *Client) Posts(ctx context.Context, service, creator, query string, offset int) ([]Post, error) {
	u, err := PostsURL(c.baseURL, service, creator, query, offset)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindGeneric, "build posts url", err)
	}

	var posts []Post
	if err := c.GetJSON(ctx, u, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// RecentPosts fetches one page of the site-wide recent posts listing
func (c *Client) RecentPosts(ctx context.Context, query string, offset int) ([]Post, error) {
	u, err := RecentPostsURL(c.baseURL, query, offset)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindGeneric, "build recent posts url", err)
	}

	var posts []Post
	if err := c.GetJSON(ctx, u, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Creators fetches the full creator listing
func (c *Client) Creators(ctx context.Context) ([]Creator, error) {
	var creators []Creator
	if err := c.GetJSON(ctx, CreatorsURL(c.baseURL), &creators); err != nil {
		return nil, err
	}
	return creators, nil
}

// AppVersion returns the upstream build identifier
func (c *Client) AppVersion(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, AppVersionURL(c.baseURL))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", kerrors.Wrap(kerrors.KindTransport, "read app version", err)
	}
	return string(bytes.TrimSpace(body)), nil
}

// Login posts the account form and keeps the session cookie. The upstream
// answers a successful login with a redirect carrying the cookie, so the
// redirect is not followed. Sessions created afterwards inherit the cookie.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+LoginEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return kerrors.Wrap(kerrors.KindGeneric, "create login request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	noRedirect := *c.httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := c.send(&noRedirect, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusFound, http.StatusSeeOther:
	case http.StatusUnauthorized, http.StatusForbidden:
		return &kerrors.Error{Kind: kerrors.KindAuth, Op: "login", Message: "invalid username or password", Code: resp.StatusCode}
	default:
		return kerrors.Status("login", resp.StatusCode)
	}

	var session []*http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookie {
			session = append(session, cookie)
		}
	}
	if len(session) == 0 {
		return kerrors.New(kerrors.KindAuth, "login", "upstream did not return a session cookie")
	}

	c.mu.Lock()
	c.cookies = session
	c.mu.Unlock()

	c.logger.InfoWithFields("logged in", map[string]interface{}{
		"username": username,
	})
	return nil
}

// authenticated reports whether Login has stored a session cookie
func (c *Client) authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cookies) > 0
}

// GetJSON performs a GET request and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, url string, target interface{}) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &kerrors.Error{
			Kind:    kerrors.KindTransport,
			Op:      "read response",
			Message: "failed to read response body",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return &kerrors.Error{
			Kind:    kerrors.KindMalformedResponse,
			Op:      "decode response",
			Message: "response is not the expected JSON",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	return nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, kerrors.Wrap(kerrors.KindTransport, "wait for rate limiter", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindGeneric, "create request", err)
	}
	return c.doRequest(req)
}

// doRequest performs an HTTP request with the configured headers and cookies
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	return c.send(c.httpClient, req)
}

func (c *Client) send(hc *http.Client, req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	c.mu.RLock()
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	c.mu.RUnlock()

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := hc.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &kerrors.Error{
			Kind:    kerrors.KindTransport,
			Op:      req.Method + " " + req.URL.Path,
			Message: "request failed",
			Err:     err,
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// checkResponseStatus maps non-2xx responses to typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		fields["retry_after"] = resp.Header.Get("Retry-After")
		c.logger.WarnWithFields("rate limited by upstream", fields)
	} else {
		c.logger.WarnWithFields("unexpected response status", fields)
	}

	return kerrors.Status(fmt.Sprintf("GET %s", resp.Request.URL.Path), resp.StatusCode)
}
