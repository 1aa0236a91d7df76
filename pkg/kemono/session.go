package kemono

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/logger"
	"kemonosync/pkg/ratelimit"
)

// Session is a download connection owned by a single worker. It has its own
// transport and cookie jar, seeded with the client's login cookie.
type Session struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewSession creates an independent download session
func (c *Client) NewSession() (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindGeneric, "create cookie jar", err)
	}

	c.mu.RLock()
	if len(c.cookies) > 0 {
		if u, err := url.Parse(c.baseURL); err == nil {
			jar.SetCookies(u, c.cookies)
		}
	}
	c.mu.RUnlock()

	return &Session{
		httpClient: &http.Client{
			Timeout:   c.downloadTimeout,
			Jar:       jar,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		baseURL:   c.baseURL,
		userAgent: c.headers["User-Agent"],
		limiter:   c.limiter,
		logger:    c.logger,
	}, nil
}

// URL returns the absolute URL of an attachment path
func (s *Session) URL(path string) string {
	return FileURL(s.baseURL, path)
}

// Open starts downloading the file at path. The caller must close the body.
// A 429 is reported as a rate-limit error, any other non-2xx as a status error.
func (s *Session) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, kerrors.Wrap(kerrors.KindTransport, "wait for rate limiter", err)
	}

	target := s.URL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindGeneric, "create download request", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &kerrors.Error{
			Kind:    kerrors.KindTransport,
			Op:      "download " + path,
			Message: "request failed",
			Err:     err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		s.logger.DebugWithFields("download rejected", map[string]interface{}{
			"url":    target,
			"status": resp.StatusCode,
		})
		return nil, kerrors.Status("download "+path, resp.StatusCode)
	}

	return resp.Body, nil
}

// CloseIdleConnections releases the session's pooled connections
func (s *Session) CloseIdleConnections() {
	s.httpClient.CloseIdleConnections()
}
