package kemono

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// APIPrefix is the path prefix of every API endpoint
	APIPrefix = "/api/v1"

	// LoginEndpoint is the account form that establishes an authenticated session
	LoginEndpoint = "/account/login"

	// SessionCookie is the name of the cookie carrying an authenticated session
	SessionCookie = "session"

	// PageSize is the number of posts the upstream returns per page. The
	// offset always advances by this amount, even after a short page.
	PageSize = 50
)

// BaseURL derives the site root for a hostname. A hostname that already
// carries a scheme is used verbatim, which lets local mirrors run over http.
func BaseURL(hostname string) string {
	hostname = strings.TrimRight(strings.TrimSpace(hostname), "/")
	if strings.Contains(hostname, "://") {
		return hostname
	}
	return "https://" + hostname
}

// PostsURL constructs the URL for one page of a creator's posts
func PostsURL(base, service, creator, query string, offset int) (string, error) {
	if service == "" || creator == "" {
		return "", fmt.Errorf("service and creator are required")
	}
	endpoint := fmt.Sprintf("%s/%s/user/%s",
		APIPrefix, url.PathEscape(service), url.PathEscape(creator))
	return buildURL(base, endpoint, query, offset)
}

// RecentPostsURL constructs the URL for the site-wide recent posts listing
func RecentPostsURL(base, query string, offset int) (string, error) {
	return buildURL(base, APIPrefix+"/posts", query, offset)
}

// CreatorsURL returns the URL of the full creator listing
func CreatorsURL(base string) string {
	return base + APIPrefix + "/creators.txt"
}

// AppVersionURL returns the URL of the upstream build identifier
func AppVersionURL(base string) string {
	return base + APIPrefix + "/app_version"
}

// FileURL builds the download URL for an attachment path, adding the
// leading slash when the upstream omitted it.
func FileURL(base, path string) string {
	return base + NormalizePath(path)
}

// NormalizePath ensures an attachment path starts with "/"
func NormalizePath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

func buildURL(base, endpoint, query string, offset int) (string, error) {
	u, err := url.Parse(base + endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base+endpoint, err)
	}

	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if offset >= 0 {
		params.Set("o", strconv.Itoa(offset))
	}
	u.RawQuery = params.Encode()

	return u.String(), nil
}
