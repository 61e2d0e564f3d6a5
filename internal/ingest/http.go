package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const userAgent = "herbtax/1.0 (dictionary loader)"

// HTTPError is returned for a non-2xx download response.
type HTTPError struct {
	URL  string
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// HTTPSource downloads dictionaries over http(s).
type HTTPSource struct {
	client *http.Client
}

// NewHTTPSource creates a downloader with the given overall timeout.
func NewHTTPSource(timeout time.Duration) *HTTPSource {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPSource{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Open starts the download of rawURL. The caller closes the body.
func (h *HTTPSource) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &HTTPError{URL: rawURL, Code: resp.StatusCode}
	}
	return resp.Body, nil
}

// isHTTP reports whether source is an http(s) URL.
func isHTTP(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// urlName returns the path of rawURL without query or fragment, which is
// what the compression extension is taken from.
func urlName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return path.Base(u.Path)
}
