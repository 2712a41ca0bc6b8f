package engine

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserAgentBot identifies plain API clients (YouTube, NicoNico, VocaDB).
const UserAgentBot = "go_vocaviews/1.0"

// maxBodySize caps any single upstream response.
const maxBodySize = 4 * 1024 * 1024

// NewHTTPClient creates an HTTP client sized for many small API calls against few hosts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     60 * time.Second,
			TLSHandshakeTimeout: 15 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// Get performs a single GET and returns body bytes and HTTP status.
// A non-2xx status is not an error here; callers classify statuses themselves.
func Get(ctx context.Context, client *http.Client, rawURL string, headers map[string]string) ([]byte, int, error) {
	IncrRequests()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		IncrRequestErrors()
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgentBot)
	req.Header.Set("Accept-Encoding", "gzip")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		IncrRequestErrors()
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := readResponseBody(resp)
	if err != nil {
		IncrRequestErrors()
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// readResponseBody reads the response body, handling gzip decompression if needed.
func readResponseBody(resp *http.Response) ([]byte, error) {
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(io.LimitReader(gz, maxBodySize))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}
