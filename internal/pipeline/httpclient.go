package pipeline

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// NewPooledHTTPClient creates an http.Client with a tuned keep-alive pool.
// timeout bounds a whole request; the coordinator applies its own stage deadline on top.
func NewPooledHTTPClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: timeout,
			ForceAttemptHTTP2:     true,
		},
	}
}

// statusError reads at most 512 bytes of an error body for the message.
func statusError(label string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s status %d: %s", label, resp.StatusCode, strings.TrimSpace(string(body)))
}
