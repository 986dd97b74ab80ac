package clients

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tuncanbit/pricefeed/internal/domain"
)

// maxBodyBytes bounds how much of an upstream body is read.
const maxBodyBytes = 4 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			DisableCompression:  false,
			DisableKeepAlives:   false,
			MaxIdleConnsPerHost: 10,
		},
	}
}

// doRequest performs req and returns the body of a 2xx response. Every failure
// is converted to *domain.RateLimitedError or *domain.TransientError.
func doRequest(client *http.Client, req *http.Request, op string, now func() time.Time) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.TransientError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response body failed: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleErrorResponse(op, resp, body, now())
	}

	if envelope, ok := decodeErrorEnvelope(body); ok && envelope.throttled() {
		return nil, &domain.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), now())}
	}

	return body, nil
}

func handleErrorResponse(op string, resp *http.Response, body []byte, now time.Time) error {
	envelope, hasEnvelope := decodeErrorEnvelope(body)

	if resp.StatusCode == http.StatusTooManyRequests || (hasEnvelope && envelope.throttled()) {
		return &domain.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), now)}
	}

	msg := strings.TrimSpace(string(body))
	if hasEnvelope && envelope.message() != "" {
		msg = envelope.message()
	}
	if len(msg) > 256 {
		msg = msg[:256]
	}

	return &domain.TransientError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
}

type errorEnvelope domain.ProviderErrorEnvelope

func decodeErrorEnvelope(body []byte) (errorEnvelope, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errorEnvelope{}, false
	}
	var env errorEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return errorEnvelope{}, false
	}
	if env.Error == "" && env.Status == nil {
		return errorEnvelope{}, false
	}
	return env, true
}

func (e errorEnvelope) throttled() bool {
	if e.Status != nil && e.Status.ErrorCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(e.message())
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
}

func (e errorEnvelope) message() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Status != nil {
		return e.Status.ErrorMessage
	}
	return ""
}

// parseRetryAfter accepts delta-seconds or an HTTP-date. Zero means no usable hint.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// isJSONArray reports whether body is a JSON array without decoding it.
func isJSONArray(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}
