package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adamancini/firmup/internal/logging"
)

// ErrRetryable marks transport failures worth another attempt.
var ErrRetryable = errors.New("retryable transport failure")

// Transport retrieves the raw bytes behind a URL.
type Transport interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string        { return e.err.Error() }
func (e *retryableError) Unwrap() error        { return e.err }
func (e *retryableError) Is(target error) bool { return target == ErrRetryable }

// HTTPTransport downloads over HTTP(S).
type HTTPTransport struct {
	client    *http.Client
	userAgent string
	log       logging.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithTimeout bounds each request, including reading the body.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		t.client.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(t *HTTPTransport) {
		t.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(log logging.Logger) HTTPOption {
	return func(t *HTTPTransport) {
		t.log = log
	}
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		client: &http.Client{},
		log:    logging.New("transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get downloads url and returns the whole body.
func (t *HTTPTransport) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	t.log.WithField("url", url).Debug("sending request")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &retryableError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: serr}
		}
		return nil, serr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("failed to read response body: %w", err)}
	}

	t.log.WithFields(map[string]interface{}{
		"url":   url,
		"bytes": len(body),
	}).Debug("received response")

	return body, nil
}

// RetryTransport retries retryable failures of an inner transport.
type RetryTransport struct {
	inner    Transport
	maxRetry int
	delay    time.Duration
	sleep    func(time.Duration)
	log      logging.Logger
}

// NewRetryTransport wraps inner. maxRetry is the number of extra attempts.
func NewRetryTransport(inner Transport, maxRetry int, delay time.Duration, log logging.Logger) *RetryTransport {
	return &RetryTransport{
		inner:    inner,
		maxRetry: maxRetry,
		delay:    delay,
		sleep:    time.Sleep,
		log:      log,
	}
}

// Get implements Transport.
func (r *RetryTransport) Get(ctx context.Context, url string) (body []byte, err error) {
	for x := 0; x <= r.maxRetry; x++ {
		body, err = r.inner.Get(ctx, url)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrRetryable) || ctx.Err() != nil {
			return nil, err
		}
		if x < r.maxRetry {
			r.log.WithError(err).WithField("url", url).Warnf("download failed, retry %d of %d imminent", x+1, r.maxRetry)
			r.sleep(r.delay)
		}
	}
	return nil, err
}
