package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// backoffMultiplier doubles the delay between attempts.
const backoffMultiplier = 2

// backoffMaxInterval caps a single backoff delay. High enough that the
// retry budget is exhausted before the cap matters for sane configs.
const backoffMaxInterval = time.Hour

// httpSource streams a remote resource with Range support.
type httpSource struct {
	location string
	opts     Options
	client   *http.Client
}

func newHTTPSource(location string, opts Options) *httpSource {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: opts.Timeout,
		}).DialContext,
		ResponseHeaderTimeout: opts.Timeout,
		Proxy:                 http.ProxyFromEnvironment,
	}

	return &httpSource{
		location: location,
		opts:     opts,
		// No Client.Timeout: that would bound the entire body transfer.
		client: &http.Client{Transport: transport},
	}
}

// Location implements Source.
func (s *httpSource) Location() string {
	return s.location
}

// Open implements Source. Transient failures (connection errors, timeouts,
// 5xx) are retried up to MaxRetries times with exponential backoff; 4xx
// responses fail immediately with ErrPermanent.
func (s *httpSource) Open(ctx context.Context, startByte int64) (io.ReadCloser, error) {
	var body io.ReadCloser

	attempt := func() error {
		rc, err := s.get(ctx, startByte)
		if err != nil {
			return err
		}

		body = rc

		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.RetryBackoff
	policy.Multiplier = backoffMultiplier
	policy.RandomizationFactor = 0
	policy.MaxInterval = backoffMaxInterval
	policy.MaxElapsedTime = 0

	notify := func(err error, delay time.Duration) {
		if s.opts.OnRetry != nil {
			s.opts.OnRetry(err, delay)
		}
	}

	retryErr := backoff.RetryNotify(
		attempt,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.opts.MaxRetries)), ctx),
		notify,
	)
	if retryErr != nil {
		if isPermanent(retryErr) {
			return nil, retryErr
		}

		return nil, fmt.Errorf("%w (retries=%d): %v", ErrExhausted, s.opts.MaxRetries, retryErr)
	}

	return newBufferedBody(body, s.opts.ChunkSize), nil
}

// get performs a single GET attempt. Errors wrapped as backoff.Permanent
// stop the retry loop.
func (s *httpSource) get(ctx context.Context, startByte int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrPermanent, err))
	}

	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}

	resp, doErr := s.client.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf("get %s: %w", s.location, doErr)
	}

	switch {
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		resp.Body.Close()

		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		resp.Body.Close()

		return nil, fmt.Errorf("server status %d", resp.StatusCode)
	case startByte > 0 && resp.StatusCode != http.StatusPartialContent:
		resp.Body.Close()

		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrRangeIgnored, resp.StatusCode))
	}

	return resp.Body, nil
}

// Probe implements Source using a HEAD request. The fingerprint is the ETag
// header; range capability comes from Accept-Ranges.
func (s *httpSource) Probe(ctx context.Context) (Identity, error) {
	probeCtx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, s.location, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	resp, doErr := s.client.Do(req)
	if doErr != nil {
		return Identity{}, fmt.Errorf("probe %s: %w", s.location, doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("probe %s: status %d", s.location, resp.StatusCode)
	}

	return Identity{
		Fingerprint:   resp.Header.Get("ETag"),
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
	}, nil
}

// isPermanent reports whether the error carries a non-retryable sentinel.
func isPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, ErrRangeIgnored)
}

// bufferedBody pairs a bufio.Reader sized to the configured chunk size with
// the underlying body's Close.
type bufferedBody struct {
	*bufio.Reader
	closer io.Closer
}

func newBufferedBody(rc io.ReadCloser, size int) io.ReadCloser {
	return &bufferedBody{
		Reader: bufio.NewReaderSize(rc, size),
		closer: rc,
	}
}

// Close implements io.Closer.
func (b *bufferedBody) Close() error {
	return b.closer.Close()
}
