package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	apperror "buildClient/internal/error"
)

// defaultFallbackStatuses is the forcelist of the pool used for hosts
// without configuration.
var defaultFallbackStatuses = []int{500, 502, 503, 504}

// DefaultBackOff is the backoff between attempts of one request.
func DefaultBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
}

// RetryPolicy decides which failed attempts of a request are repeated.
type RetryPolicy struct {
	Retries    int
	Statuses   map[int]bool
	NewBackOff func() backoff.BackOff
}

func newRetryPolicy(retries int, statuses []int, newBackOff func() backoff.BackOff) RetryPolicy {
	set := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	if newBackOff == nil {
		newBackOff = DefaultBackOff
	}
	return RetryPolicy{Retries: retries, Statuses: set, NewBackOff: newBackOff}
}

type retryStatusError struct {
	status int
}

func (e *retryStatusError) Error() string {
	return fmt.Sprintf("server answered %d %s", e.status, http.StatusText(e.status))
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// retryableError reports whether err may be retried for method. Requests
// that may have reached the server are only repeated when idempotent.
func retryableError(method string, err error) bool {
	var untrusted *apperror.CertificateUntrustedError
	var changed *apperror.CertificateIdentityChangedError
	if errors.As(err, &untrusted) || errors.As(err, &changed) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if idempotent(method) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Do calls send until it succeeds or the policy gives up. The response of
// the last attempt is returned even when its status is in the forcelist,
// whether the retry count or the backoff ended the sequence.
func (p RetryPolicy) Do(ctx context.Context, method string, send func() (*http.Response, error)) (*http.Response, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(p.NewBackOff(), uint64(p.Retries)), ctx)

	var (
		resp    *http.Response
		pending *http.Response
		attempt int
	)
	operation := func() error {
		attempt++
		drain(pending)
		pending = nil

		r, err := send()
		if err != nil {
			if !retryableError(method, err) || attempt > p.Retries {
				return backoff.Permanent(err)
			}
			return err
		}
		if attempt <= p.Retries && idempotent(method) && p.Statuses[r.StatusCode] {
			// Kept unread until the next attempt in case the backoff stops first.
			pending = r
			return &retryStatusError{status: r.StatusCode}
		}
		resp = r
		return nil
	}

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		log.Warnf("%s request failed, retrying in %v: %v", method, wait.Round(time.Millisecond), err)
	})
	if err != nil {
		var statusErr *retryStatusError
		if errors.As(err, &statusErr) && pending != nil {
			return pending, nil
		}
		drain(pending)
		return nil, err
	}
	return resp, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
