// Package auth decorates requests with credentials. Handlers are tried in a
// fixed order and report a tagged Result instead of failing the request
// when they have nothing to offer.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"buildClient/internal/cookies"
	apperror "buildClient/internal/error"
	"buildClient/internal/models"
)

type Outcome int

const (
	OutcomeNotApplicable Outcome = iota
	OutcomeApplied
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeFailed:
		return "failed"
	default:
		return "not applicable"
	}
}

// Result is what a handler did with a request.
type Result struct {
	Outcome Outcome
	Header  http.Header
	Reason  error
}

func Applied(header http.Header) Result {
	return Result{Outcome: OutcomeApplied, Header: header}
}

func NotApplicable() Result {
	return Result{Outcome: OutcomeNotApplicable}
}

func Failed(reason error) Result {
	return Result{Outcome: OutcomeFailed, Reason: reason}
}

// Handler is one authentication strategy.
type Handler interface {
	Name() string
	// SetPreemptiveHeaders runs before the first attempt of a request.
	SetPreemptiveHeaders(ctx context.Context, req *http.Request) Result
	// SetHeadersAfter401 runs when the server rejected the request.
	SetHeadersAfter401(ctx context.Context, req *http.Request, resp *http.Response) Result
	// ProcessResponse sees the final response of a request.
	ProcessResponse(req *http.Request, resp *http.Response) error
}

// Finisher is implemented by handlers holding resources across a request.
// Finish is called on every exit path, after ProcessResponse if any.
type Finisher interface {
	Finish() error
}

// Attempt records which handlers supplied credentials for one request.
type Attempt struct {
	Preemptive []string
	Reactive   string
	Reasons    *multierror.Error
}

// Chain runs handlers in order for one request.
type Chain struct {
	handlers []Handler
}

func NewChain(handlers ...Handler) *Chain {
	return &Chain{handlers: handlers}
}

func (c *Chain) Handlers() []Handler {
	return c.handlers
}

// Preemptive lets every handler decorate req before it is sent.
func (c *Chain) Preemptive(ctx context.Context, req *http.Request) *Attempt {
	attempt := &Attempt{}
	for _, h := range c.handlers {
		result := h.SetPreemptiveHeaders(ctx, req)
		switch result.Outcome {
		case OutcomeApplied:
			mergeHeader(req.Header, result.Header)
			attempt.Preemptive = append(attempt.Preemptive, h.Name())
		case OutcomeFailed:
			log.Warnf("%s authentication: %v", h.Name(), result.Reason)
			attempt.Reasons = multierror.Append(attempt.Reasons, fmt.Errorf("%s: %w", h.Name(), result.Reason))
		}
	}
	return attempt
}

// Reactive answers a 401 with the first handler that applies. When none
// does, the returned error carries every reason collected so far.
func (c *Chain) Reactive(ctx context.Context, req *http.Request, resp *http.Response, attempt *Attempt) error {
	for _, h := range c.handlers {
		result := h.SetHeadersAfter401(ctx, req, resp)
		log.Debugf("%s authentication after 401: %s", h.Name(), result.Outcome)
		switch result.Outcome {
		case OutcomeApplied:
			mergeHeader(req.Header, result.Header)
			attempt.Reactive = h.Name()
			return nil
		case OutcomeFailed:
			log.Warnf("%s authentication: %v", h.Name(), result.Reason)
			attempt.Reasons = multierror.Append(attempt.Reasons, fmt.Errorf("%s: %w", h.Name(), result.Reason))
		}
	}

	return &apperror.AuthenticationFailedError{
		URL:       req.URL.String(),
		Challenge: resp.Header.Get("WWW-Authenticate"),
		Err:       attempt.Reasons.ErrorOrNil(),
	}
}

// ProcessResponse hands the final response to every handler.
func (c *Chain) ProcessResponse(req *http.Request, resp *http.Response) error {
	var result *multierror.Error
	for _, h := range c.handlers {
		if err := h.ProcessResponse(req, resp); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", h.Name(), err))
		}
	}
	return result.ErrorOrNil()
}

// Finish releases whatever the handlers still hold.
func (c *Chain) Finish() error {
	var result *multierror.Error
	for _, h := range c.handlers {
		if f, ok := h.(Finisher); ok {
			if err := f.Finish(); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", h.Name(), err))
			}
		}
	}
	return result.ErrorOrNil()
}

func mergeHeader(dst, src http.Header) {
	for key, values := range src {
		dst[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
}

// Options configure the handlers of one host.
type Options struct {
	Host        *models.HostOptions
	Jar         *cookies.Jar
	Password    *models.Password
	Finder      SignerFinder
	LockTimeout time.Duration
}

// NewDefaultChain returns cookie, signature and basic handlers in that order.
func NewDefaultChain(opts Options) *Chain {
	return NewChain(
		NewCookieHandler(opts.Jar, opts.LockTimeout),
		NewSignatureHandler(opts.Host.Username, opts.Host.Realm, opts.Finder),
		NewBasicHandler(opts.Host.Username, opts.Password, opts.Host.SSHKeyPath != ""),
	)
}
