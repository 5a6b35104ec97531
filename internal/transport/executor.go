// Package transport sends authenticated requests to configured hosts. It
// owns the per-host connection pools and drives the trust prompt and the
// authentication handlers around every request.
package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"buildClient/internal/auth"
	"buildClient/internal/cookies"
	"buildClient/internal/credentials"
	apperror "buildClient/internal/error"
	"buildClient/internal/models"
	sshsign "buildClient/internal/ssh"
	"buildClient/internal/version"
)

const (
	contentTypeXML = "application/xml; charset=utf-8"
	acceptXML      = "application/xml"
)

// HostResolver finds the options of the configured host serving rawURL.
type HostResolver interface {
	Resolve(rawURL string) (*models.HostOptions, bool)
}

// Executor is the single entry point for requests.
type Executor struct {
	registry    *Registry
	jars        *cookies.Registry
	credentials *credentials.Registry

	resolver    HostResolver
	hooks       []Hook
	userAgent   string
	jarPath     string
	lockTimeout time.Duration
	finder      func(opts *models.HostOptions) auth.SignerFinder
}

type Option func(*Executor)

func WithHook(h Hook) Option {
	return func(e *Executor) { e.hooks = append(e.hooks, h) }
}

func WithUserAgent(ua string) Option {
	return func(e *Executor) { e.userAgent = ua }
}

// WithResolver looks up options for requests passed without them.
func WithResolver(r HostResolver) Option {
	return func(e *Executor) { e.resolver = r }
}

// WithCookieJar enables session cookies stored at path.
func WithCookieJar(path string) Option {
	return func(e *Executor) { e.jarPath = path }
}

// WithLockTimeout bounds the wait for the cookie jar lock.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Executor) { e.lockTimeout = d }
}

// WithSignerFinder replaces the SSH key lookup of the signature handler.
func WithSignerFinder(f func(opts *models.HostOptions) auth.SignerFinder) Option {
	return func(e *Executor) { e.finder = f }
}

func NewExecutor(registry *Registry, jars *cookies.Registry, creds *credentials.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry:    registry,
		jars:        jars,
		credentials: creds,
		userAgent:   version.UserAgent(),
		lockTimeout: auth.DefaultLockTimeout,
		finder: func(opts *models.HostOptions) auth.SignerFinder {
			return sshsign.NewFinder(opts.SSHKeyPath)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute sends one request. opts may be nil, in which case the resolver
// is asked; requests to unknown hosts go through the default pool without
// authentication. Any non-2xx final response is returned as an
// *apperror.HTTPStatusError. The caller closes the body of the returned
// response.
func (e *Executor) Execute(ctx context.Context, opts *models.HostOptions, method, rawURL string, header http.Header, body io.Reader) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &apperror.TransportError{Method: method, URL: rawURL, Err: err}
	}
	if opts == nil && e.resolver != nil {
		if resolved, ok := e.resolver.Resolve(rawURL); ok {
			opts = resolved
		}
	}

	data, err := newPayload(body)
	if err != nil {
		return nil, &apperror.TransportError{Method: method, URL: rawURL, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, &apperror.TransportError{Method: method, URL: rawURL, Err: err}
	}
	e.setHeaders(req, header, data != nil)

	if opts == nil {
		log.Debugf("%s is not a configured host, using the default pool", u.Host)
		return e.executeDefault(ctx, req, data)
	}
	return e.executeHost(ctx, opts, req, data)
}

func (e *Executor) setHeaders(req *http.Request, header http.Header, hasBody bool) {
	for key, values := range header {
		req.Header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", acceptXML)
	}
	if hasBody && req.Header.Get("Content-Type") == "" {
		switch req.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			req.Header.Set("Content-Type", contentTypeXML)
		}
	}
}

func builder(ctx context.Context, template *http.Request, data *payload) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		req := template.Clone(ctx)
		if err := data.attach(req); err != nil {
			return nil, err
		}
		return req, nil
	}
}

func (e *Executor) executeDefault(ctx context.Context, req *http.Request, data *payload) (*http.Response, error) {
	resp, err := e.registry.Default().Do(ctx, req.Method, builder(ctx, req, data), e.hooks)
	if err != nil {
		return nil, &apperror.TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	return finalResponse(req, resp)
}

func (e *Executor) newChain(opts *models.HostOptions) *auth.Chain {
	var jar *cookies.Jar
	if e.jarPath != "" && e.jars != nil {
		jar = e.jars.Jar(e.jarPath)
	}

	var password *models.Password
	if e.credentials != nil && opts.Username != "" {
		pw, err := e.credentials.Password(opts)
		if err != nil {
			log.Warnf("no password for %s: %v", opts.APIURL, err)
		} else {
			password = pw
		}
	}

	return auth.NewDefaultChain(auth.Options{
		Host:        opts,
		Jar:         jar,
		Password:    password,
		Finder:      e.finder(opts),
		LockTimeout: e.lockTimeout,
	})
}

func (e *Executor) executeHost(ctx context.Context, opts *models.HostOptions, req *http.Request, data *payload) (*http.Response, error) {
	pool, err := e.registry.Pool(opts)
	if err != nil {
		return nil, err
	}

	chain := e.newChain(opts)
	defer func() {
		if err := chain.Finish(); err != nil {
			log.Warnf("releasing authentication state: %v", err)
		}
	}()
	attempt := chain.Preemptive(ctx, req)

	trustPrompted := false
	reauthenticated := false
	for {
		resp, err := pool.Do(ctx, req.Method, builder(ctx, req, data), e.hooks)
		if err != nil {
			var untrusted *apperror.CertificateUntrustedError
			if errors.As(err, &untrusted) && !trustPrompted && untrusted.Certificate != nil {
				trustPrompted = true
				if err := e.registry.Trust().PromptTrust(untrusted.Host, untrusted.Port, untrusted.Certificate, untrusted.Reason); err != nil {
					return nil, err
				}
				continue
			}
			return nil, classify(req, err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			challenge := resp.Header.Get("WWW-Authenticate")
			if reauthenticated {
				drain(resp)
				return nil, &apperror.AuthenticationFailedError{
					URL:       req.URL.String(),
					Challenge: challenge,
					Handler:   attempt.Reactive,
				}
			}
			reauthenticated = true
			err := chain.Reactive(ctx, req, resp, attempt)
			drain(resp)
			if err != nil {
				return nil, err
			}
			log.Debugf("retrying %s %s with %s authentication", req.Method, req.URL, attempt.Reactive)
			continue
		}

		if err := chain.ProcessResponse(req, resp); err != nil {
			log.Warnf("processing response of %s: %v", req.URL, err)
		}
		return finalResponse(req, resp)
	}
}

// classify keeps certificate errors intact and wraps everything else.
func classify(req *http.Request, err error) error {
	var untrusted *apperror.CertificateUntrustedError
	var changed *apperror.CertificateIdentityChangedError
	switch {
	case errors.As(err, &changed):
		return changed
	case errors.As(err, &untrusted):
		return untrusted
	default:
		return &apperror.TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
}

func finalResponse(req *http.Request, resp *http.Response) (*http.Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return nil, &apperror.HTTPStatusError{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
}
