package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http/httpproxy"

	"buildClient/internal/models"
	"buildClient/internal/trust"
)

const maxRedirects = 10

// DialContextFunc opens network connections for a pool.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// PoolSettings apply to every pool of a registry.
type PoolSettings struct {
	// DialContext replaces the default dialer.
	DialContext DialContextFunc
	// NewBackOff returns the wait strategy between retries.
	NewBackOff func() backoff.BackOff
	// Proxy is the proxy configuration; nil reads the environment.
	Proxy *httpproxy.Config
}

// Pool holds the connections and policies used for one host.
type Pool struct {
	options   *models.HostOptions
	client    *http.Client
	transport *http.Transport
	tlsConfig *tls.Config
	retry     RetryPolicy
}

func (p *Pool) Options() *models.HostOptions { return p.options }

func (p *Pool) Retry() RetryPolicy { return p.retry }

func baseTransport(settings PoolSettings) *http.Transport {
	dial := settings.DialContext
	if dial == nil {
		dial = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	}
	return &http.Transport{
		DialContext:           dial,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func newHostPool(opts *models.HostOptions, store *trust.Store, settings PoolSettings, proxyCfg *httpproxy.Config) (*Pool, error) {
	target, err := url.Parse(opts.APIURL)
	if err != nil {
		return nil, err
	}

	transport := baseTransport(settings)
	setup, err := hostProxy(proxyCfg, target)
	if err != nil {
		return nil, err
	}
	transport.Proxy = setup.proxy
	transport.ProxyConnectHeader = setup.connectHeader

	var tlsConfig *tls.Config
	if target.Scheme == "https" {
		if tlsConfig, err = newTLSConfig(opts, store); err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	pool := &Pool{
		options:   opts,
		transport: transport,
		tlsConfig: tlsConfig,
		retry:     newRetryPolicy(opts.RetryCount, opts.StatusForcelist(), settings.NewBackOff),
	}
	pool.client = &http.Client{Transport: transport, CheckRedirect: sameHostRedirects}
	log.Debugf("created connection pool for %s (verify=%t, retries=%d)", opts.APIURL, opts.CertVerify, opts.RetryCount)
	return pool, nil
}

func newDefaultPool(settings PoolSettings, proxyCfg *httpproxy.Config) *Pool {
	transport := baseTransport(settings)
	transport.Proxy = envProxy(proxyCfg)
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return &Pool{
		client:    &http.Client{Transport: transport},
		transport: transport,
		tlsConfig: transport.TLSClientConfig,
		retry:     newRetryPolicy(models.DefaultRetryCount, defaultFallbackStatuses, settings.NewBackOff),
	}
}

// sameHostRedirects keeps redirects on the host the pool verifies.
func sameHostRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return http.ErrUseLastResponse
	}
	if req.URL.Host != via[0].URL.Host || req.URL.Scheme != via[0].URL.Scheme {
		log.Warnf("not following redirect from %s to %s", via[0].URL.Host, req.URL.Host)
		return http.ErrUseLastResponse
	}
	return nil
}

// Do sends req through the retry policy. build returns a fresh request for
// every attempt.
func (p *Pool) Do(ctx context.Context, method string, build func() (*http.Request, error), hooks []Hook) (*http.Response, error) {
	return p.retry.Do(ctx, method, func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		for _, h := range hooks {
			h.OnRequest(req)
		}
		start := time.Now()
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		for _, h := range hooks {
			h.OnResponse(req, resp, time.Since(start))
		}
		return resp, nil
	})
}
