// internal/models/host.go

package models

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	DefaultRetryCount = 3
)

// DefaultRetryOnStatus is the status forcelist used when a host does not
// configure its own. The build service answers 400 while an operation is
// still in progress, so it is retried together with the usual server errors.
var DefaultRetryOnStatus = []int{400, 500, 502, 503, 504}

// HostOptions describes how to talk to one instance of the build service.
// CredentialRef is the password field as read with the configuration, in
// the encoding of the config-file store that owns it.
type HostOptions struct {
	APIURL                  string
	Username                string
	CredentialRef           string
	SSHKeyPath              string
	CertVerify              bool
	CAPath                  string
	RetryCount              int
	RetryOnStatus           []int
	CredentialsManagerClass string
	Realm                   string
}

// NormalizeAPIURL reduces rawURL to scheme://host[:port] in lower case.
// A missing scheme defaults to https.
func NormalizeAPIURL(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("apiurl cannot be empty")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid apiurl %q: %v", rawURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("invalid apiurl %q: unsupported scheme %q", rawURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid apiurl %q: missing host", rawURL)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

func (h *HostOptions) parsed() *url.URL {
	u, err := url.Parse(h.APIURL)
	if err != nil {
		return &url.URL{}
	}
	return u
}

// Scheme returns the URL scheme of the api url.
func (h *HostOptions) Scheme() string {
	return h.parsed().Scheme
}

// Host returns the host name of the api url without port.
func (h *HostOptions) Host() string {
	return h.parsed().Hostname()
}

// Port returns the explicit port or the scheme default.
func (h *HostOptions) Port() string {
	u := h.parsed()
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "http" {
		return "80"
	}
	return "443"
}

// Address returns host:port suitable for dialing.
func (h *HostOptions) Address() string {
	return net.JoinHostPort(h.Host(), h.Port())
}

// StatusForcelist returns the configured retry statuses or the defaults.
func (h *HostOptions) StatusForcelist() []int {
	if h.RetryOnStatus != nil {
		return h.RetryOnStatus
	}
	return DefaultRetryOnStatus
}

// Validate checks that the options are usable by the transport.
func (h *HostOptions) Validate() error {
	normalized, err := NormalizeAPIURL(h.APIURL)
	if err != nil {
		return err
	}
	if normalized != h.APIURL {
		return fmt.Errorf("apiurl %q is not normalized, expected %q", h.APIURL, normalized)
	}
	if h.RetryCount < 0 {
		return fmt.Errorf("http_retries for %s cannot be negative", h.APIURL)
	}
	for _, status := range h.RetryOnStatus {
		if status < 100 || status > 599 {
			return fmt.Errorf("retry_on_status for %s contains invalid status %d", h.APIURL, status)
		}
	}
	return nil
}

// Clone returns a copy that shares no slices with h.
func (h *HostOptions) Clone() *HostOptions {
	c := *h
	if h.RetryOnStatus != nil {
		c.RetryOnStatus = append([]int(nil), h.RetryOnStatus...)
	}
	return &c
}
