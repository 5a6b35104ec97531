package transport

import (
	"encoding/base64"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// proxySetup is the proxy configuration of one pool.
type proxySetup struct {
	proxy         func(*http.Request) (*url.URL, error)
	connectHeader http.Header
}

// hostProxy resolves the proxy for target once. Credentials embedded in
// the proxy URL of an https target move into the CONNECT header, so they
// are sent once per tunnel instead of with every request.
func hostProxy(cfg *httpproxy.Config, target *url.URL) (proxySetup, error) {
	proxyURL, err := cfg.ProxyFunc()(target)
	if err != nil {
		return proxySetup{}, err
	}
	if proxyURL == nil {
		return proxySetup{}, nil
	}

	setup := proxySetup{}
	if proxyURL.User != nil && target.Scheme == "https" {
		password, _ := proxyURL.User.Password()
		token := base64.StdEncoding.EncodeToString([]byte(proxyURL.User.Username() + ":" + password))
		setup.connectHeader = http.Header{"Proxy-Authorization": {"Basic " + token}}

		stripped := *proxyURL
		stripped.User = nil
		proxyURL = &stripped
	}
	setup.proxy = http.ProxyURL(proxyURL)
	return setup, nil
}

// envProxy follows the environment for any request URL.
func envProxy(cfg *httpproxy.Config) func(*http.Request) (*url.URL, error) {
	resolve := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return resolve(req.URL)
	}
}
