package transport

import (
	"net/http"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Hook observes every attempt sent by the executor.
type Hook interface {
	OnRequest(req *http.Request)
	OnResponse(req *http.Request, resp *http.Response, elapsed time.Duration)
}

var redactedHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
}

// LogHook writes requests and responses to the debug log. Bodies are never
// logged and credentials are masked.
type LogHook struct {
	Logger *log.Logger
}

func (h LogHook) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.StandardLogger()
}

func (h LogHook) OnRequest(req *http.Request) {
	l := h.logger()
	if !l.IsLevelEnabled(log.DebugLevel) {
		return
	}
	l.Debugf("> %s %s\n%s", req.Method, req.URL, formatHeader(req.Header, "> "))
}

func (h LogHook) OnResponse(req *http.Request, resp *http.Response, elapsed time.Duration) {
	l := h.logger()
	if !l.IsLevelEnabled(log.DebugLevel) {
		return
	}
	l.Debugf("< %s %s: %s in %v\n%s", req.Method, req.URL, resp.Status, elapsed.Round(time.Millisecond), formatHeader(resp.Header, "< "))
}

func formatHeader(header http.Header, prefix string) string {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range header[k] {
			if redactedHeaders[http.CanonicalHeaderKey(k)] {
				v = redact(v)
			}
			b.WriteString(prefix + k + ": " + v + "\n")
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// redact keeps the authentication scheme so the log still shows which
// handler answered.
func redact(value string) string {
	if scheme, _, ok := strings.Cut(value, " "); ok && !strings.Contains(scheme, "=") {
		return scheme + " <redacted>"
	}
	return "<redacted>"
}
