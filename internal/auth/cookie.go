package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"buildClient/internal/cookies"
)

const DefaultLockTimeout = 5 * time.Minute

// CookieHandler replays the stored session cookie. It holds the jar lock
// from the first attempt until the final response is stored.
type CookieHandler struct {
	jar         *cookies.Jar
	lockTimeout time.Duration
	locked      bool
}

func NewCookieHandler(jar *cookies.Jar, lockTimeout time.Duration) *CookieHandler {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &CookieHandler{jar: jar, lockTimeout: lockTimeout}
}

func (h *CookieHandler) Name() string { return "cookie" }

func (h *CookieHandler) SetPreemptiveHeaders(ctx context.Context, req *http.Request) Result {
	if h.jar == nil {
		return NotApplicable()
	}
	if !h.locked {
		lockCtx, cancel := context.WithTimeout(ctx, h.lockTimeout)
		defer cancel()
		if err := h.jar.Lock(lockCtx); err != nil {
			return Failed(fmt.Errorf("lock cookie jar: %w", err))
		}
		h.locked = true
		// Another process may have stored a fresh session while we waited.
		if err := h.jar.Reload(); err != nil {
			if unlockErr := h.Finish(); unlockErr != nil {
				log.Warnf("unlock cookie jar: %v", unlockErr)
			}
			return Failed(err)
		}
	}

	found := h.jar.Cookies(req.URL)
	if len(found) == 0 {
		return NotApplicable()
	}
	pairs := make([]string, 0, len(found))
	for _, c := range found {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	log.Debugf("sending %d stored cookies to %s", len(found), req.URL.Host)
	return Applied(http.Header{"Cookie": {strings.Join(pairs, "; ")}})
}

// SetHeadersAfter401 never applies.
func (h *CookieHandler) SetHeadersAfter401(context.Context, *http.Request, *http.Response) Result {
	return NotApplicable()
}

// ProcessResponse stores received cookies. Without the jar lock nothing is
// written, since the jar was not reloaded from disk.
func (h *CookieHandler) ProcessResponse(req *http.Request, resp *http.Response) error {
	if h.jar == nil {
		return nil
	}
	if !h.locked {
		if len(resp.Cookies()) > 0 {
			log.Warnf("not storing cookies from %s: cookie jar %s is not locked", req.URL.Host, h.jar.Path())
		}
		return nil
	}
	defer h.Finish()

	received := resp.Cookies()
	if len(received) == 0 {
		return nil
	}
	h.jar.SetCookies(req.URL, received)
	if !h.jar.Dirty() {
		return nil
	}
	return h.jar.Save()
}

func (h *CookieHandler) Finish() error {
	if !h.locked {
		return nil
	}
	h.locked = false
	return h.jar.Unlock()
}
