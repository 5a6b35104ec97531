package cookies

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"buildClient/internal/flock"
)

const lockSuffix = ".lock"

// ErrNotLocked is returned by Save when the caller does not hold the jar lock.
var ErrNotLocked = errors.New("cookie jar lock is not held")

// Jar is the in-memory view of one cookie file. Entries are kept for
// persisting; matching against request URLs is done by net/http/cookiejar.
type Jar struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
	inner   *cookiejar.Jar
	dirty   bool

	sem    chan struct{}
	lockMu sync.Mutex
	lock   *os.File
}

var _ http.CookieJar = (*Jar)(nil)

func newJar(path string) *Jar {
	j := &Jar{path: path, now: time.Now, sem: make(chan struct{}, 1)}
	j.reset(nil)
	return j
}

func (j *Jar) Path() string { return j.path }

func (j *Jar) LockPath() string { return j.path + lockSuffix }

// Lock takes the lock guarding the cookie file, against other goroutines
// and other processes. It is held until Unlock, typically across a whole
// request and its authentication.
func (j *Jar) Lock(ctx context.Context) error {
	select {
	case j.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for cookie jar %s: %w", j.path, ctx.Err())
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		<-j.sem
		return fmt.Errorf("create cookie jar directory: %w", err)
	}
	f, err := flock.Lock(ctx, j.LockPath())
	if err != nil {
		<-j.sem
		return err
	}

	j.lockMu.Lock()
	j.lock = f
	j.lockMu.Unlock()
	log.Debugf("acquired cookie jar lock %s", j.LockPath())
	return nil
}

// Unlock releases the lock taken by Lock. Calling it without holding the
// lock is a no-op.
func (j *Jar) Unlock() error {
	j.lockMu.Lock()
	f := j.lock
	j.lock = nil
	j.lockMu.Unlock()
	if f == nil {
		return nil
	}
	log.Debugf("releasing cookie jar lock %s", j.LockPath())
	err := flock.Unlock(f)
	<-j.sem
	return err
}

func (j *Jar) locked() bool {
	j.lockMu.Lock()
	defer j.lockMu.Unlock()
	return j.lock != nil
}

// Reload replaces the in-memory cookies with the file content. A missing
// file is an empty jar; an unreadable one is logged and ignored so that a
// fresh session can overwrite it.
func (j *Jar) Reload() error {
	entries, err := j.readFile()
	if err != nil {
		log.Warnf("ignoring cookie jar %s: %v", j.path, err)
		entries = nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.reset(entries)
	return nil
}

func (j *Jar) readFile() ([]Entry, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// reset rebuilds the lookup jar from entries. Callers hold j.mu.
func (j *Jar) reset(entries []Entry) {
	inner, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	j.inner = inner
	j.entries = make(map[string]Entry, len(entries))
	j.dirty = false

	now := j.now()
	for _, e := range entries {
		if e.expired(now) {
			continue
		}
		j.entries[e.key()] = e
		inner.SetCookies(e.url(), []*http.Cookie{e.cookie()})
	}
}

// Save writes the cookie file atomically. The jar lock must be held.
func (j *Jar) Save() error {
	if !j.locked() {
		return fmt.Errorf("save cookie jar %s: %w", j.path, ErrNotLocked)
	}

	j.mu.Lock()
	entries := j.sortedLocked()
	j.dirty = false
	j.mu.Unlock()

	var buf bytes.Buffer
	if err := Write(&buf, entries); err != nil {
		return err
	}

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create cookie jar directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(j.path)+"-*")
	if err != nil {
		return fmt.Errorf("save cookie jar: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("save cookie jar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save cookie jar: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("save cookie jar: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		return fmt.Errorf("save cookie jar: %w", err)
	}
	log.Debugf("saved %d cookies to %s", len(entries), j.path)
	return nil
}

// Dirty reports whether cookies changed since the last Reload or Save.
func (j *Jar) Dirty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dirty
}

// SetCookies records cookies received from u.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, c := range cookies {
		e, ok := entryFor(u, c, now)
		if !ok {
			log.Debugf("rejected cookie %s from %s", c.Name, u.Host)
			continue
		}
		if e.expired(now) {
			delete(j.entries, e.key())
		} else {
			j.entries[e.key()] = e
		}
		j.dirty = true
	}
	j.inner.SetCookies(u, cookies)
}

// Cookies returns the cookies to send to u.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// Entries returns the cookies that would be saved, ordered by domain, path
// and name.
func (j *Jar) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sortedLocked()
}

func (j *Jar) sortedLocked() []Entry {
	now := j.now()
	entries := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		if !e.expired(now) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].key() < entries[b].key() })
	return entries
}

// entryFor converts a received cookie to its stored form, applying the
// domain and path defaults of RFC 6265. Expired cookies come back with an
// expiry in the past so the caller can drop them.
func entryFor(u *url.URL, c *http.Cookie, now time.Time) (Entry, bool) {
	host := strings.ToLower(u.Hostname())
	if host == "" || c.Name == "" {
		return Entry{}, false
	}

	e := Entry{
		Domain:   host,
		HostOnly: true,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
		Name:     c.Name,
		Value:    c.Value,
	}

	if domain := strings.ToLower(strings.TrimPrefix(c.Domain, ".")); domain != "" && domain != host {
		if net.ParseIP(host) != nil || !strings.HasSuffix(host, "."+domain) {
			return Entry{}, false
		}
		if suffix, _ := publicsuffix.PublicSuffix(domain); suffix == domain {
			return Entry{}, false
		}
		e.Domain = domain
		e.HostOnly = false
	} else if domain == host && net.ParseIP(host) == nil {
		e.HostOnly = false
	}

	if e.Path == "" || e.Path[0] != '/' {
		e.Path = defaultPath(u.Path)
	}

	switch {
	case c.MaxAge < 0:
		e.Expires = time.Unix(1, 0)
	case c.MaxAge > 0:
		e.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		e.Expires = c.Expires
		if !e.Expires.After(now) {
			e.Expires = time.Unix(1, 0)
		}
	}
	return e, true
}

func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

// Registry hands out one Jar per cookie file path.
type Registry struct {
	mu   sync.Mutex
	jars map[string]*Jar
}

func NewRegistry() *Registry {
	return &Registry{jars: make(map[string]*Jar)}
}

// Jar returns the jar for path, creating it on first use.
func (r *Registry) Jar(path string) *Jar {
	path = filepath.Clean(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	if jar, ok := r.jars[path]; ok {
		return jar
	}
	jar := newJar(path)
	r.jars[path] = jar
	return jar
}
