// Package cookies keeps session cookies in a Netscape/curl format cookie
// file shared by every invocation of the client.
//
// https://curl.se/docs/http-cookies.html
package cookies

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	fileHeader     = "# Netscape HTTP Cookie File"
	httpOnlyPrefix = "#HttpOnly_"
)

// Entry is one line of a cookie file.
type Entry struct {
	Domain   string
	HostOnly bool
	Path     string
	Secure   bool
	HTTPOnly bool
	// Expires is zero for session cookies.
	Expires time.Time
	Name    string
	Value   string
}

func (e Entry) key() string {
	return e.Domain + "\t" + e.Path + "\t" + e.Name
}

func (e Entry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && !e.Expires.After(now)
}

// url returns an address the entry may be set from.
func (e Entry) url() *url.URL {
	scheme := "http"
	if e.Secure {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: e.Domain, Path: e.Path}
}

func (e Entry) cookie() *http.Cookie {
	c := &http.Cookie{
		Name:     e.Name,
		Value:    e.Value,
		Path:     e.Path,
		Secure:   e.Secure,
		HttpOnly: e.HTTPOnly,
		Expires:  e.Expires,
	}
	if !e.HostOnly {
		c.Domain = e.Domain
	}
	return c
}

// Read parses cookie file data.
func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		}
		if strings.TrimSpace(line) == "" || line[0] == '#' {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) != 7 {
			return nil, fmt.Errorf("malformed cookie file line %d: expected 7 fields, got %d", lineno, len(parts))
		}

		e := Entry{
			Domain:   strings.ToLower(strings.TrimPrefix(parts[0], ".")),
			Path:     parts[2],
			HTTPOnly: httpOnly,
			Name:     parts[5],
			Value:    parts[6],
		}
		subdomains, err := parseBool(parts[1])
		if err != nil {
			return nil, fmt.Errorf("cookie file line %d: include subdomains: %w", lineno, err)
		}
		e.HostOnly = !subdomains && !strings.HasPrefix(parts[0], ".")
		if e.Secure, err = parseBool(parts[3]); err != nil {
			return nil, fmt.Errorf("cookie file line %d: secure: %w", lineno, err)
		}
		expires, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cookie file line %d: invalid expiration %q", lineno, parts[4])
		}
		if expires > 0 {
			e.Expires = time.Unix(expires, 0)
		}
		if e.Domain == "" || e.Name == "" {
			return nil, fmt.Errorf("cookie file line %d: missing domain or name", lineno)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	return entries, nil
}

// Write serializes entries in cookie file format.
func Write(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, fileHeader)
	fmt.Fprintln(bw, "# This file is generated, edit at your own risk.")
	fmt.Fprintln(bw)
	for _, e := range entries {
		domain := e.Domain
		if !e.HostOnly {
			domain = "." + domain
		}
		if e.HTTPOnly {
			domain = httpOnlyPrefix + domain
		}
		var expires int64
		if !e.Expires.IsZero() {
			expires = e.Expires.Unix()
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain, formatBool(!e.HostOnly), e.Path, formatBool(e.Secure), expires, e.Name, e.Value)
	}
	return bw.Flush()
}

func parseBool(s string) (bool, error) {
	switch s {
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
