package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildClient/internal/config"
	apperror "buildClient/internal/error"
	"buildClient/internal/prompt"
)

type fixture struct {
	dir        string
	configPath string
}

func newFixture(t *testing.T, hosts string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{dir: dir, configPath: filepath.Join(dir, "config.yaml")}
	content := fmt.Sprintf("general:\n  cookiejar: %s\n  trusted_certs_dir: %s\nhosts:\n%s",
		filepath.Join(dir, "cookiejar"), filepath.Join(dir, "trusted-certs"), hosts)
	require.NoError(t, os.WriteFile(f.configPath, []byte(content), 0600))
	return f
}

func (f *fixture) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&app{prompter: prompt.NonInteractive{}})
	cmd.SetArgs(append([]string{"--config", f.configPath, "--log-file", "console", "--log-level", "error"}, args...))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func basicServer(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "s3cret" {
			w.Header().Set("WWW-Authenticate", `Basic realm="build service"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/about":
			fmt.Fprint(w, `<about><title>build service</title></about>`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<status code="not_found"/>`)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func hostSection(apiurl, extra string) string {
	return fmt.Sprintf("  - apiurl: %s\n    user: alice\n    http_retries: 0\n%s", apiurl, extra)
}

func TestAPIAuthenticatesWithConfiguredPassword(t *testing.T) {
	server := basicServer(t)
	f := newFixture(t, hostSection(server.URL, "    pass: s3cret\n"))

	stdout, _, err := f.run(t, "", "api", "/about")
	require.NoError(t, err)
	assert.Equal(t, `<about><title>build service</title></about>`, stdout)
}

func TestAPIReportsStatusErrors(t *testing.T) {
	server := basicServer(t)
	f := newFixture(t, hostSection(server.URL, "    pass: s3cret\n"))

	_, stderr, err := f.run(t, "", "api", "-X", "get", server.URL+"/missing")
	require.Error(t, err)
	assert.Equal(t, 5, exitCode(err))
	assert.Contains(t, stderr, `<status code="not_found"/>`)
}

func TestAPIWithoutPasswordFailsAuthentication(t *testing.T) {
	server := basicServer(t)
	f := newFixture(t, hostSection(server.URL, "    credentials_mgr_class: plaintext\n"))

	_, _, err := f.run(t, "", "api", "/about")
	var authErr *apperror.AuthenticationFailedError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, 4, exitCode(err))
}

func TestAPIRejectsMalformedHeader(t *testing.T) {
	server := basicServer(t)
	f := newFixture(t, hostSection(server.URL, "    pass: s3cret\n"))

	_, _, err := f.run(t, "", "api", "-H", "no-colon", "/about")
	assert.ErrorContains(t, err, "invalid header")
}

func TestPasswordSetAndDelete(t *testing.T) {
	f := newFixture(t, hostSection("https://api.example.com", "    credentials_mgr_class: obfuscated\n"))

	stdout, _, err := f.run(t, "s3cret\n", "password", "set", "--stdin")
	require.NoError(t, err)
	assert.Contains(t, stdout, "obfuscated store")

	m := config.NewManager(f.configPath)
	require.NoError(t, m.Load())
	stored, ok := m.Secret("https://api.example.com", config.FieldPassX)
	require.True(t, ok)
	assert.NotEqual(t, "s3cret", stored)

	_, _, err = f.run(t, "", "password", "delete")
	require.NoError(t, err)
	require.NoError(t, m.Load())
	_, ok = m.Secret("https://api.example.com", config.FieldPassX)
	assert.False(t, ok)
}

func TestPasswordSetNeedsTerminalWithoutStdinFlag(t *testing.T) {
	f := newFixture(t, hostSection("https://api.example.com", "    credentials_mgr_class: plaintext\n"))

	_, _, err := f.run(t, "", "password", "set")
	assert.ErrorIs(t, err, prompt.ErrNonInteractive)
}

func TestTrustListAndForget(t *testing.T) {
	f := newFixture(t, hostSection("https://api.example.com", ""))

	stdout, _, err := f.run(t, "", "trust", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No trusted certificates")

	stdout, _, err = f.run(t, "", "trust", "forget", "api.example.com")
	require.NoError(t, err)
	assert.Contains(t, stdout, "api.example.com:443")
}
