package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/net/http/httpproxy"

	"buildClient/internal/auth"
	"buildClient/internal/cookies"
	"buildClient/internal/credentials"
	apperror "buildClient/internal/error"
	"buildClient/internal/models"
	"buildClient/internal/prompt"
	sshsign "buildClient/internal/ssh"
	"buildClient/internal/trust"
)

const apiurl = "https://example.com"

type secrets map[string]string

func (s secrets) Secret(apiurl, field string) (string, bool) {
	v, ok := s[apiurl+"/"+field]
	return v, ok
}

func (s secrets) SetSecret(apiurl, field, value string) error {
	s[apiurl+"/"+field] = value
	return nil
}

func (s secrets) DeleteSecret(apiurl, field string) error {
	delete(s, apiurl+"/"+field)
	return nil
}

type mockFinder struct {
	mock.Mock
}

func (m *mockFinder) Find() (*sshsign.Signer, error) {
	args := m.Called()
	signer, _ := args.Get(0).(*sshsign.Signer)
	return signer, args.Error(1)
}

type env struct {
	server     *httptest.Server
	trustDir   string
	jarPath    string
	newBackOff func() backoff.BackOff
}

func newEnv(t *testing.T, handler http.HandlerFunc) *env {
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)
	dir := t.TempDir()
	return &env{
		server:   server,
		trustDir: filepath.Join(dir, "trusted-certs"),
		jarPath:  filepath.Join(dir, "cookiejar"),
	}
}

// trustServer pins the test server certificate as if a previous run had
// accepted it permanently.
func (e *env) trustServer(t *testing.T) {
	require.NoError(t, os.MkdirAll(e.trustDir, 0700))
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: e.server.Certificate().Raw})
	require.NoError(t, os.WriteFile(filepath.Join(e.trustDir, "example.com_443.pem"), data, 0600))
}

func (e *env) settings() PoolSettings {
	addr := e.server.Listener.Addr().String()
	newBackOff := e.newBackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	}
	return PoolSettings{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
		NewBackOff: newBackOff,
		Proxy:      &httpproxy.Config{},
	}
}

// shortBackOff gives up once limit has elapsed, however many retries remain.
func shortBackOff(limit time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := &backoff.ExponentialBackOff{
			InitialInterval: time.Millisecond,
			Multiplier:      1,
			MaxInterval:     time.Millisecond,
			MaxElapsedTime:  limit,
			Stop:            backoff.Stop,
			Clock:           backoff.SystemClock,
		}
		b.Reset()
		return b
	}
}

func (e *env) executor(prompter prompt.Provider, config credentials.ConfigStore, opts ...Option) *Executor {
	registry := NewRegistry(trust.NewStore(e.trustDir, prompter), e.settings())
	creds := credentials.NewRegistry(credentials.Deps{Config: config, Prompter: prompter})
	opts = append([]Option{WithCookieJar(e.jarPath)}, opts...)
	return NewExecutor(registry, cookies.NewRegistry(), creds, opts...)
}

func hostOptions(modify ...func(*models.HostOptions)) *models.HostOptions {
	opts := &models.HostOptions{
		APIURL:                  apiurl,
		Username:                "alice",
		CertVerify:              true,
		RetryCount:              models.DefaultRetryCount,
		CredentialsManagerClass: credentials.ClassPlaintext,
	}
	for _, m := range modify {
		m(opts)
	}
	return opts
}

func ok(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "ok")
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func newSigner(t *testing.T) *sshsign.Signer {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(key)
	require.NoError(t, err)
	return sshsign.NewSigner(signer, models.KeySourceFile, "")
}

func otherCertificate(t *testing.T) []byte {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "example.com"},
		DNSNames:     []string{"example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func TestTrustOnFirstUse(t *testing.T) {
	e := newEnv(t, ok)
	prompter := &prompt.Scripted{TrustAnswers: []prompt.TrustChoice{prompt.TrustPermanently}}

	resp, err := e.executor(prompter, secrets{}).Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/a", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", readBody(t, resp))
	assert.Equal(t, 1, prompter.TrustPromptCount())
	assert.FileExists(t, filepath.Join(e.trustDir, "example.com_443.pem"))

	// A new process with the same configuration directory does not ask.
	resp, err = e.executor(prompt.NonInteractive{}, secrets{}).Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/a", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", readBody(t, resp))
}

func TestTrustForSessionOnly(t *testing.T) {
	e := newEnv(t, ok)
	prompter := &prompt.Scripted{TrustAnswers: []prompt.TrustChoice{prompt.TrustTemporarily}}
	executor := e.executor(prompter, secrets{})

	for i := 0; i < 2; i++ {
		resp, err := executor.Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/a", nil, nil)
		require.NoError(t, err)
		readBody(t, resp)
	}
	assert.Equal(t, 1, prompter.TrustPromptCount())
	assert.NoFileExists(t, filepath.Join(e.trustDir, "example.com_443.pem"))
}

func TestRejectedTrustAborts(t *testing.T) {
	var hits int32
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		ok(w, r)
	})

	for name, prompter := range map[string]prompt.Provider{
		"abort":           &prompt.Scripted{TrustAnswers: []prompt.TrustChoice{prompt.TrustAbort}},
		"non-interactive": prompt.NonInteractive{},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.executor(prompter, secrets{}).Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/a", nil, nil)
			var untrusted *apperror.CertificateUntrustedError
			require.True(t, errors.As(err, &untrusted), "got %v", err)
			assert.Equal(t, "example.com", untrusted.Host)
			assert.Equal(t, "443", untrusted.Port)
			assert.NoDirExists(t, e.trustDir)
		})
	}
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestChangedCertificateIsFatal(t *testing.T) {
	e := newEnv(t, ok)
	require.NoError(t, os.MkdirAll(e.trustDir, 0700))
	pinned := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: otherCertificate(t)})
	path := filepath.Join(e.trustDir, "example.com_443.pem")
	require.NoError(t, os.WriteFile(path, pinned, 0600))

	prompter := &prompt.Scripted{TrustAnswers: []prompt.TrustChoice{prompt.TrustPermanently, prompt.TrustPermanently}}
	_, err := e.executor(prompter, secrets{}).Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/a", nil, nil)

	var changed *apperror.CertificateIdentityChangedError
	require.True(t, errors.As(err, &changed), "got %v", err)
	assert.Equal(t, path, changed.Path)
	assert.Contains(t, err.Error(), "REMOTE HOST IDENTIFICATION HAS CHANGED")
	assert.Zero(t, prompter.TrustPromptCount())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pinned, data)
}

func TestValidSessionCookieSkipsReactiveAuth(t *testing.T) {
	var hits int32
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if c, err := r.Cookie("session"); err == nil && c.Value == "valid" {
			ok(w, r)
			return
		}
		w.Header().Add("WWW-Authenticate", `Signature realm="x",headers="(created)"`)
		w.Header().Add("WWW-Authenticate", `Basic realm="x"`)
		w.WriteHeader(http.StatusUnauthorized)
	})
	e.trustServer(t)

	jar := cookies.NewRegistry().Jar(e.jarPath)
	jar.SetCookies(mustParse(t, apiurl+"/"), []*http.Cookie{{Name: "session", Value: "valid", Path: "/"}})
	require.NoError(t, jar.Lock(context.Background()))
	require.NoError(t, jar.Save())
	require.NoError(t, jar.Unlock())

	finder := &mockFinder{}
	prompter := &prompt.Scripted{}
	opts := hostOptions(func(o *models.HostOptions) { o.CredentialsManagerClass = credentials.ClassTransient })
	executor := e.executor(prompter, secrets{}, WithSignerFinder(func(*models.HostOptions) auth.SignerFinder { return finder }))

	resp, err := executor.Execute(context.Background(), opts, http.MethodGet, apiurl+"/source", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", readBody(t, resp))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	finder.AssertNotCalled(t, "Find")
	assert.Zero(t, prompter.PasswordPromptCount())
}

func TestSignatureWinsOverBasic(t *testing.T) {
	var authorizations []string
	var mu sync.Mutex
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		mu.Lock()
		authorizations = append(authorizations, authz)
		mu.Unlock()
		if strings.HasPrefix(authz, `Signature keyId="alice"`) {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "fresh", Path: "/"})
			ok(w, r)
			return
		}
		w.Header().Add("WWW-Authenticate", `Signature realm="Use your developer account",headers="(created)"`)
		w.Header().Add("WWW-Authenticate", `Basic realm="Build Service"`)
		w.WriteHeader(http.StatusUnauthorized)
	})
	e.trustServer(t)

	finder := &mockFinder{}
	finder.On("Find").Return(newSigner(t), nil)
	executor := e.executor(&prompt.Scripted{}, secrets{apiurl + "/pass": "s3cret"},
		WithSignerFinder(func(*models.HostOptions) auth.SignerFinder { return finder }))

	opts := hostOptions(func(o *models.HostOptions) { o.SSHKeyPath = "/keys/id_ed25519" })
	resp, err := executor.Execute(context.Background(), opts, http.MethodGet, apiurl+"/source", nil, nil)
	require.NoError(t, err)
	readBody(t, resp)

	require.Len(t, authorizations, 2)
	assert.Empty(t, authorizations[0])
	assert.Regexp(t, `^Signature keyId="alice",algorithm="ssh",headers="\(created\)",created=\d+,signature="`, authorizations[1])
	finder.AssertNumberOfCalls(t, "Find", 1)

	// The new session cookie was stored for the next run.
	jar := cookies.NewRegistry().Jar(e.jarPath)
	require.NoError(t, jar.Reload())
	require.Len(t, jar.Entries(), 1)
	assert.Equal(t, "fresh", jar.Entries()[0].Value)
	assert.NoFileExists(t, jar.LockPath())
}

func TestSecond401IsAuthenticationFailure(t *testing.T) {
	var hits int32
	var lastAuthz atomic.Value
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		lastAuthz.Store(r.Header.Get("Authorization"))
		w.Header().Set("WWW-Authenticate", `Basic realm="x"`)
		w.WriteHeader(http.StatusUnauthorized)
	})
	e.trustServer(t)

	executor := e.executor(&prompt.Scripted{}, secrets{apiurl + "/pass": "wrong"})
	_, err := executor.Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/source", nil, nil)

	var authErr *apperror.AuthenticationFailedError
	require.True(t, errors.As(err, &authErr), "got %v", err)
	assert.Equal(t, "basic", authErr.Handler)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.True(t, strings.HasPrefix(lastAuthz.Load().(string), "Basic "))
}

func TestEmptyPasswordSendsNoCredentials(t *testing.T) {
	var hits int32
	var sawAuthorization int32
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("Authorization") != "" {
			atomic.AddInt32(&sawAuthorization, 1)
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="x"`)
		w.WriteHeader(http.StatusUnauthorized)
	})
	e.trustServer(t)

	executor := e.executor(&prompt.Scripted{}, secrets{apiurl + "/pass": ""})
	_, err := executor.Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/source", nil, nil)

	var authErr *apperror.AuthenticationFailedError
	require.True(t, errors.As(err, &authErr), "got %v", err)
	assert.Equal(t, `Basic realm="x"`, authErr.Challenge)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Zero(t, atomic.LoadInt32(&sawAuthorization))
}

func TestConcurrentRunsShareCookieJar(t *testing.T) {
	var active, maxActive int32
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		name := strings.TrimPrefix(r.URL.Path, "/")
		http.SetCookie(w, &http.Cookie{Name: name, Value: "1", Path: "/", MaxAge: 3600})
		ok(w, r)
	})
	e.trustServer(t)

	var wg sync.WaitGroup
	for _, name := range []string{"first", "second"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			// Separate registries stand in for separate processes.
			executor := e.executor(&prompt.Scripted{}, secrets{})
			resp, err := executor.Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/"+name, nil, nil)
			if assert.NoError(t, err) {
				resp.Body.Close()
			}
		}(name)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	data, err := os.ReadFile(e.jarPath)
	require.NoError(t, err)
	entries, err := cookies.Read(strings.NewReader(string(data)))
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	assert.ElementsMatch(t, []string{"first", "second"}, names)
}

func TestRetriesForcelistStatuses(t *testing.T) {
	var hits int32
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ok(w, r)
	})
	e.trustServer(t)

	resp, err := e.executor(&prompt.Scripted{}, secrets{}).Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/build", nil, nil)
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRetryExhaustionReturnsLastStatus(t *testing.T) {
	var hits int32
	e := newEnv(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "<status code=\"busy\"/>")
	})
	e.trustServer(t)

	opts := hostOptions(func(o *models.HostOptions) { o.RetryCount = 2 })
	_, err := e.executor(&prompt.Scripted{}, secrets{}).Execute(context.Background(), opts, http.MethodGet, apiurl+"/build", nil, nil)

	var statusErr *apperror.HTTPStatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, `<status code="busy"/>`, string(statusErr.Body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestBackOffGivingUpReturnsLastStatus(t *testing.T) {
	var hits int32
	e := newEnv(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(30 * time.Millisecond)
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "<status code=\"busy\"/>")
	})
	e.trustServer(t)
	e.newBackOff = shortBackOff(20 * time.Millisecond)

	opts := hostOptions(func(o *models.HostOptions) { o.RetryCount = 5 })
	_, err := e.executor(&prompt.Scripted{}, secrets{}).Execute(context.Background(), opts, http.MethodGet, apiurl+"/x", nil, nil)

	var statusErr *apperror.HTTPStatusError
	require.True(t, errors.As(err, &statusErr), "got %T: %v", err, err)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "120", statusErr.Header.Get("Retry-After"))
	assert.Equal(t, `<status code="busy"/>`, string(statusErr.Body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestHeldCookieJarLockLeavesJarUntouched(t *testing.T) {
	var sent atomic.Value
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		sent.Store(r.Header.Get("Cookie"))
		http.SetCookie(w, &http.Cookie{Name: "new", Value: "n1", Path: "/", MaxAge: 3600})
		w.WriteHeader(http.StatusOK)
	})
	e.trustServer(t)

	holder := cookies.NewRegistry().Jar(e.jarPath)
	require.NoError(t, holder.Lock(context.Background()))
	holder.SetCookies(mustParse(t, apiurl+"/"), []*http.Cookie{{Name: "session", Value: "s1", Path: "/", MaxAge: 3600}})
	require.NoError(t, holder.Save())
	defer holder.Unlock()

	executor := e.executor(&prompt.Scripted{}, secrets{}, WithLockTimeout(50*time.Millisecond))
	resp, err := executor.Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/x", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "", sent.Load())

	fresh := cookies.NewRegistry().Jar(e.jarPath)
	require.NoError(t, fresh.Reload())
	var names []string
	for _, entry := range fresh.Entries() {
		names = append(names, entry.Name)
	}
	assert.Equal(t, []string{"session"}, names)
}

func TestNoStatusRetriesForPostOrEmptyForcelist(t *testing.T) {
	var hits int32
	e := newEnv(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	})
	e.trustServer(t)
	executor := e.executor(&prompt.Scripted{}, secrets{})

	_, err := executor.Execute(context.Background(), hostOptions(), http.MethodPost, apiurl+"/build?cmd=rebuild", nil, strings.NewReader("<x/>"))
	var statusErr *apperror.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	other := hostOptions(func(o *models.HostOptions) {
		o.APIURL = "https://example.com:443"
		o.RetryOnStatus = []int{}
	})
	_, err = executor.Execute(context.Background(), other, http.MethodGet, apiurl+"/build", nil, nil)
	assert.Error(t, err)
}

func TestFileBodyIsStreamedAndReplayed(t *testing.T) {
	var hits int32
	var mu sync.Mutex
	var bodies, contentTypes []string
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		contentTypes = append(contentTypes, r.Header.Get("Content-Type"))
		mu.Unlock()
		assert.Equal(t, "application/xml", r.Header.Get("Accept"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "bcli/"))
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		ok(w, r)
	})
	e.trustServer(t)

	path := filepath.Join(t.TempDir(), "_meta")
	require.NoError(t, os.WriteFile(path, []byte("<package name=\"foo\"/>"), 0600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	resp, err := e.executor(&prompt.Scripted{}, secrets{}).Execute(context.Background(), hostOptions(), http.MethodPut, apiurl+"/source/home:alice/foo/_meta", nil, f)
	require.NoError(t, err)
	readBody(t, resp)

	assert.Equal(t, []string{`<package name="foo"/>`, `<package name="foo"/>`}, bodies)
	assert.Equal(t, []string{contentTypeXML, contentTypeXML}, contentTypes)
	_, err = f.Seek(0, io.SeekStart)
	assert.NoError(t, err, "the caller's file must stay open")
}

func TestCallerHeadersWin(t *testing.T) {
	var got http.Header
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		ok(w, r)
	})
	e.trustServer(t)

	header := http.Header{"Content-Type": {"application/octet-stream"}, "Accept": {"text/plain"}}
	resp, err := e.executor(&prompt.Scripted{}, secrets{}, WithUserAgent("custom/1.0")).
		Execute(context.Background(), hostOptions(), http.MethodPost, apiurl+"/upload", header, strings.NewReader("raw"))
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, "application/octet-stream", got.Get("Content-Type"))
	assert.Equal(t, "text/plain", got.Get("Accept"))
	assert.Equal(t, "custom/1.0", got.Get("User-Agent"))
}

func TestRedirects(t *testing.T) {
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moved":
			http.Redirect(w, r, "/a", http.StatusFound)
		case "/away":
			http.Redirect(w, r, "https://elsewhere.example.org/a", http.StatusFound)
		default:
			ok(w, r)
		}
	})
	e.trustServer(t)
	executor := e.executor(&prompt.Scripted{}, secrets{})

	resp, err := executor.Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/moved", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", readBody(t, resp))

	_, err = executor.Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/away", nil, nil)
	var statusErr *apperror.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusFound, statusErr.StatusCode)
}

type recordingHook struct {
	mu        sync.Mutex
	requests  []string
	responses []int
}

func (h *recordingHook) OnRequest(req *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req.Method+" "+req.URL.Path)
}

func (h *recordingHook) OnResponse(_ *http.Request, resp *http.Response, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, resp.StatusCode)
}

func TestHooksSeeEveryAttempt(t *testing.T) {
	var hits int32
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ok(w, r)
	})
	e.trustServer(t)

	hook := &recordingHook{}
	resp, err := e.executor(&prompt.Scripted{}, secrets{}, WithHook(hook), WithHook(LogHook{})).
		Execute(context.Background(), hostOptions(), http.MethodGet, apiurl+"/about", nil, nil)
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, []string{"GET /about", "GET /about"}, hook.requests)
	assert.Equal(t, []int{503, 200}, hook.responses)
}

type staticResolver map[string]*models.HostOptions

func (r staticResolver) Resolve(rawURL string) (*models.HostOptions, bool) {
	for prefix, opts := range r {
		if strings.HasPrefix(rawURL, prefix) {
			return opts, true
		}
	}
	return nil, false
}

func TestResolverSuppliesOptions(t *testing.T) {
	e := newEnv(t, ok)
	e.trustServer(t)
	executor := e.executor(&prompt.Scripted{}, secrets{}, WithResolver(staticResolver{apiurl: hostOptions()}))

	resp, err := executor.Execute(context.Background(), nil, http.MethodGet, apiurl+"/about", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", readBody(t, resp))
	assert.Equal(t, 1, executor.registry.Len())
}

func TestUnknownHostsUseDefaultPool(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		ok(w, r)
	}))
	defer server.Close()

	jarPath := filepath.Join(t.TempDir(), "cookiejar")
	registry := NewRegistry(trust.NewStore(t.TempDir(), nil), PoolSettings{
		Proxy:      &httpproxy.Config{},
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	executor := NewExecutor(registry, cookies.NewRegistry(), nil, WithCookieJar(jarPath))

	resp, err := executor.Execute(context.Background(), nil, http.MethodGet, server.URL+"/plain", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", readBody(t, resp))
	assert.Empty(t, got.Get("Authorization"))
	assert.Empty(t, got.Get("Cookie"))
	assert.Equal(t, 0, registry.Len())
	assert.NoFileExists(t, jarPath+".lock")

	_, err = executor.Execute(context.Background(), nil, http.MethodGet, "http://127.0.0.1:1/unreachable", nil, nil)
	var transportErr *apperror.TransportError
	assert.True(t, errors.As(err, &transportErr), "got %v", err)
}

func mustParse(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
