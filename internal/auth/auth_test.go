package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"

	"buildClient/internal/cookies"
	apperror "buildClient/internal/error"
	"buildClient/internal/models"
	sshsign "buildClient/internal/ssh"
)

type mockHandler struct {
	mock.Mock
	name string
}

func (m *mockHandler) Name() string { return m.name }

func (m *mockHandler) SetPreemptiveHeaders(ctx context.Context, req *http.Request) Result {
	return m.Called(ctx, req).Get(0).(Result)
}

func (m *mockHandler) SetHeadersAfter401(ctx context.Context, req *http.Request, resp *http.Response) Result {
	return m.Called(ctx, req, resp).Get(0).(Result)
}

func (m *mockHandler) ProcessResponse(req *http.Request, resp *http.Response) error {
	return m.Called(req, resp).Error(0)
}

type mockFinder struct {
	mock.Mock
}

func (m *mockFinder) Find() (*sshsign.Signer, error) {
	args := m.Called()
	signer, _ := args.Get(0).(*sshsign.Signer)
	return signer, args.Error(1)
}

func newRequest(t *testing.T) *http.Request {
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/source/home:alice", nil)
	require.NoError(t, err)
	return req
}

func unauthorized(challenges ...string) *http.Response {
	resp := &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}
	for _, c := range challenges {
		resp.Header.Add("WWW-Authenticate", c)
	}
	return resp
}

func newSigner(t *testing.T) *sshsign.Signer {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(key)
	require.NoError(t, err)
	return sshsign.NewSigner(signer, models.KeySourceFile, "/home/alice/.ssh/id_ed25519")
}

func TestParseChallenges(t *testing.T) {
	challenges := ParseChallenges([]string{
		`Signature realm="Use your developer account",headers="(created)", Basic realm="Build \"Service\""`,
		`Bearer`,
	})
	require.Len(t, challenges, 3)
	assert.Equal(t, "Signature", challenges[0].Scheme)
	assert.Equal(t, map[string]string{"realm": "Use your developer account", "headers": "(created)"}, challenges[0].Params)
	assert.Equal(t, "Basic", challenges[1].Scheme)
	assert.Equal(t, `Build "Service"`, challenges[1].Params["realm"])
	assert.Equal(t, "Bearer", challenges[2].Scheme)
	assert.Empty(t, challenges[2].Params)

	assert.NotNil(t, FindChallenge(unauthorized(`basic realm=x`), "Basic"))
	assert.Nil(t, FindChallenge(unauthorized(`Negotiate abc==`), "Basic"))
	assert.Nil(t, FindChallenge(nil, "Basic"))
}

func TestReactiveStopsAtFirstApplied(t *testing.T) {
	first := &mockHandler{name: "first"}
	second := &mockHandler{name: "second"}
	third := &mockHandler{name: "third"}
	first.On("SetHeadersAfter401", mock.Anything, mock.Anything, mock.Anything).Return(NotApplicable())
	second.On("SetHeadersAfter401", mock.Anything, mock.Anything, mock.Anything).
		Return(Applied(http.Header{"Authorization": {"Second"}}))

	req := newRequest(t)
	attempt := &Attempt{}
	require.NoError(t, NewChain(first, second, third).Reactive(context.Background(), req, unauthorized("Basic"), attempt))

	assert.Equal(t, "second", attempt.Reactive)
	assert.Equal(t, "Second", req.Header.Get("Authorization"))
	first.AssertExpectations(t)
	second.AssertExpectations(t)
	third.AssertNotCalled(t, "SetHeadersAfter401", mock.Anything, mock.Anything, mock.Anything)
}

func TestReactiveReportsEveryFailure(t *testing.T) {
	broken := &mockHandler{name: "broken"}
	idle := &mockHandler{name: "idle"}
	broken.On("SetHeadersAfter401", mock.Anything, mock.Anything, mock.Anything).Return(Failed(errors.New("agent exploded")))
	idle.On("SetHeadersAfter401", mock.Anything, mock.Anything, mock.Anything).Return(NotApplicable())

	req := newRequest(t)
	err := NewChain(broken, idle).Reactive(context.Background(), req, unauthorized(`Basic realm="x"`), &Attempt{})

	var authErr *apperror.AuthenticationFailedError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, `Basic realm="x"`, authErr.Challenge)
	assert.Contains(t, err.Error(), "agent exploded")
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestPreemptiveAndFinish(t *testing.T) {
	cookie := &mockHandler{name: "cookie"}
	other := &mockHandler{name: "other"}
	cookie.On("SetPreemptiveHeaders", mock.Anything, mock.Anything).Return(Applied(http.Header{"Cookie": {"session=1"}}))
	other.On("SetPreemptiveHeaders", mock.Anything, mock.Anything).Return(NotApplicable())
	cookie.On("ProcessResponse", mock.Anything, mock.Anything).Return(nil)
	other.On("ProcessResponse", mock.Anything, mock.Anything).Return(errors.New("boom"))

	chain := NewChain(cookie, other)
	req := newRequest(t)
	attempt := chain.Preemptive(context.Background(), req)
	assert.Equal(t, []string{"cookie"}, attempt.Preemptive)
	assert.Equal(t, "session=1", req.Header.Get("Cookie"))

	err := chain.ProcessResponse(req, &http.Response{StatusCode: http.StatusOK, Header: http.Header{}})
	assert.ErrorContains(t, err, "other: boom")
	assert.NoError(t, chain.Finish())
	cookie.AssertExpectations(t)
	other.AssertExpectations(t)
}

var signatureHeader = regexp.MustCompile(`^Signature keyId="alice",algorithm="ssh",headers="\(created\)",created=(\d+),signature="([A-Za-z0-9+/=]+)"$`)

func TestSignatureHandler(t *testing.T) {
	finder := &mockFinder{}
	signer := newSigner(t)
	finder.On("Find").Return(signer, nil)

	h := NewSignatureHandler("alice", "", finder)
	h.now = func() time.Time { return time.Unix(1700000000, 0) }

	result := h.SetHeadersAfter401(context.Background(), newRequest(t), unauthorized(`Signature realm="Use your developer account",headers="(created)"`))
	require.Equal(t, OutcomeApplied, result.Outcome)

	match := signatureHeader.FindStringSubmatch(result.Header.Get("Authorization"))
	require.NotNil(t, match, result.Header.Get("Authorization"))
	assert.Equal(t, "1700000000", match[1])

	blob, err := base64.StdEncoding.DecodeString(match[2])
	require.NoError(t, err)
	pub, err := sshsign.VerifyMessage(blob, "Use your developer account", []byte("(created): 1700000000"))
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey().Marshal(), pub.Marshal())
}

func TestSignatureHandlerRealmOverride(t *testing.T) {
	finder := &mockFinder{}
	finder.On("Find").Return(newSigner(t), nil)
	h := NewSignatureHandler("alice", "custom", finder)

	result := h.SetHeadersAfter401(context.Background(), newRequest(t), unauthorized(`Signature realm="server"`))
	require.Equal(t, OutcomeApplied, result.Outcome)
	match := signatureHeader.FindStringSubmatch(result.Header.Get("Authorization"))
	require.NotNil(t, match)
	blob, err := base64.StdEncoding.DecodeString(match[2])
	require.NoError(t, err)
	_, err = sshsign.VerifyMessage(blob, "custom", []byte("(created): "+match[1]))
	assert.NoError(t, err)
}

func TestSignatureHandlerDeclines(t *testing.T) {
	noKey := &mockFinder{}
	noKey.On("Find").Return(nil, sshsign.ErrNoKey)

	h := NewSignatureHandler("alice", "", noKey)
	assert.Equal(t, OutcomeNotApplicable, h.SetHeadersAfter401(context.Background(), newRequest(t), unauthorized(`Signature realm="x"`)).Outcome)

	unused := &mockFinder{}
	h = NewSignatureHandler("alice", "", unused)
	assert.Equal(t, OutcomeNotApplicable, h.SetHeadersAfter401(context.Background(), newRequest(t), unauthorized(`Basic realm="x"`)).Outcome)
	unused.AssertNotCalled(t, "Find")

	broken := &mockFinder{}
	broken.On("Find").Return(nil, errors.New("permission denied"))
	h = NewSignatureHandler("alice", "", broken)
	assert.Equal(t, OutcomeFailed, h.SetHeadersAfter401(context.Background(), newRequest(t), unauthorized(`Signature realm="x"`)).Outcome)
}

func TestBasicHandler(t *testing.T) {
	resp := unauthorized(`Basic realm="x"`)

	result := NewBasicHandler("alice", models.NewPassword("s3cret"), false).SetHeadersAfter401(context.Background(), newRequest(t), resp)
	require.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("alice:s3cret")), result.Header.Get("Authorization"))

	result = NewBasicHandler("alice", models.NewPassword(""), false).SetHeadersAfter401(context.Background(), newRequest(t), resp)
	assert.Equal(t, OutcomeNotApplicable, result.Outcome)

	result = NewBasicHandler("alice", models.NewPassword("s3cret"), false).SetHeadersAfter401(context.Background(), newRequest(t), unauthorized(`Signature realm="x"`))
	assert.Equal(t, OutcomeNotApplicable, result.Outcome)
}

func TestBasicHandlerDeferredPassword(t *testing.T) {
	prompted := 0
	deferred := func() *models.Password {
		return models.NewDeferredPassword(func() (string, error) {
			prompted++
			return "typed", nil
		})
	}
	resp := unauthorized(`Basic realm="x"`)

	result := NewBasicHandler("alice", deferred(), true).SetHeadersAfter401(context.Background(), newRequest(t), resp)
	assert.Equal(t, OutcomeNotApplicable, result.Outcome)
	assert.Equal(t, 0, prompted)

	result = NewBasicHandler("alice", deferred(), false).SetHeadersAfter401(context.Background(), newRequest(t), resp)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, 1, prompted)

	failing := models.NewDeferredPassword(func() (string, error) { return "", errors.New("no tty") })
	result = NewBasicHandler("alice", failing, false).SetHeadersAfter401(context.Background(), newRequest(t), resp)
	assert.Equal(t, OutcomeFailed, result.Outcome)
}

func TestDefaultChainPrefersSignatureOverBasic(t *testing.T) {
	finder := &mockFinder{}
	finder.On("Find").Return(newSigner(t), nil)
	chain := NewDefaultChain(Options{
		Host:     &models.HostOptions{APIURL: "https://api.example.com", Username: "alice", SSHKeyPath: "/keys/id_ed25519"},
		Password: models.NewPassword("s3cret"),
		Finder:   finder,
	})

	req := newRequest(t)
	attempt := &Attempt{}
	resp := unauthorized(`Signature realm="x",headers="(created)"`, `Basic realm="x"`)
	require.NoError(t, chain.Reactive(context.Background(), req, resp, attempt))
	assert.Equal(t, "signature", attempt.Reactive)
	assert.Regexp(t, `^Signature keyId="alice"`, req.Header.Get("Authorization"))
}

func TestCookieHandlerHoldsLockUntilResponse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookiejar")
	jar := cookies.NewRegistry().Jar(path)
	req := newRequest(t)
	jar.SetCookies(req.URL, []*http.Cookie{{Name: "session", Value: "old", Path: "/"}})
	require.NoError(t, jar.Lock(context.Background()))
	require.NoError(t, jar.Save())
	require.NoError(t, jar.Unlock())

	h := NewCookieHandler(jar, time.Second)
	result := h.SetPreemptiveHeaders(context.Background(), req)
	require.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, "session=old", result.Header.Get("Cookie"))
	_, err := os.Stat(jar.LockPath())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNotApplicable, h.SetHeadersAfter401(context.Background(), req, unauthorized("Basic")).Outcome)

	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{"Set-Cookie": {"session=new; Path=/"}}}
	require.NoError(t, h.ProcessResponse(req, resp))
	_, err = os.Stat(jar.LockPath())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, h.Finish())

	fresh := cookies.NewRegistry().Jar(path)
	require.NoError(t, fresh.Reload())
	require.Len(t, fresh.Entries(), 1)
	assert.Equal(t, "new", fresh.Entries()[0].Value)
}

func TestCookieHandlerLeavesJarAloneWithoutLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookiejar")
	req := newRequest(t)
	holder := cookies.NewRegistry().Jar(path)
	require.NoError(t, holder.Lock(context.Background()))
	holder.SetCookies(req.URL, []*http.Cookie{{Name: "session", Value: "other", Path: "/"}})
	require.NoError(t, holder.Save())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	jar := cookies.NewRegistry().Jar(path)
	h := NewCookieHandler(jar, 50*time.Millisecond)
	result := h.SetPreemptiveHeaders(context.Background(), req)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.ErrorIs(t, result.Reason, context.DeadlineExceeded)
	assert.Empty(t, req.Header.Get("Cookie"))

	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{"Set-Cookie": {"fresh=new; Path=/"}}}
	require.NoError(t, h.ProcessResponse(req, resp))
	assert.NoError(t, h.Finish())
	assert.Empty(t, jar.Entries())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	require.NoError(t, holder.Unlock())
}

func TestCookieHandlerWithoutJar(t *testing.T) {
	h := NewCookieHandler(nil, 0)
	assert.Equal(t, OutcomeNotApplicable, h.SetPreemptiveHeaders(context.Background(), newRequest(t)).Outcome)
	assert.NoError(t, h.ProcessResponse(newRequest(t), &http.Response{Header: http.Header{}}))
	assert.NoError(t, h.Finish())
}
