// internal/error/error.go

package error

import (
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"net/http"
	"strings"
)

type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

type ErrorType int

const (
	ConfigError ErrorType = iota
	CredentialError
	PromptError
	CertificateUntrusted
	CertificateIdentityChanged
	AuthenticationFailed
	HTTPStatus
	TransportFailure
)

func (t ErrorType) String() string {
	switch t {
	case ConfigError:
		return "config"
	case CredentialError:
		return "credential"
	case PromptError:
		return "prompt"
	case CertificateUntrusted:
		return "certificate untrusted"
	case CertificateIdentityChanged:
		return "certificate identity changed"
	case AuthenticationFailed:
		return "authentication failed"
	case HTTPStatus:
		return "http status"
	case TransportFailure:
		return "transport"
	default:
		return "unknown"
	}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Typed is implemented by every error in this package.
type Typed interface {
	error
	ErrorType() ErrorType
}

func (e *AppError) ErrorType() ErrorType { return e.Type }

// CertificateUntrustedError is returned when the server certificate could not
// be verified and no trust decision exists for the host yet.
type CertificateUntrustedError struct {
	Host        string
	Port        string
	Certificate *x509.Certificate
	Reason      error
}

func (e *CertificateUntrustedError) Error() string {
	return fmt.Sprintf("certificate for %s:%s is not trusted: %v", e.Host, e.Port, e.Reason)
}

func (e *CertificateUntrustedError) Unwrap() error { return e.Reason }

func (e *CertificateUntrustedError) ErrorType() ErrorType { return CertificateUntrusted }

// CertificateIdentityChangedError is returned when a host presents a
// certificate different from the one pinned on disk. It is never resolved
// automatically.
type CertificateIdentityChangedError struct {
	Host     string
	Port     string
	Path     string
	Pinned   []byte
	Observed *x509.Certificate
}

func (e *CertificateIdentityChangedError) Error() string {
	var b strings.Builder
	b.WriteString("WARNING: REMOTE HOST IDENTIFICATION HAS CHANGED!\n")
	b.WriteString("IT IS POSSIBLE THAT SOMEONE IS DOING SOMETHING NASTY!\n")
	fmt.Fprintf(&b, "The certificate presented by %s:%s differs from the trusted certificate stored in %s.\n", e.Host, e.Port, e.Path)
	fmt.Fprintf(&b, "Trusted SHA-256 fingerprint:  %s\n", Fingerprint(e.Pinned))
	if e.Observed != nil {
		fmt.Fprintf(&b, "Presented SHA-256 fingerprint: %s\n", Fingerprint(e.Observed.Raw))
	}
	b.WriteString("If the change is expected, remove the stored certificate file and retry.")
	return b.String()
}

func (e *CertificateIdentityChangedError) ErrorType() ErrorType { return CertificateIdentityChanged }

// AuthenticationFailedError is returned when the server still answers 401
// after the single reactive authentication retry, or no handler could answer
// the challenge.
type AuthenticationFailedError struct {
	URL       string
	Challenge string
	Handler   string
	Err       error
}

func (e *AuthenticationFailedError) Error() string {
	msg := fmt.Sprintf("authentication failed for %s", e.URL)
	if e.Handler != "" {
		msg += fmt.Sprintf(" (credentials from %s handler were rejected)", e.Handler)
	}
	if e.Challenge != "" {
		msg += fmt.Sprintf(", server challenge: %s", e.Challenge)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *AuthenticationFailedError) Unwrap() error { return e.Err }

func (e *AuthenticationFailedError) ErrorType() ErrorType { return AuthenticationFailed }

// HTTPStatusError carries a non-2xx final response for the caller to interpret.
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPStatusError) ErrorType() ErrorType { return HTTPStatus }

// TransportError wraps network level failures that survived the retry policy.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) ErrorType() ErrorType { return TransportFailure }

// Fingerprint formats the SHA-256 digest of der as colon separated hex.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
