package trust

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"

	apperror "buildClient/internal/error"
)

// VerifyConnection returns a tls.Config hook checking the handshake of
// host:port against the store. The tls.Config using it must set
// InsecureSkipVerify so that the hook alone decides.
func (s *Store) VerifyConnection(host, port string, roots *x509.CertPool, verifyChain bool) func(tls.ConnectionState) error {
	return func(state tls.ConnectionState) error {
		return s.Verify(host, port, state.PeerCertificates, roots, verifyChain)
	}
}

// LoadRoots returns the pool used for chain verification. An empty caPath
// selects the system roots; a directory loads every PEM file inside it.
func LoadRoots(caPath string) (*x509.CertPool, error) {
	if caPath == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, apperror.New(apperror.ConfigError, "failed to load system certificate pool", err)
		}
		return pool, nil
	}

	info, err := os.Stat(caPath)
	if err != nil {
		return nil, apperror.New(apperror.ConfigError, "failed to read CA path "+caPath, err)
	}

	pool := x509.NewCertPool()
	files := []string{caPath}
	if info.IsDir() {
		entries, err := os.ReadDir(caPath)
		if err != nil {
			return nil, apperror.New(apperror.ConfigError, "failed to read CA directory "+caPath, err)
		}
		files = files[:0]
		for _, entry := range entries {
			if !entry.IsDir() {
				files = append(files, filepath.Join(caPath, entry.Name()))
			}
		}
	}

	added := false
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, apperror.New(apperror.ConfigError, "failed to read CA file "+file, err)
		}
		if pool.AppendCertsFromPEM(data) {
			added = true
		}
	}
	if !added {
		return nil, apperror.New(apperror.ConfigError, "no certificates found in CA path "+caPath, errors.New("empty CA bundle"))
	}
	return pool, nil
}
