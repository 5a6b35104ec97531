package transport

import (
	"crypto/tls"

	"buildClient/internal/models"
	"buildClient/internal/trust"
)

// newTLSConfig leaves every certificate decision to the trust store: chain
// verification, pinned certificates and trust given at the prompt.
func newTLSConfig(opts *models.HostOptions, store *trust.Store) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         opts.Host(),
		InsecureSkipVerify: true,
	}

	if opts.CertVerify {
		roots, err := trust.LoadRoots(opts.CAPath)
		if err != nil {
			return nil, err
		}
		cfg.VerifyConnection = store.VerifyConnection(opts.Host(), opts.Port(), roots, true)
	} else {
		cfg.VerifyConnection = store.VerifyConnection(opts.Host(), opts.Port(), nil, false)
	}
	return cfg, nil
}
