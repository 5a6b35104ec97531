package models

import (
	"bytes"
	"crypto/x509"
	"net"
)

// TrustedCertificate pins the leaf certificate accepted for one host and port.
type TrustedCertificate struct {
	Host      string
	Port      string
	DER       []byte
	Persisted bool
}

// Key returns the host:port identifier of the record.
func (c *TrustedCertificate) Key() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Matches reports whether cert is byte-for-byte the pinned certificate.
func (c *TrustedCertificate) Matches(cert *x509.Certificate) bool {
	return cert != nil && bytes.Equal(c.DER, cert.Raw)
}

// Certificate parses the pinned DER bytes.
func (c *TrustedCertificate) Certificate() (*x509.Certificate, error) {
	return x509.ParseCertificate(c.DER)
}
