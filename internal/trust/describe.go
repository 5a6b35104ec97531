package trust

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	apperror "buildClient/internal/error"
	"buildClient/internal/prompt"
)

// Describe collects what the user needs to decide about cert.
func Describe(host, port string, cert *x509.Certificate, reason error) *prompt.CertificateInfo {
	info := &prompt.CertificateInfo{
		Host:              host,
		Port:              port,
		Subject:           cert.Subject.String(),
		Issuer:            cert.Issuer.String(),
		DNSNames:          append([]string(nil), cert.DNSNames...),
		NotBefore:         cert.NotBefore,
		NotAfter:          cert.NotAfter,
		SHA1Fingerprint:   sha1Fingerprint(cert.Raw),
		SHA256Fingerprint: apperror.Fingerprint(cert.Raw),
	}
	if reason != nil {
		info.Reason = reason.Error()
	}
	for _, ip := range cert.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}
	info.Text = certificateText(cert, info)
	return info
}

func sha1Fingerprint(der []byte) string {
	sum := sha1.Sum(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

func publicKeyDescription(cert *x509.Certificate) string {
	switch key := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA (%d bit)", key.N.BitLen())
	case *ecdsa.PublicKey:
		return fmt.Sprintf("ECDSA (%s)", key.Curve.Params().Name)
	case ed25519.PublicKey:
		return "Ed25519"
	default:
		return cert.PublicKeyAlgorithm.String()
	}
}

func certificateText(cert *x509.Certificate, info *prompt.CertificateInfo) string {
	var b strings.Builder
	b.WriteString("Certificate:\n")
	fmt.Fprintf(&b, "    Version: %d\n", cert.Version)
	fmt.Fprintf(&b, "    Serial Number: %s\n", cert.SerialNumber.Text(16))
	fmt.Fprintf(&b, "    Signature Algorithm: %s\n", cert.SignatureAlgorithm)
	fmt.Fprintf(&b, "    Issuer: %s\n", info.Issuer)
	b.WriteString("    Validity\n")
	fmt.Fprintf(&b, "        Not Before: %s\n", cert.NotBefore.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "        Not After : %s\n", cert.NotAfter.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "    Subject: %s\n", info.Subject)
	fmt.Fprintf(&b, "    Public Key: %s\n", publicKeyDescription(cert))

	var names []string
	for _, name := range info.DNSNames {
		names = append(names, "DNS:"+name)
	}
	for _, ip := range info.IPAddresses {
		names = append(names, "IP Address:"+ip)
	}
	if len(names) > 0 {
		b.WriteString("    Subject Alternative Name:\n")
		fmt.Fprintf(&b, "        %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "    SHA1 Fingerprint: %s\n", info.SHA1Fingerprint)
	fmt.Fprintf(&b, "    SHA256 Fingerprint: %s\n", info.SHA256Fingerprint)
	b.Write(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
	return b.String()
}
