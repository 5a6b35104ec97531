// Package trust decides whether a server certificate may be used. Records
// pinned on disk always win; hosts without a record fall back to chain
// verification and, when that fails, to asking the user.
package trust

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	apperror "buildClient/internal/error"
	"buildClient/internal/models"
	"buildClient/internal/prompt"
	"buildClient/internal/utils"
)

const (
	certFileSuffix = ".pem"
	certFilePerms  = 0600
)

var errRejected = errors.New("certificate rejected by user")

// Store keeps the trust decisions of one process. Permanent decisions are
// written to one PEM file per host and port below dir.
type Store struct {
	dir      string
	prompter prompt.Provider

	mu      sync.Mutex
	records map[string]*models.TrustedCertificate
	loaded  map[string]bool
}

func NewStore(dir string, prompter prompt.Provider) *Store {
	if prompter == nil {
		prompter = prompt.NonInteractive{}
	}
	return &Store{
		dir:      dir,
		prompter: prompter,
		records:  make(map[string]*models.TrustedCertificate),
		loaded:   make(map[string]bool),
	}
}

// Path returns the file that pins the certificate of host:port.
func (s *Store) Path(host, port string) string {
	return filepath.Join(s.dir, utils.SafeFileName(host)+"_"+port+certFileSuffix)
}

// Load returns the trust record for host:port, reading the pinned file on
// first use. A nil record means no decision has been made yet.
func (s *Store) Load(host, port string) (*models.TrustedCertificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(host, port)
}

func (s *Store) loadLocked(host, port string) (*models.TrustedCertificate, error) {
	key := net.JoinHostPort(host, port)
	if s.loaded[key] {
		return s.records[key], nil
	}

	path := s.Path(host, port)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.loaded[key] = true
			return nil, nil
		}
		return nil, apperror.New(apperror.ConfigError, "failed to read trusted certificate "+path, err)
	}

	cert, err := parsePEM(data)
	if err != nil {
		return nil, apperror.New(apperror.ConfigError, "corrupt trusted certificate "+path, err)
	}

	record := &models.TrustedCertificate{Host: host, Port: port, DER: cert.Raw, Persisted: true}
	s.records[key] = record
	s.loaded[key] = true
	log.Debugf("loaded trusted certificate for %s from %s", key, path)
	return record, nil
}

// Verify checks an observed certificate chain against the trust record of
// host:port. Without a record the chain is verified against roots unless
// verifyChain is false.
func (s *Store) Verify(host, port string, chain []*x509.Certificate, roots *x509.CertPool, verifyChain bool) error {
	if len(chain) == 0 {
		return &apperror.CertificateUntrustedError{Host: host, Port: port, Reason: errors.New("server sent no certificate")}
	}
	leaf := chain[0]

	record, err := s.Load(host, port)
	if err != nil {
		return err
	}
	if record != nil {
		if record.Matches(leaf) {
			return nil
		}
		if record.Persisted {
			return &apperror.CertificateIdentityChangedError{
				Host:     host,
				Port:     port,
				Path:     s.Path(host, port),
				Pinned:   record.DER,
				Observed: leaf,
			}
		}
		return &apperror.CertificateUntrustedError{
			Host:        host,
			Port:        port,
			Certificate: leaf,
			Reason:      errors.New("certificate changed since it was trusted for this session"),
		}
	}

	if !verifyChain {
		return nil
	}

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}
	_, err = leaf.Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         roots,
		Intermediates: intermediates,
	})
	if err != nil {
		return &apperror.CertificateUntrustedError{Host: host, Port: port, Certificate: leaf, Reason: err}
	}
	return nil
}

// PromptTrust asks the user whether cert may be trusted for host:port.
// It returns nil once the certificate is trusted, for this process or
// permanently. A pinned record is never replaced here.
func (s *Store) PromptTrust(host, port string, cert *x509.Certificate, reason error) error {
	record, err := s.Load(host, port)
	if err != nil {
		return err
	}
	if record != nil && record.Persisted {
		if record.Matches(cert) {
			return nil
		}
		return &apperror.CertificateIdentityChangedError{Host: host, Port: port, Path: s.Path(host, port), Pinned: record.DER, Observed: cert}
	}
	if reason == nil {
		reason = errors.New("certificate is not trusted")
	}

	untrusted := func(cause error) error {
		return &apperror.CertificateUntrustedError{
			Host:        host,
			Port:        port,
			Certificate: cert,
			Reason:      fmt.Errorf("%w (%v)", reason, cause),
		}
	}

	info := Describe(host, port, cert, reason)
	for {
		choice, err := s.prompter.PromptTrust(info)
		if err != nil {
			return untrusted(err)
		}
		log.Debugf("trust decision for %s:%s: %s", host, port, choice)

		switch choice {
		case prompt.TrustShowCertificate:
			if err := s.prompter.ShowCertificate(info); err != nil {
				return untrusted(err)
			}
		case prompt.TrustTemporarily:
			s.remember(&models.TrustedCertificate{Host: host, Port: port, DER: cert.Raw})
			return nil
		case prompt.TrustPermanently:
			if err := s.persist(host, port, cert); err != nil {
				return err
			}
			return nil
		default:
			return untrusted(errRejected)
		}
	}
}

func (s *Store) remember(record *models.TrustedCertificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Key()] = record
	s.loaded[record.Key()] = true
}

func (s *Store) persist(host, port string, cert *x509.Certificate) error {
	path := s.Path(host, port)
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		s.remember(&models.TrustedCertificate{Host: host, Port: port, DER: cert.Raw, Persisted: true})
		return nil
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return apperror.New(apperror.ConfigError, "failed to create trusted certificate directory", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".trust-*")
	if err != nil {
		return apperror.New(apperror.ConfigError, "failed to write trusted certificate", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperror.New(apperror.ConfigError, "failed to write trusted certificate", err)
	}
	if err := tmp.Chmod(certFilePerms); err != nil {
		tmp.Close()
		return apperror.New(apperror.ConfigError, "failed to write trusted certificate", err)
	}
	if err := tmp.Close(); err != nil {
		return apperror.New(apperror.ConfigError, "failed to write trusted certificate", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperror.New(apperror.ConfigError, "failed to write trusted certificate", err)
	}

	s.remember(&models.TrustedCertificate{Host: host, Port: port, DER: cert.Raw, Persisted: true})
	log.Infof("certificate for %s stored in %s", net.JoinHostPort(host, port), path)
	return nil
}

// List returns the permanently trusted certificates.
func (s *Store) List() ([]*models.TrustedCertificate, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apperror.New(apperror.ConfigError, "failed to read trusted certificate directory", err)
	}

	var records []*models.TrustedCertificate
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, certFileSuffix) {
			continue
		}
		base := strings.TrimSuffix(name, certFileSuffix)
		sep := strings.LastIndex(base, "_")
		if sep <= 0 {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, apperror.New(apperror.ConfigError, "failed to read trusted certificate "+name, err)
		}
		cert, err := parsePEM(data)
		if err != nil {
			log.Warnf("skipping corrupt trusted certificate %s: %v", name, err)
			continue
		}
		records = append(records, &models.TrustedCertificate{Host: base[:sep], Port: base[sep+1:], DER: cert.Raw, Persisted: true})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })
	return records, nil
}

// Forget removes the trust decision for host:port, on disk and in memory.
func (s *Store) Forget(host, port string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := net.JoinHostPort(host, port)
	delete(s.records, key)
	delete(s.loaded, key)

	if err := os.Remove(s.Path(host, port)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperror.New(apperror.ConfigError, "failed to remove trusted certificate", err)
	}
	return nil
}

func parsePEM(data []byte) (*x509.Certificate, error) {
	block, rest := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no PEM certificate block found")
	}
	if len(bytes.TrimSpace(rest)) != 0 {
		return nil, errors.New("unexpected data after certificate")
	}
	return x509.ParseCertificate(block.Bytes)
}
