// Package ssh finds an SSH key for HTTP signature authentication and signs
// with it, through a running agent or straight from a private key file.
package ssh

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"buildClient/internal/models"
	"buildClient/internal/utils"
)

// DefaultKeyNames are tried under ~/.ssh when no key is configured.
var DefaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// ErrNoKey means neither the agent nor the key files offer a usable key.
var ErrNoKey = errors.New("no usable ssh key found")

// Signer is a located key ready to sign.
type Signer struct {
	Key    models.SigningKey
	signer ssh.Signer
	conn   net.Conn
}

// NewSigner wraps an already loaded key.
func NewSigner(signer ssh.Signer, source models.KeySource, path string) *Signer {
	return &Signer{Key: describe(source, path, signer.PublicKey()), signer: signer}
}

// Sign returns the SSHSIG blob of message in namespace.
func (s *Signer) Sign(namespace string, message []byte) ([]byte, error) {
	return SignMessage(s.signer, namespace, message)
}

func (s *Signer) PublicKey() ssh.PublicKey {
	return s.signer.PublicKey()
}

// Close releases the agent connection, if any.
func (s *Signer) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Finder locates signing keys.
type Finder struct {
	// KeyPath is the configured private key; empty means DefaultKeyNames.
	KeyPath string
	// SSHDir holds the default keys, normally ~/.ssh.
	SSHDir string
	// AgentSocket is the agent address, normally $SSH_AUTH_SOCK.
	AgentSocket string
}

func NewFinder(keyPath string) *Finder {
	f := &Finder{
		KeyPath:     utils.ExpandHome(keyPath),
		AgentSocket: os.Getenv("SSH_AUTH_SOCK"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		f.SSHDir = filepath.Join(home, ".ssh")
	}
	return f
}

func (f *Finder) candidates() []string {
	if f.KeyPath != "" {
		return []string{f.KeyPath}
	}
	if f.SSHDir == "" {
		return nil
	}
	paths := make([]string, 0, len(DefaultKeyNames))
	for _, name := range DefaultKeyNames {
		paths = append(paths, filepath.Join(f.SSHDir, name))
	}
	return paths
}

// Find returns the first usable signer: an agent key matching one of the
// candidate key files, then an unencrypted candidate key file. With no key
// configured, any agent key is acceptable.
func (f *Finder) Find() (*Signer, error) {
	candidates := f.candidates()

	if s, err := f.fromAgent(candidates); err == nil {
		return s, nil
	} else if !errors.Is(err, ErrNoKey) {
		log.Debugf("ssh agent unavailable: %v", err)
	}

	for _, path := range candidates {
		s, err := loadKeyFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Debugf("skipping ssh key %s: %v", path, err)
			}
			continue
		}
		return s, nil
	}
	return nil, ErrNoKey
}

func (f *Finder) fromAgent(candidates []string) (*Signer, error) {
	if f.AgentSocket == "" {
		return nil, ErrNoKey
	}
	conn, err := net.Dial("unix", f.AgentSocket)
	if err != nil {
		return nil, fmt.Errorf("connect to agent: %w", err)
	}

	client := agent.NewClient(conn)
	keys, err := client.List()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("list agent keys: %w", err)
	}
	signers, err := client.Signers()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("agent signers: %w", err)
	}

	var wanted [][]byte
	for _, path := range candidates {
		if pub, err := readPublicKey(path); err == nil {
			wanted = append(wanted, pub.Marshal())
		}
	}

	for i, signer := range signers {
		blob := signer.PublicKey().Marshal()
		match := len(wanted) == 0 && f.KeyPath == ""
		for _, w := range wanted {
			if bytes.Equal(w, blob) {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		key := describe(models.KeySourceAgent, "", signer.PublicKey())
		if i < len(keys) {
			key.Comment = keys[i].Comment
		}
		log.Debugf("using %s", &key)
		return &Signer{Key: key, signer: signer, conn: conn}, nil
	}

	conn.Close()
	return nil, ErrNoKey
}

// readPublicKey reads path.pub, or derives the public key from an
// unencrypted private key.
func readPublicKey(path string) (ssh.PublicKey, error) {
	if data, err := os.ReadFile(path + ".pub"); err == nil {
		pub, _, _, _, err := ssh.ParseAuthorizedKey(data)
		return pub, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, err
	}
	return signer.PublicKey(), nil
}

func loadKeyFile(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("key is encrypted and not loaded in an agent")
		}
		return nil, err
	}
	key := describe(models.KeySourceFile, path, signer.PublicKey())
	log.Debugf("using %s", &key)
	return &Signer{Key: key, signer: signer}, nil
}

func describe(source models.KeySource, path string, pub ssh.PublicKey) models.SigningKey {
	return models.SigningKey{
		Source:      source,
		Path:        path,
		Fingerprint: ssh.FingerprintSHA256(pub),
		Type:        pub.Type(),
	}
}
