package models

import "fmt"

type KeySource int

const (
	KeySourceAgent KeySource = iota
	KeySourceFile
)

func (s KeySource) String() string {
	if s == KeySourceAgent {
		return "agent"
	}
	return "file"
}

// SigningKey describes the SSH key selected for signature authentication.
type SigningKey struct {
	Source      KeySource
	Path        string // Private key path for file keys, public key path for agent lookups.
	Comment     string
	Fingerprint string
	Type        string
}

func (k *SigningKey) String() string {
	if k.Path != "" {
		return fmt.Sprintf("%s key %s (%s, %s)", k.Source, k.Path, k.Type, k.Fingerprint)
	}
	return fmt.Sprintf("%s key %s (%s, %s)", k.Source, k.Comment, k.Type, k.Fingerprint)
}
