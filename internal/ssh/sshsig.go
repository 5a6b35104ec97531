package ssh

import (
	"bytes"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

const (
	sigMagic      = "SSHSIG"
	sigVersion    = 1
	sigHashSHA512 = "sha512"
)

type signedData struct {
	Namespace string
	Reserved  string
	Hash      string
	Digest    []byte
}

type signatureBlob struct {
	Version   uint32
	PublicKey []byte
	Namespace string
	Reserved  string
	Hash      string
	Signature []byte
}

func messageToSign(namespace string, message []byte) []byte {
	digest := sha512.Sum512(message)
	data := ssh.Marshal(signedData{Namespace: namespace, Hash: sigHashSHA512, Digest: digest[:]})
	return append([]byte(sigMagic), data...)
}

// SignMessage produces an SSHSIG signature blob of message in namespace,
// the binary form of what `ssh-keygen -Y sign` writes between its armor
// lines.
func SignMessage(signer ssh.Signer, namespace string, message []byte) ([]byte, error) {
	if namespace == "" {
		return nil, errors.New("signature namespace must not be empty")
	}
	data := messageToSign(namespace, message)

	var (
		sig *ssh.Signature
		err error
	)
	if as, ok := signer.(ssh.AlgorithmSigner); ok && signer.PublicKey().Type() == ssh.KeyAlgoRSA {
		sig, err = as.SignWithAlgorithm(rand.Reader, data, ssh.KeyAlgoRSASHA512)
	} else {
		sig, err = signer.Sign(rand.Reader, data)
	}
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	blob := ssh.Marshal(signatureBlob{
		Version:   sigVersion,
		PublicKey: signer.PublicKey().Marshal(),
		Namespace: namespace,
		Hash:      sigHashSHA512,
		Signature: ssh.Marshal(sig),
	})
	return append([]byte(sigMagic), blob...), nil
}

// VerifyMessage checks an SSHSIG blob and returns the key that made it.
func VerifyMessage(blob []byte, namespace string, message []byte) (ssh.PublicKey, error) {
	if !bytes.HasPrefix(blob, []byte(sigMagic)) {
		return nil, errors.New("not an SSHSIG blob")
	}
	var parsed signatureBlob
	if err := ssh.Unmarshal(blob[len(sigMagic):], &parsed); err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	if parsed.Version != sigVersion {
		return nil, fmt.Errorf("unsupported signature version %d", parsed.Version)
	}
	if parsed.Namespace != namespace {
		return nil, fmt.Errorf("signature namespace %q does not match %q", parsed.Namespace, namespace)
	}
	if parsed.Hash != sigHashSHA512 {
		return nil, fmt.Errorf("unsupported hash algorithm %q", parsed.Hash)
	}

	pub, err := ssh.ParsePublicKey(parsed.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	var sig ssh.Signature
	if err := ssh.Unmarshal(parsed.Signature, &sig); err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	if err := pub.Verify(messageToSign(namespace, message), &sig); err != nil {
		return nil, err
	}
	return pub, nil
}
