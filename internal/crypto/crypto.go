// internal/crypto/crypto.go
//
// This package provides the reversible encoding used by the obfuscated
// credential store. Passwords are zlib-compressed and base64-encoded before
// they are written to the configuration file.
//
// This is NOT encryption. Anyone with the configuration file can recover the
// password; the encoding only keeps it from being readable at a glance.

package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	// maxRevealedSize bounds the decompressed size of an obfuscated value.
	maxRevealedSize = 64 * 1024
)

// ErrEmpty is returned when an empty value is revealed.
var ErrEmpty = errors.New("obfuscated value is empty")

// Obfuscate compresses plaintext and returns it base64-encoded.
func Obfuscate(plaintext string) (string, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", fmt.Errorf("failed to create compressor: %v", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("failed to compress: %v", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to compress: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Reveal reverses Obfuscate.
func Reveal(encoded string) (string, error) {
	if encoded == "" {
		return "", ErrEmpty
	}
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %v", err)
	}
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", fmt.Errorf("failed to create decompressor: %v", err)
	}
	defer r.Close()

	plaintext, err := io.ReadAll(io.LimitReader(r, maxRevealedSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to decompress: %v", err)
	}
	if len(plaintext) > maxRevealedSize {
		return "", fmt.Errorf("obfuscated value exceeds %d bytes", maxRevealedSize)
	}
	return string(plaintext), nil
}
