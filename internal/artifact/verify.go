package artifact

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// Verifier checks downloaded archives against upstream checksums and
// detached OpenPGP signatures.
type Verifier struct{}

// NewVerifier creates a new verifier
func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyChecksum compares the SHA256 of data with the entry for filename in
// a checksum file. Both "<hash>  <file>" lines and a bare "<hash>" are
// accepted. A mismatch is ErrCorruptArchive.
func (v *Verifier) VerifyChecksum(data, checksumFile []byte, filename string) error {
	expected, err := findChecksum(checksumFile, filename)
	if err != nil {
		return corruptErr("find checksum: %v", err)
	}

	sum := sha256.Sum256(data)
	actual := hex.EncodeToString(sum[:])

	// Compare checksums (case-insensitive)
	if !strings.EqualFold(actual, expected) {
		return corruptErr("checksum mismatch for %s:\nactual:   %s\nexpected: %s", filename, actual, expected)
	}
	return nil
}

// VerifySignature checks a detached signature (armored or binary) over data
// using the keyring at keyringPath.
func (v *Verifier) VerifySignature(data, signature []byte, keyringPath string) error {
	keyring, err := loadKeyring(keyringPath)
	if err != nil {
		return fmt.Errorf("load keyring: %w", err)
	}

	_, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	if err != nil {
		// Try non-armored signature
		_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	}
	if err != nil {
		return corruptErr("verify signature: %v", err)
	}
	return nil
}

// loadKeyring loads an OpenPGP keyring, armored or binary.
func loadKeyring(keyringPath string) (openpgp.EntityList, error) {
	raw, err := os.ReadFile(keyringPath)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(raw))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return keyring, nil
}

// findChecksum finds the checksum for a specific filename in a checksum file
// Format: "abc123def456  filename.tar.gz" or "abc123def456"
func findChecksum(checksumFile []byte, filename string) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(checksumFile))
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		switch len(parts) {
		case 0:
			continue
		case 1:
			// Per-file checksum holding only the digest
			if isSHA256Hex(parts[0]) {
				return parts[0], nil
			}
			continue
		}

		// sha256sum binary mode prefixes the name with '*'
		checksumFilename := strings.TrimPrefix(parts[1], "*")
		if checksumFilename == filename || path.Base(checksumFilename) == filename {
			return parts[0], nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum file: %w", err)
	}

	return "", fmt.Errorf("checksum not found for %s", filename)
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
