package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SecretFile is the name of the cookie signing key under the env path.
const SecretFile = "COOKIE_SECRET"

// LoadSecret returns the signing key stored at path, creating a new random
// key when the file is missing, empty, or forceNew is set.
func LoadSecret(path string, forceNew bool) ([]byte, error) {
	if !forceNew {
		existing, err := os.ReadFile(path)
		if err == nil {
			if secret := bytes.TrimSpace(existing); len(secret) > 0 {
				return secret, nil
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read cookie secret: %w", err)
		}
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate cookie secret: %w", err)
	}
	secret := []byte(hex.EncodeToString(raw))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cookie secret dir: %w", err)
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("write cookie secret: %w", err)
	}
	return secret, nil
}
