package security

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const derivedSecretLen = 32

// ErrWeakSecret is returned when the master token secret is too short.
var ErrWeakSecret = errors.New("token secret must be at least 32 bytes")

// DeriveTokenSecrets expands a single master secret into the two disjoint
// signing secrets used by TokenProvider, via HKDF-SHA256 with distinct info
// labels. A leaked access token can therefore never be replayed as a refresh
// token, and operators only manage one secret.
func DeriveTokenSecrets(master []byte) (accessSecret, refreshSecret []byte, err error) {
	if len(master) < 32 {
		return nil, nil, ErrWeakSecret
	}
	accessSecret, err = expand(master, "marketplace-auth/access-token/v1")
	if err != nil {
		return nil, nil, err
	}
	refreshSecret, err = expand(master, "marketplace-auth/refresh-token/v1")
	if err != nil {
		return nil, nil, err
	}
	return accessSecret, refreshSecret, nil
}

func expand(master []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, derivedSecretLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
