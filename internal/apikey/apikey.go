// Package apikey implements the 48-byte consumer API credential described
// in spec.md §3: a 16-byte relayer UUID followed by 32 random bytes,
// URL-safe base64 encoded on the wire. Only SHA3-256 of the 32-byte secret
// is ever persisted. Ported from the original implementation's
// src/api_key.rs.
package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

const (
	secretLen = 32
	totalLen  = 16 + secretLen
)

// ApiKey is a parsed or freshly generated credential.
type ApiKey struct {
	RelayerID string
	Secret    [secretLen]byte
}

// New generates a fresh credential bound to relayerID.
func New(relayerID string) (ApiKey, error) {
	var secret [secretLen]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return ApiKey{}, fmt.Errorf("generate api key: %w", err)
	}
	return ApiKey{RelayerID: relayerID, Secret: secret}, nil
}

// Hash returns the SHA3-256 digest of the secret half, the only part ever
// stored.
func (k ApiKey) Hash() [32]byte {
	return sha3.Sum256(k.Secret[:])
}

// String encodes the credential as relayer-id||secret, URL-safe base64,
// the form handed back to the caller exactly once.
func (k ApiKey) String() string {
	id, err := uuid.Parse(k.RelayerID)
	if err != nil {
		// RelayerID is always a server-assigned UUID; a malformed one is a
		// programming error, not a runtime condition to recover from.
		panic(fmt.Sprintf("apikey: relayer id %q is not a uuid", k.RelayerID))
	}

	var buf [totalLen]byte
	idBytes, _ := id.MarshalBinary()
	copy(buf[:16], idBytes)
	copy(buf[16:], k.Secret[:])

	return base64.URLEncoding.EncodeToString(buf[:])
}

// Parse decodes the wire format produced by String. It distinguishes a
// malformed-encoding failure from a wrong-length failure so the HTTP layer
// can return KeyEncoding vs KeyLength per spec.md §7.
func Parse(s string) (ApiKey, error) {
	buf, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return ApiKey{}, errEncoding
	}
	if len(buf) != totalLen {
		return ApiKey{}, errLength
	}

	id, err := uuid.FromBytes(buf[:16])
	if err != nil {
		return ApiKey{}, errEncoding
	}

	var secret [secretLen]byte
	copy(secret[:], buf[16:])

	return ApiKey{RelayerID: id.String(), Secret: secret}, nil
}

var (
	errEncoding = fmt.Errorf("api key is not valid url-safe base64")
	errLength   = fmt.Errorf("api key does not decode to 48 bytes")
)

// IsEncodingError reports whether err is the "bad base64" parse failure
// (maps to apperrors.KeyEncoding).
func IsEncodingError(err error) bool { return err == errEncoding }

// IsLengthError reports whether err is the "wrong decoded length" parse
// failure (maps to apperrors.KeyLength).
func IsLengthError(err error) bool { return err == errLength }
