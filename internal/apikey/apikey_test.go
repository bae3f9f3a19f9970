package apikey

import (
	"testing"

	"github.com/google/uuid"
)

func TestRoundTrip(t *testing.T) {
	relayerID := uuid.New().String()

	key, err := New(relayerID)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	encoded := key.String()

	parsed, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.RelayerID != relayerID {
		t.Fatalf("relayer id mismatch: got %s want %s", parsed.RelayerID, relayerID)
	}
	if parsed.Secret != key.Secret {
		t.Fatalf("secret mismatch")
	}
	if parsed.Hash() != key.Hash() {
		t.Fatalf("hash mismatch")
	}
}

func TestParseBadEncoding(t *testing.T) {
	_, err := Parse("not base64!!!")
	if !IsEncodingError(err) {
		t.Fatalf("expected encoding error, got %v", err)
	}
}

func TestParseBadLength(t *testing.T) {
	_, err := Parse("YWJj") // "abc", valid base64, wrong length
	if !IsLengthError(err) {
		t.Fatalf("expected length error, got %v", err)
	}
}

func TestHashStability(t *testing.T) {
	key, err := New(uuid.New().String())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h1 := key.Hash()
	h2 := key.Hash()
	if h1 != h2 {
		t.Fatalf("hash is not deterministic")
	}
}
