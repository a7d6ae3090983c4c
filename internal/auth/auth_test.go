package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/vault"
)

func newSigner(t *testing.T) (keys.Address, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := keys.FromPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return addr, priv
}

func TestVerifySignIn_Valid(t *testing.T) {
	addr, priv := newSigner(t)
	sig := hex.EncodeToString(ed25519.Sign(priv, SignInMessage("abc123")))

	if err := VerifySignIn(addr, "abc123", sig); err != nil {
		t.Fatalf("expected valid signature, got: %v", err)
	}
}

func TestVerifySignIn_Rejects(t *testing.T) {
	addr, priv := newSigner(t)
	other, otherPriv := newSigner(t)
	good := hex.EncodeToString(ed25519.Sign(priv, SignInMessage("abc123")))
	bare := hex.EncodeToString(ed25519.Sign(priv, []byte("abc123")))

	tests := []struct {
		name      string
		addr      keys.Address
		challenge string
		sig       string
	}{
		{"wrong challenge", addr, "abc124", good},
		{"wrong key", other, "abc123", good},
		{"missing prefix", addr, "abc123", bare},
		{"other signer", addr, "abc123", hex.EncodeToString(ed25519.Sign(otherPriv, SignInMessage("abc123")))},
		{"not hex", addr, "abc123", "zz"},
		{"short", addr, "abc123", good[:10]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignIn(tt.addr, tt.challenge, tt.sig)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("got %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestVerifySignIn_OffCurveAddress(t *testing.T) {
	owner, _ := newSigner(t)
	addr, _, err := vault.FindAddress(keys.Address{1}, vault.BuyerSeeds(owner))
	if err != nil {
		t.Fatal(err)
	}

	err = VerifySignIn(addr, "x", strings.Repeat("00", ed25519.SignatureSize))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestJWT_RoundTrip(t *testing.T) {
	addr, _ := newSigner(t)

	token, err := GenerateJWT("secret", addr, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Address != addr {
		t.Errorf("address = %s, want %s", claims.Address, addr)
	}
	if claims.Subject != addr.String() {
		t.Errorf("subject = %s, want %s", claims.Subject, addr)
	}
}

func TestJWT_WrongSecret(t *testing.T) {
	addr, _ := newSigner(t)
	token, _ := GenerateJWT("secret", addr, time.Hour)

	if _, err := ParseJWT("other", token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestJWT_Expired(t *testing.T) {
	addr, _ := newSigner(t)
	token, _ := GenerateJWT("secret", addr, -time.Hour)
	// <= 0 заменяется на 24h
	if _, err := ParseJWT("secret", token); err != nil {
		t.Fatalf("non-positive expiration must fall back to default, got %v", err)
	}
}
