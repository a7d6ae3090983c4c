package vault

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/collateral-pay/backend/internal/keys"
)

func newIdentity(t *testing.T) keys.Address {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := keys.FromPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func TestFindAddress_Deterministic(t *testing.T) {
	program := newIdentity(t)
	buyer := newIdentity(t)

	a1, n1, err := FindAddress(program, BuyerSeeds(buyer))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	a2, n2, err := FindAddress(program, BuyerSeeds(buyer))
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 || n1 != n2 {
		t.Errorf("derivation not deterministic: %s/%d vs %s/%d", a1, n1, a2, n2)
	}
	if a1.IsOnCurve() {
		t.Errorf("derived address %s must be off curve", a1)
	}

	again, err := CreateAddress(program, BuyerSeeds(buyer), n1)
	if err != nil {
		t.Fatal(err)
	}
	if again != a1 {
		t.Errorf("CreateAddress(nonce=%d) = %s, want %s", n1, again, a1)
	}
}

func TestCreateAddress_DependsOnInputs(t *testing.T) {
	program := newIdentity(t)
	buyer := newIdentity(t)
	other := newIdentity(t)

	base, nonce, err := FindAddress(program, BuyerSeeds(buyer))
	if err != nil {
		t.Fatal(err)
	}

	if a, err := CreateAddress(program, BuyerSeeds(other), nonce); err == nil && a == base {
		t.Error("different buyer produced the same vault address")
	}
	if a, err := CreateAddress(newIdentity(t), BuyerSeeds(buyer), nonce); err == nil && a == base {
		t.Error("different program produced the same vault address")
	}

	seen := map[keys.Address]uint8{}
	_, _ = Scan(program, BuyerSeeds(buyer), func(a keys.Address, n uint8) bool {
		if prev, ok := seen[a]; ok {
			t.Errorf("nonces %d and %d collide on %s", prev, n, a)
		}
		seen[a] = n
		return false
	})
	if len(seen) == 0 {
		t.Error("expected valid addresses across the nonce range")
	}
}

func TestCreateAddress_SeedLimits(t *testing.T) {
	program := newIdentity(t)

	_, err := CreateAddress(program, [][]byte{make([]byte, MaxSeedLength+1)}, 1)
	if !errors.Is(err, ErrMaxSeedLength) {
		t.Errorf("expected ErrMaxSeedLength, got %v", err)
	}

	seeds := make([][]byte, MaxSeeds+1)
	_, err = CreateAddress(program, seeds, 1)
	if !errors.Is(err, ErrTooManySeeds) {
		t.Errorf("expected ErrTooManySeeds, got %v", err)
	}
}

func TestSignFor(t *testing.T) {
	program := newIdentity(t)
	buyer := newIdentity(t)
	addr, nonce, err := FindAddress(program, BuyerSeeds(buyer))
	if err != nil {
		t.Fatal(err)
	}

	auth, err := SignFor(program, BuyerSeeds(buyer), nonce, addr)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !auth.Valid() || auth.Address() != addr || auth.Nonce() != nonce {
		t.Errorf("unexpected authority: %+v", auth)
	}

	if _, err := SignFor(program, BuyerSeeds(newIdentity(t)), nonce, addr); !errors.Is(err, ErrAuthorityMismatch) {
		t.Errorf("expected ErrAuthorityMismatch for foreign seeds, got %v", err)
	}

	if (Authority{}).Valid() {
		t.Error("zero Authority must be invalid")
	}
}
