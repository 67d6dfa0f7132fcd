package password

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestMultiRoutesByPrefix(t *testing.T) {
	a := mustArgon2(t, fastParams())
	b, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	m := NewMulti(a, b)

	legacy, err := b.Hash("legacy-password-1")
	if err != nil {
		t.Fatalf("bcrypt Hash: %v", err)
	}
	ok, err := m.Verify("legacy-password-1", legacy)
	if err != nil || !ok {
		t.Fatalf("expected bcrypt hash to verify: ok=%v err=%v", ok, err)
	}
	if !m.NeedsRehash(legacy) {
		t.Fatal("bcrypt hash must be flagged for rehash")
	}

	current, _ := m.Hash("current-password-1")
	if m.NeedsRehash(current) {
		t.Fatal("fresh primary hash must not need rehash")
	}
	if ok, _ := m.Verify("current-password-2", current); ok {
		t.Fatal("wrong password must not verify")
	}

	if _, err := m.Verify("x", "$scrypt$whatever"); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
}

func TestPolicy(t *testing.T) {
	p := Policy{MinLength: 10, MinScore: 3}

	var pe *PolicyError
	if err := p.Check("short"); !errors.As(err, &pe) || pe.Code != "too_short" {
		t.Fatalf("expected too_short, got %v", err)
	}
	if err := p.Check("aaaaaaaaaaaa"); !errors.As(err, &pe) || pe.Code != "weak_password" {
		t.Fatalf("expected weak_password, got %v", err)
	}
	if err := p.Check("Tr0ub4dor&3-horse-battery-staple"); err != nil {
		t.Fatalf("expected strong password to pass: %v", err)
	}
	if err := (Policy{MinLength: 4}).Check("aaaa"); err != nil {
		t.Fatalf("score check must be disabled at 0: %v", err)
	}
}
