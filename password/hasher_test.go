package password

import (
	"errors"
	"strings"
	"testing"
)

func fastParams() Params {
	// Floor-level costs keep the test quick.
	return Params{
		MemoryKB:    8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T, params Params) *Hasher {
	t.Helper()
	h, err := NewHasher(params)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	cases := map[string]Params{
		"low memory":      {MemoryKB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		"zero iterations": {MemoryKB: 8192, Iterations: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		"zero threads":    {MemoryKB: 8192, Iterations: 1, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		"short salt":      {MemoryKB: 8192, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32},
		"short key":       {MemoryKB: 8192, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for name, params := range cases {
		if _, err := NewHasher(params); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t, fastParams())

	encoded, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected encoding: %q", encoded)
	}

	ok, err := h.Verify("correct horse battery", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}
	ok, err = h.Verify("wrong horse battery", encoded)
	if err != nil {
		t.Fatalf("Verify(wrong): %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashSaltsDiffer(t *testing.T) {
	h := newTestHasher(t, fastParams())
	a, _ := h.Hash("correct horse battery")
	b, _ := h.Hash("correct horse battery")
	if a == b {
		t.Fatal("two hashes of the same password should differ")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	h := newTestHasher(t, fastParams())
	if _, err := h.Hash("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	h := newTestHasher(t, fastParams())
	bad := []string{
		"",
		"not a hash",
		"$bcrypt$v=19$m=8192,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAA",
		"$argon2id$v=19$m=1,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$AAAA",
	}
	for _, encoded := range bad {
		if _, err := h.Verify("whatever-password", encoded); !errors.Is(err, ErrBadHashFormat) {
			t.Errorf("%q: expected ErrBadHashFormat, got %v", encoded, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := newTestHasher(t, fastParams())
	encoded, err := weak.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	same, err := weak.NeedsRehash(encoded)
	if err != nil || same {
		t.Fatalf("NeedsRehash(same params) = %v, %v", same, err)
	}

	strong := newTestHasher(t, DefaultParams())
	upgrade, err := strong.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("NeedsRehash: %v", err)
	}
	if !upgrade {
		t.Fatal("expected rehash needed at stronger params")
	}
}
