package bip32

import (
	"encoding/hex"
	"testing"
)

// TestBIP32TestVector1 checks scenario A from spec.md: the published
// BIP-32 test vector 1, root and m/0'.
func TestBIP32TestVector1(t *testing.T) {
	seed, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	if err != nil {
		t.Fatalf("seed decode: %v", err)
	}
	root, err := InitFromSeed(seed)
	if err != nil {
		t.Fatalf("InitFromSeed: %v", err)
	}

	wantXprv := "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"
	wantXpub := "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"

	if got := root.EncodeBase58(); got != wantXprv {
		t.Fatalf("root xprv mismatch:\n got  %s\n want %s", got, wantXprv)
	}
	if got := root.Neuter().EncodeBase58(); got != wantXpub {
		t.Fatalf("root xpub mismatch:\n got  %s\n want %s", got, wantXpub)
	}

	child, err := root.DerivePrivate(hardenedOffset + 0)
	if err != nil {
		t.Fatalf("DerivePrivate(0'): %v", err)
	}
	wantChildXprv := "xprv9uHRZZhk6KAJC1avXpDAp4MDc3sQKNxDiPvvkX8Br5ngLNv1TxvUxt4cV1rGL5hj6KCesnDYUhd7oWgT11eZG7XnxHrnYeSvkzY7d2bhkJ7"
	wantChildXpub := "xpub68Gmy5EdvgibQVfPdqkBBCHxA5htiqg55crXYuXoQRKfDBFA1WEjWgP6LHhwBZeNK1VTsfTFUHCdrfp1bgwQ9xv5ski8PX9rL2dZXvgGDnw"

	if got := child.EncodeBase58(); got != wantChildXprv {
		t.Fatalf("child xprv mismatch:\n got  %s\n want %s", got, wantChildXprv)
	}
	if got := child.Neuter().EncodeBase58(); got != wantChildXpub {
		t.Fatalf("child xpub mismatch:\n got  %s\n want %s", got, wantChildXpub)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	root, err := InitFromSeed(seed)
	if err != nil {
		t.Fatalf("InitFromSeed: %v", err)
	}
	encoded := root.EncodeBase58()
	decoded, err := DecodeBase58(encoded)
	if err != nil {
		t.Fatalf("DecodeBase58: %v", err)
	}
	if decoded.EncodeBase58() != encoded {
		t.Fatalf("round trip mismatch")
	}
}

func TestDerivePublicMatchesNeuteredPrivate(t *testing.T) {
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	root, err := InitFromSeed(seed)
	if err != nil {
		t.Fatalf("InitFromSeed: %v", err)
	}
	// Soft (non-hardened) child: derivable from public alone.
	childPriv, err := root.DerivePrivate(0)
	if err != nil {
		t.Fatalf("DerivePrivate(0): %v", err)
	}
	childPub, err := root.Neuter().DerivePublic(0)
	if err != nil {
		t.Fatalf("DerivePublic(0): %v", err)
	}
	if childPriv.Neuter().EncodeBase58() != childPub.EncodeBase58() {
		t.Fatalf("public derivation diverged from neutered private derivation")
	}
}

func TestDerivePublicRejectsHardened(t *testing.T) {
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	root, err := InitFromSeed(seed)
	if err != nil {
		t.Fatalf("InitFromSeed: %v", err)
	}
	if _, err := root.Neuter().DerivePublic(hardenedOffset); err == nil {
		t.Fatalf("expected HardenedFromPublic error")
	}
}
