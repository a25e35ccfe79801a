package derivation

import (
	"bytes"
	"testing"

	"github.com/coredge/hdvault/internal/bip32"
)

func rootFixture(t *testing.T) *bip32.Node {
	t.Helper()
	root, err := bip32.InitFromSeed([]byte("derivation-scheme-fixture-seed-"))
	if err != nil {
		t.Fatalf("InitFromSeed: %v", err)
	}
	return root
}

func TestBIP32SchemePublicMatchesPrivate(t *testing.T) {
	root := rootFixture(t)
	scheme := NewBIP32Scheme(root.ChainCode)

	priv, err := scheme.ExtendPrivateChain(root.PubKey, root.PrivKey, 0, 3)
	if err != nil {
		t.Fatalf("ExtendPrivateChain: %v", err)
	}
	pub, err := scheme.ExtendPublicChain(root.PubKey, 0, 3)
	if err != nil {
		t.Fatalf("ExtendPublicChain: %v", err)
	}
	if len(priv) != 4 || len(pub) != 4 {
		t.Fatalf("expected 4 entries each, got priv=%d pub=%d", len(priv), len(pub))
	}
	for i := range priv {
		if !bytes.Equal(priv[i].PubKey, pub[i].PubKey) {
			t.Fatalf("index %d: pubkey mismatch between private and public extension", i)
		}
	}
}

func TestBIP32SchemeRejectsHardenedPublic(t *testing.T) {
	root := rootFixture(t)
	scheme := NewBIP32Scheme(root.ChainCode)
	if _, err := scheme.ExtendPublicChain(root.PubKey, 1<<31, 1<<31); err == nil {
		t.Fatalf("expected HardenedFromPublic error")
	}
}

func TestBIP32SaltedSchemeConsistency(t *testing.T) {
	root := rootFixture(t)
	salt := bytes.Repeat([]byte{0x07}, 32)
	scheme := NewBIP32SaltedScheme(root.ChainCode, salt)

	priv, err := scheme.ExtendPrivateChain(root.PubKey, root.PrivKey, 0, 1)
	if err != nil {
		t.Fatalf("ExtendPrivateChain: %v", err)
	}
	pub, err := scheme.ExtendPublicChain(root.PubKey, 0, 1)
	if err != nil {
		t.Fatalf("ExtendPublicChain: %v", err)
	}
	for i := range priv {
		if !bytes.Equal(priv[i].PubKey, pub[i].PubKey) {
			t.Fatalf("index %d: salted pubkey mismatch", i)
		}
	}
}

func TestArmory135ChainConsistency(t *testing.T) {
	root := rootFixture(t)
	chainCode := bytes.Repeat([]byte{0x11}, 32)
	scheme := NewArmory135Scheme(chainCode)

	priv, err := scheme.ExtendPrivateChain(root.PubKey, root.PrivKey, 1, 5)
	if err != nil {
		t.Fatalf("ExtendPrivateChain: %v", err)
	}
	pub, err := scheme.ExtendPublicChain(root.PubKey, 1, 5)
	if err != nil {
		t.Fatalf("ExtendPublicChain: %v", err)
	}
	if len(priv) != 5 || len(pub) != 5 {
		t.Fatalf("expected 5 entries, got priv=%d pub=%d", len(priv), len(pub))
	}
	for i := range priv {
		if !bytes.Equal(priv[i].PubKey, pub[i].PubKey) {
			t.Fatalf("index %d: armory chain diverged between private and public", i)
		}
	}
}

func TestECDHSchemeRoundTrip(t *testing.T) {
	root := rootFixture(t)
	scheme, err := NewECDHScheme()
	if err != nil {
		t.Fatalf("NewECDHScheme: %v", err)
	}
	salt := bytes.Repeat([]byte{0x09}, 32)
	idx := scheme.AddSalt(salt)

	priv, err := scheme.ExtendPrivateChain(root.PubKey, root.PrivKey, idx, idx)
	if err != nil {
		t.Fatalf("ExtendPrivateChain: %v", err)
	}
	pub, err := scheme.ExtendPublicChain(root.PubKey, idx, idx)
	if err != nil {
		t.Fatalf("ExtendPublicChain: %v", err)
	}
	if !bytes.Equal(priv[0].PubKey, pub[0].PubKey) {
		t.Fatalf("ecdh public/private pubkey mismatch")
	}

	serialized := scheme.Serialize()
	restored, err := DeserializeECDHScheme(serialized)
	if err != nil {
		t.Fatalf("DeserializeECDHScheme: %v", err)
	}
	restoredSalt, ok := restored.SaltAt(idx)
	if !ok || !bytes.Equal(restoredSalt, salt) {
		t.Fatalf("salt did not round trip through serialisation")
	}
}

func TestECDHSchemeRequiresRegisteredSalt(t *testing.T) {
	root := rootFixture(t)
	scheme, err := NewECDHScheme()
	if err != nil {
		t.Fatalf("NewECDHScheme: %v", err)
	}
	if _, err := scheme.ExtendPublicChain(root.PubKey, 0, 0); err == nil {
		t.Fatalf("expected an error for an unregistered salt index")
	}
}
