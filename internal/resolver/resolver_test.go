package resolver

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/coredge/hdvault/internal/address"
	"github.com/coredge/hdvault/wallet"
)

func randomSeed(t *testing.T) []byte {
	t.Helper()
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return seed
}

func newTestWallet(t *testing.T, kind wallet.Kind) *wallet.Wallet {
	t.Helper()
	w, err := wallet.CreateFromSeed(t.TempDir(), randomSeed(t), wallet.CreateOptions{Kind: kind})
	if err != nil {
		t.Fatalf("CreateFromSeed: %v", err)
	}
	return w
}

func TestSingleWalletByValRoundTrip(t *testing.T) {
	w := newTestWallet(t, wallet.KindBIP32Segwit)
	as, scriptType, err := w.GetNewAddress(0x10000000, nil)
	if err != nil {
		t.Fatalf("GetNewAddress: %v", err)
	}
	entry, _, err := w.GetAddressEntryForID(as.ID)
	if err != nil {
		t.Fatalf("GetAddressEntryForID: %v", err)
	}
	_ = scriptType

	r := NewSingleWallet(w, address.Mainnet)
	pre, err := r.ByVal(entry.PrefixedHash)
	if err != nil {
		t.Fatalf("ByVal: %v", err)
	}
	if !bytes.Equal(pre, entry.Preimage) {
		t.Fatalf("preimage mismatch")
	}

	// Cache hit path: call again, should return identical result.
	pre2, err := r.ByVal(entry.PrefixedHash)
	if err != nil {
		t.Fatalf("ByVal (cached): %v", err)
	}
	if !bytes.Equal(pre, pre2) {
		t.Fatalf("cached preimage mismatch")
	}
}

func TestSingleWalletByValUnknownHash(t *testing.T) {
	w := newTestWallet(t, wallet.KindBIP32Segwit)
	r := NewSingleWallet(w, address.Mainnet)
	if _, err := r.ByVal(bytes.Repeat([]byte{0xAB}, 21)); err == nil {
		t.Fatal("expected error for unknown hash")
	}
}

func TestSingleWalletPrivKeyForRootAsset(t *testing.T) {
	w := newTestWallet(t, wallet.KindBIP32Legacy)
	r := NewSingleWallet(w, address.Mainnet)

	pub, err := w.RootAsset.PubCompressed()
	if err != nil {
		t.Fatalf("PubCompressed: %v", err)
	}
	if _, err := r.PrivKeyFor(pub); err == nil {
		t.Fatal("expected NoAsset: root asset isn't indexed by an account")
	}
}

func TestSingleWalletPrivKeyForDerivedAsset(t *testing.T) {
	w := newTestWallet(t, wallet.KindBIP32Legacy)
	as, _, err := w.GetNewAddress(legacyOuterAccountIDForTest, nil)
	if err != nil {
		t.Fatalf("GetNewAddress: %v", err)
	}
	r := NewSingleWallet(w, address.Mainnet)
	pub, err := as.PubCompressed()
	if err != nil {
		t.Fatalf("PubCompressed: %v", err)
	}
	sb, err := r.PrivKeyFor(pub)
	if err != nil {
		t.Fatalf("PrivKeyFor: %v", err)
	}
	if len(sb.Bytes()) != 32 {
		t.Fatalf("expected a 32-byte scalar, got %d bytes", len(sb.Bytes()))
	}
}

func TestMultisigByValUnsupported(t *testing.T) {
	w := newTestWallet(t, wallet.KindBIP32Legacy)
	m := NewMultisig(w)
	if _, err := m.ByVal([]byte{0x00}); err == nil {
		t.Fatal("expected Multisig.ByVal to be unsupported")
	}
}

func TestMultisigPrivKeyForIndexedAsset(t *testing.T) {
	w := newTestWallet(t, wallet.KindBIP32Legacy)
	as, _, err := w.GetNewAddress(legacyOuterAccountIDForTest, nil)
	if err != nil {
		t.Fatalf("GetNewAddress: %v", err)
	}
	m := NewMultisig(w)
	pub, err := as.PubCompressed()
	if err != nil {
		t.Fatalf("PubCompressed: %v", err)
	}
	if _, err := m.PrivKeyFor(pub); err != nil {
		t.Fatalf("PrivKeyFor: %v", err)
	}
}

func TestExoticFallsBackToLinearScan(t *testing.T) {
	w := newTestWallet(t, wallet.KindBIP32Legacy)
	as, _, err := w.GetNewAddress(legacyOuterAccountIDForTest, nil)
	if err != nil {
		t.Fatalf("GetNewAddress: %v", err)
	}
	single := NewSingleWallet(w, address.Mainnet)
	exotic := NewExotic(single, w)

	if _, err := exotic.PrivKeyFor(as.PubUncompressed); err != nil {
		t.Fatalf("Exotic.PrivKeyFor via uncompressed fallback: %v", err)
	}
}

// legacyOuterAccountIDForTest mirrors wallet's unexported
// legacyOuterAccountID constant (account id 0), kept local since the
// wallet package does not export its fixed account-id table.
const legacyOuterAccountIDForTest = 0
