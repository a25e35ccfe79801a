package wallet

import (
	"testing"

	"github.com/coredge/hdvault/internal/address"
)

func TestMultisigWalletGetNewAddress(t *testing.T) {
	components := make([]*Wallet, 3)
	for i := range components {
		w, err := CreateFromSeed(t.TempDir(), randomSeed(t), CreateOptions{Kind: KindBIP32Legacy})
		if err != nil {
			t.Fatalf("CreateFromSeed component %d: %v", i, err)
		}
		components[i] = w
	}

	mw, err := NewMultisigWallet(components, 2, false, address.Mainnet)
	if err != nil {
		t.Fatalf("NewMultisigWallet: %v", err)
	}

	entry, assets, err := mw.GetNewMultisigAddress()
	if err != nil {
		t.Fatalf("GetNewMultisigAddress: %v", err)
	}
	if len(assets) != 3 {
		t.Fatalf("expected 3 component assets, got %d", len(assets))
	}
	addr, err := entry.EncodeBase58Check()
	if err != nil {
		t.Fatalf("EncodeBase58Check: %v", err)
	}
	if addr == "" {
		t.Fatal("expected non-empty multisig address")
	}
}

func TestNewMultisigWalletRejectsInvalidThreshold(t *testing.T) {
	components := []*Wallet{}
	if _, err := NewMultisigWallet(components, 1, false, address.Mainnet); err == nil {
		t.Fatal("expected error for m > len(components)")
	}
}
