package wallet

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/coredge/hdvault/internal/errs"
)

func randomSeed(t *testing.T) []byte {
	t.Helper()
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return seed
}

func TestCreateFromSeedArmory135(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateFromSeed(dir, randomSeed(t), CreateOptions{Kind: KindArmory135})
	if err != nil {
		t.Fatalf("CreateFromSeed: %v", err)
	}
	if w.Kind != KindArmory135 {
		t.Fatalf("kind = %v, want KindArmory135", w.Kind)
	}
	if _, ok := w.AddressAccounts[ReservedLegacyAccountID]; !ok {
		t.Fatalf("expected reserved legacy account to be registered")
	}
}

func TestCreateFromSeedBIP32SegwitGetsDistinctAddresses(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateFromSeed(dir, randomSeed(t), CreateOptions{Kind: KindBIP32Segwit})
	if err != nil {
		t.Fatalf("CreateFromSeed: %v", err)
	}

	a1, t1, err := w.GetNewAddress(segwitOuterAccountID, nil)
	if err != nil {
		t.Fatalf("GetNewAddress: %v", err)
	}
	a2, t2, err := w.GetNewAddress(segwitOuterAccountID, nil)
	if err != nil {
		t.Fatalf("GetNewAddress: %v", err)
	}
	if bytes.Equal(a1.ID, a2.ID) {
		t.Fatalf("expected distinct asset ids across successive GetNewAddress calls")
	}
	if t1 != t2 {
		t.Fatalf("expected default script type to stay stable: %d != %d", t1, t2)
	}

	entry, _, err := w.GetAddressEntryForID(a1.ID)
	if err != nil {
		t.Fatalf("GetAddressEntryForID: %v", err)
	}
	addr, err := entry.EncodeBech32(w.Network.Bech32HRP)
	if err != nil {
		t.Fatalf("EncodeBech32: %v", err)
	}

	gotID, err := w.GetAssetIDForAddr(addr)
	if err != nil {
		t.Fatalf("GetAssetIDForAddr: %v", err)
	}
	if !bytes.Equal(gotID, a1.ID) {
		t.Fatalf("round trip address -> asset id mismatch")
	}
}

func TestCreateFromMnemonicRejectsInvalidMnemonic(t *testing.T) {
	dir := t.TempDir()
	_, err := CreateFromMnemonic(dir, "not a real mnemonic at all", "", CreateOptions{Kind: KindBIP32Legacy})
	if err == nil {
		t.Fatal("expected error for invalid mnemonic")
	}
	if !errs.Derivation.Is(err) {
		t.Fatalf("expected Derivation kind error, got %v", err)
	}
}

func TestCleartextDefaultKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateFromSeed(dir, randomSeed(t), CreateOptions{Kind: KindBIP32Legacy})
	if err != nil {
		t.Fatalf("CreateFromSeed: %v", err)
	}

	if err := w.ExtendPrivateChainToIndex(legacyOuterAccountID, 0); err != nil {
		t.Fatalf("ExtendPrivateChainToIndex: %v", err)
	}
	as, ok := w.AddressAccounts[legacyOuterAccountID].Outer.Asset(0)
	if !ok || as.PrivateKey == nil {
		t.Fatal("expected asset 0 to carry an encrypted private key")
	}

	tok, release := w.LockDecryptedContainer()
	defer release()

	if _, err := w.Container.GetDecryptedPrivateData(tok, as); err != nil {
		t.Fatalf("GetDecryptedPrivateData on asset 0: %v", err)
	}
}

func TestPassphraseWrongThenRightRetries(t *testing.T) {
	dir := t.TempDir()
	passphrase := []byte("correct horse battery staple")
	w, err := CreateFromSeed(dir, randomSeed(t), CreateOptions{Kind: KindBIP32Legacy, Passphrase: passphrase})
	if err != nil {
		t.Fatalf("CreateFromSeed: %v", err)
	}

	attempts := 0
	w.PushPasswordPrompt(func(candidates [][]byte) ([]byte, error) {
		attempts++
		if attempts == 1 {
			return []byte("wrong passphrase"), nil
		}
		return passphrase, nil
	})
	defer w.PopPasswordPrompt()

	if err := w.ExtendPrivateChainToIndex(legacyOuterAccountID, 0); err != nil {
		t.Fatalf("ExtendPrivateChainToIndex: %v", err)
	}
	aa := w.AddressAccounts[legacyOuterAccountID]
	as, ok := aa.Outer.Asset(0)
	if !ok {
		t.Fatal("expected asset 0 to exist")
	}

	tok, release := w.LockDecryptedContainer()
	defer release()

	if _, err := w.Container.GetDecryptedPrivateData(tok, as); err != nil {
		t.Fatalf("GetDecryptedPrivateData: %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected at least one wrong-passphrase retry, attempts = %d", attempts)
	}
}

func TestAddPassphraseAddsAlternateUnlock(t *testing.T) {
	dir := t.TempDir()
	first := []byte("first passphrase")
	w, err := CreateFromSeed(dir, randomSeed(t), CreateOptions{Kind: KindBIP32Legacy, Passphrase: first})
	if err != nil {
		t.Fatalf("CreateFromSeed: %v", err)
	}

	w.PushPasswordPrompt(func(candidates [][]byte) ([]byte, error) { return first, nil })
	if err := w.AddPassphrase([]byte("second passphrase"), calibrationTarget); err != nil {
		t.Fatalf("AddPassphrase: %v", err)
	}
	w.PopPasswordPrompt()

	w.PushPasswordPrompt(func(candidates [][]byte) ([]byte, error) { return []byte("second passphrase"), nil })
	defer w.PopPasswordPrompt()

	if err := w.ExtendPrivateChainToIndex(legacyOuterAccountID, 0); err != nil {
		t.Fatalf("ExtendPrivateChainToIndex under second passphrase: %v", err)
	}
	as, ok := w.AddressAccounts[legacyOuterAccountID].Outer.Asset(0)
	if !ok || as.PrivateKey == nil {
		t.Fatal("expected asset 0 to carry an encrypted private key")
	}

	tok, release := w.LockDecryptedContainer()
	defer release()
	if _, err := w.Container.GetDecryptedPrivateData(tok, as); err != nil {
		t.Fatalf("GetDecryptedPrivateData under second passphrase: %v", err)
	}
}

// TestExtendPrivateChainToIndexFillsAlreadyPublicAsset exercises
// spec.md section 4.C10's "private extension overwrites a public-only
// asset with its private-bearing equivalent, same pubkey" contract at
// an index well inside the initial lookahead window — a regression
// test for the bug where private fill could only ever reach indices
// past the public lookahead frontier.
func TestExtendPrivateChainToIndexFillsAlreadyPublicAsset(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateFromSeed(dir, randomSeed(t), CreateOptions{Kind: KindBIP32Segwit})
	if err != nil {
		t.Fatalf("CreateFromSeed: %v", err)
	}

	aa, ok := w.AddressAccounts[segwitOuterAccountID]
	if !ok {
		t.Fatal("expected segwit outer account to be registered")
	}
	const target = 5
	before, ok := aa.Outer.Asset(target)
	if !ok || before.PrivateKey != nil {
		t.Fatalf("expected asset %d to start out public-only", target)
	}

	if err := w.ExtendPrivateChainToIndex(segwitOuterAccountID, target); err != nil {
		t.Fatalf("ExtendPrivateChainToIndex: %v", err)
	}

	after, ok := aa.Outer.Asset(target)
	if !ok {
		t.Fatalf("expected asset %d to still exist after private fill", target)
	}
	if after.PrivateKey == nil {
		t.Fatalf("expected asset %d to carry a private key after ExtendPrivateChainToIndex", target)
	}
	if !bytes.Equal(after.PubUncompressed, before.PubUncompressed) {
		t.Fatal("expected the private-bearing asset to keep the same pubkey")
	}
}

// TestExtendPrivateChainToIndexArmory135 covers the sequential
// Armory-135 derivation path: private fill at a low index must walk
// from the account root rather than skipping past whatever the public
// chain has already computed.
func TestExtendPrivateChainToIndexArmory135(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateFromSeed(dir, randomSeed(t), CreateOptions{Kind: KindArmory135})
	if err != nil {
		t.Fatalf("CreateFromSeed: %v", err)
	}

	aa, ok := w.AddressAccounts[ReservedLegacyAccountID]
	if !ok {
		t.Fatal("expected legacy account to be registered")
	}
	const target = 3
	before, ok := aa.Outer.Asset(target)
	if !ok || before.PrivateKey != nil {
		t.Fatalf("expected asset %d to start out public-only", target)
	}

	if err := w.ExtendPrivateChainToIndex(ReservedLegacyAccountID, target); err != nil {
		t.Fatalf("ExtendPrivateChainToIndex: %v", err)
	}

	for idx := uint32(0); idx <= target; idx++ {
		as, ok := aa.Outer.Asset(idx)
		if !ok || as.PrivateKey == nil {
			t.Fatalf("expected asset %d to carry a private key after sequential fill", idx)
		}
	}
	after, _ := aa.Outer.Asset(target)
	if !bytes.Equal(after.PubUncompressed, before.PubUncompressed) {
		t.Fatal("expected the private-bearing asset to keep the same pubkey")
	}
}

// TestExtendPrivateChainByCount covers the count-based variant,
// mirroring ExtendPublicChain's own test coverage.
func TestExtendPrivateChainByCount(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateFromSeed(dir, randomSeed(t), CreateOptions{Kind: KindBIP32Legacy})
	if err != nil {
		t.Fatalf("CreateFromSeed: %v", err)
	}
	if err := w.ExtendPrivateChain(legacyOuterAccountID, 3); err != nil {
		t.Fatalf("ExtendPrivateChain: %v", err)
	}
	aa := w.AddressAccounts[legacyOuterAccountID]
	for idx := uint32(0); idx < 3; idx++ {
		as, ok := aa.Outer.Asset(idx)
		if !ok || as.PrivateKey == nil {
			t.Fatalf("expected asset %d to carry a private key", idx)
		}
	}
}

func TestExportWatchingOnlyHasNoPrivateKeys(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateFromSeed(dir, randomSeed(t), CreateOptions{Kind: KindBIP32Segwit})
	if err != nil {
		t.Fatalf("CreateFromSeed: %v", err)
	}
	a1, t1, err := w.GetNewAddress(segwitOuterAccountID, nil)
	if err != nil {
		t.Fatalf("GetNewAddress: %v", err)
	}

	mirrorDir := t.TempDir()
	mirror, err := w.ExportWatchingOnly(mirrorDir)
	if err != nil {
		t.Fatalf("ExportWatchingOnly: %v", err)
	}
	if mirror.RootAsset.PrivateKey != nil {
		t.Fatal("expected mirror root asset to have no private key")
	}

	mirrorAsset, err := mirror.GetAssetForID(a1.ID)
	if err != nil {
		t.Fatalf("GetAssetForID on mirror: %v", err)
	}
	if mirrorAsset.PrivateKey != nil {
		t.Fatal("expected mirror asset to have no private key")
	}
	if !bytes.Equal(mirrorAsset.PubUncompressed, a1.PubUncompressed) {
		t.Fatal("expected mirror asset public key to match original")
	}

	entry, mt, err := mirror.GetAddressEntryForID(mirrorAsset.ID)
	if err != nil {
		t.Fatalf("GetAddressEntryForID on mirror: %v", err)
	}
	if mt != t1 {
		t.Fatalf("mirror script type = %d, want %d", mt, t1)
	}
	origEntry, _, err := w.GetAddressEntryForID(a1.ID)
	if err != nil {
		t.Fatalf("GetAddressEntryForID on original: %v", err)
	}
	if !bytes.Equal(entry.PrefixedHash, origEntry.PrefixedHash) {
		t.Fatal("expected mirror and original address hashes to match")
	}
}
