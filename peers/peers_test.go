package peers

import (
	"crypto/rand"
	"testing"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/cryptoadapter"
)

func randomKeyPair(t *testing.T) (priv []byte, pubCompressed []byte) {
	t.Helper()
	priv = make([]byte, 32)
	if _, err := rand.Read(priv); err != nil {
		t.Fatalf("rand: %v", err)
	}
	pubUncompressed, err := cryptoadapter.Secp256k1PubkeyFromPriv(priv)
	if err != nil {
		t.Fatalf("pubkey from priv: %v", err)
	}
	pubCompressed, err = cryptoadapter.PointCompress(pubUncompressed)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	return priv, pubCompressed
}

func TestAddPeerAndLookup(t *testing.T) {
	meta := account.NewMetadataAccount(account.AuthPeers)
	p := New(meta)

	_, pub := randomKeyPair(t)
	if err := p.AddPeer(pub, "alice's laptop", "alice"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	names := p.NameToPubKey()
	if string(names["alice"]) != string(pub) {
		t.Fatalf("name lookup mismatch")
	}
	descs := p.PubKeyToDescription()
	if descs[string(pub)].Description != "alice's laptop" {
		t.Fatalf("description mismatch: %+v", descs[string(pub)])
	}
}

func TestOwnKeyCannotBeErasedByName(t *testing.T) {
	meta := account.NewMetadataAccount(account.AuthPeers)
	p := New(meta)

	_, pub := randomKeyPair(t)
	p.SetOwnKey(pub, "own identity")

	if err := p.EraseName("own"); err == nil {
		t.Fatal("expected error erasing own key by name")
	}
	if err := p.EraseKey(pub); err == nil {
		t.Fatal("expected error erasing own key directly")
	}
}

func TestEraseNameRemovesOnlyThatName(t *testing.T) {
	meta := account.NewMetadataAccount(account.AuthPeers)
	p := New(meta)

	_, pub := randomKeyPair(t)
	if err := p.AddPeer(pub, "shared device", "alice", "bob"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if err := p.EraseName("alice"); err != nil {
		t.Fatalf("EraseName: %v", err)
	}
	names := p.NameToPubKey()
	if _, ok := names["alice"]; ok {
		t.Fatal("alice should be gone")
	}
	if _, ok := names["bob"]; !ok {
		t.Fatal("bob should remain")
	}
}

func TestEraseKeyRemovesAllNames(t *testing.T) {
	meta := account.NewMetadataAccount(account.AuthPeers)
	p := New(meta)

	_, pub := randomKeyPair(t)
	if err := p.AddPeer(pub, "shared device", "alice", "bob"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if err := p.EraseKey(pub); err != nil {
		t.Fatalf("EraseKey: %v", err)
	}
	names := p.NameToPubKey()
	if len(names) != 0 {
		t.Fatalf("expected all names gone, got %+v", names)
	}
}

func TestLoadFromAccountReplaysEntries(t *testing.T) {
	meta := account.NewMetadataAccount(account.AuthPeers)
	p := New(meta)

	_, pub := randomKeyPair(t)
	p.SetOwnKey(pub, "own identity")
	_, peerPub := randomKeyPair(t)
	if err := p.AddPeer(peerPub, "a friend", "carol"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	// Simulate reopening the wallet: replay the same committed records
	// into a fresh MetadataAccount and a fresh AuthorizedPeers projection.
	reopened := account.NewMetadataAccount(account.AuthPeers)
	for _, entry := range meta.PendingCommits() {
		reopened.ReplayRecord(entry.DBKey(account.AuthPeers), entry.Serialize())
	}
	p2 := New(reopened)
	if err := p2.LoadFromAccount(); err != nil {
		t.Fatalf("LoadFromAccount: %v", err)
	}

	if string(p2.OwnPublicKey()) != string(pub) {
		t.Fatalf("own key not restored")
	}
	names := p2.NameToPubKey()
	if string(names["carol"]) != string(peerPub) {
		t.Fatalf("carol not restored: %+v", names)
	}
}

func TestAddRootSignatureValidatesAgainstOwnKey(t *testing.T) {
	meta := account.NewMetadataAccount(account.AuthPeers)
	p := New(meta)

	ownPriv, ownPub := randomKeyPair(t)
	p.SetOwnKey(ownPub, "own identity")

	rootPriv, rootPub := randomKeyPair(t)
	_ = rootPriv
	sig, err := cryptoadapter.Secp256k1SignDeterministic(rootPriv, cryptoadapter.SHA256(ownPub))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := p.AddRootSignature(rootPub, sig); err != nil {
		t.Fatalf("AddRootSignature: %v", err)
	}

	ok, err := p.VerifyRootSignature(cryptoadapter.SHA256(ownPub))
	if err != nil || !ok {
		t.Fatalf("expected root signature to verify, ok=%v err=%v", ok, err)
	}
	_ = ownPriv
}

func TestAddRootSignatureRejectsWrongSignature(t *testing.T) {
	meta := account.NewMetadataAccount(account.AuthPeers)
	p := New(meta)

	_, ownPub := randomKeyPair(t)
	p.SetOwnKey(ownPub, "own identity")

	otherPriv, rootPub := randomKeyPair(t)
	badSig, err := cryptoadapter.Secp256k1SignDeterministic(otherPriv, cryptoadapter.SHA256([]byte("not the own key")))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := p.AddRootSignature(rootPub, badSig); err == nil {
		t.Fatal("expected rejection of mismatched root signature")
	}
}

func TestAddAndErasePeerRootKey(t *testing.T) {
	meta := account.NewMetadataAccount(account.AuthPeers)
	p := New(meta)

	_, rootPub := randomKeyPair(t)
	if err := p.AddPeerRootKey(rootPub, "certificate authority"); err != nil {
		t.Fatalf("AddPeerRootKey: %v", err)
	}
	roots := p.PeerRootKeys()
	if roots[string(rootPub)].Description != "certificate authority" {
		t.Fatalf("unexpected root key entry: %+v", roots)
	}
	p.ErasePeerRootKey(rootPub)
	roots = p.PeerRootKeys()
	if _, ok := roots[string(rootPub)]; ok {
		t.Fatal("expected root key to be erased")
	}
}
