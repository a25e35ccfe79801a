package decryptdata

import (
	"testing"

	"github.com/coredge/hdvault/internal/cipher"
	"github.com/coredge/hdvault/internal/kdf"
)

type memLoader struct {
	keys map[string]*cipher.EncryptedKey
	kdfs map[string]*kdf.Params
}

func (m *memLoader) LoadEncryptedKey(id []byte) (*cipher.EncryptedKey, bool, error) {
	ek, ok := m.keys[string(id)]
	return ek, ok, nil
}

func (m *memLoader) LoadKDFParams(id []byte) (*kdf.Params, bool, error) {
	p, ok := m.kdfs[string(id)]
	return p, ok, nil
}

// buildSinglePassphraseWallet wraps a random 32-byte master key under
// one passphrase and returns the loader plus the master key id.
func buildSinglePassphraseWallet(t *testing.T, passphrase string) (*memLoader, []byte) {
	t.Helper()
	params, err := kdf.New(kdf.MinMemoryBytes, 1)
	if err != nil {
		t.Fatalf("kdf.New: %v", err)
	}
	wrapKey, err := params.Derive([]byte(passphrase))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	wrapKeyID := ComputeKeyID(wrapKey, params.KdfID)

	masterKey := make([]byte, 32)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	masterKeyID := ComputeKeyID(masterKey, params.KdfID)

	c, err := cipher.New(params.KdfID, wrapKeyID)
	if err != nil {
		t.Fatalf("cipher.New: %v", err)
	}
	ct, err := c.Encrypt(wrapKey, masterKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	ek := cipher.NewEncryptedKey(masterKeyID, wrapKeyID, &cipher.CipherData{Ciphertext: ct, Cipher: c})

	loader := &memLoader{
		keys: map[string]*cipher.EncryptedKey{string(masterKeyID): ek},
		kdfs: map[string]*kdf.Params{string(params.KdfID): params},
	}
	return loader, masterKeyID
}

func TestWrongPassphraseRetryThenSuccess(t *testing.T) {
	loader, masterKeyID := buildSinglePassphraseWallet(t, "test")
	c, err := New(loader, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	attempts := []string{"bad", "bad", "test"}
	i := 0
	c.PushPrompt(func(candidates [][]byte) ([]byte, error) {
		p := attempts[i]
		i++
		return []byte(p), nil
	})

	tok, release := c.Lock(nil)
	defer release()

	if err := c.populateEncryptionKey(map[string][]byte{string(masterKeyID): nil}); err != nil {
		t.Fatalf("expected eventual success, got: %v", err)
	}
	if i != 3 {
		t.Fatalf("expected exactly 3 prompts, got %d", i)
	}
	_ = tok
}

func TestPassphraseCancellationLeavesNoDecryptedKeys(t *testing.T) {
	loader, masterKeyID := buildSinglePassphraseWallet(t, "test")
	c, err := New(loader, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	attempts := []string{"bad", "bad", ""}
	i := 0
	c.PushPrompt(func(candidates [][]byte) ([]byte, error) {
		p := attempts[i]
		i++
		return []byte(p), nil
	})

	_, release := c.Lock(nil)
	defer release()

	err = c.populateEncryptionKey(map[string][]byte{string(masterKeyID): nil})
	if err == nil {
		t.Fatalf("expected PassphraseCancelled error")
	}
	if len(c.decryptedEncryptionKeys) != 0 {
		t.Fatalf("expected no cached decrypted keys after cancellation, got %d", len(c.decryptedEncryptionKeys))
	}
}

func TestLockScopeZeroesOnRelease(t *testing.T) {
	loader, masterKeyID := buildSinglePassphraseWallet(t, "test")
	c, err := New(loader, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.PushPrompt(func(candidates [][]byte) ([]byte, error) { return []byte("test"), nil })

	_, release := c.Lock(nil)
	if err := c.populateEncryptionKey(map[string][]byte{string(masterKeyID): nil}); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if len(c.decryptedEncryptionKeys) == 0 {
		t.Fatalf("expected a cached key while locked")
	}
	release()
	if len(c.decryptedEncryptionKeys) != 0 {
		t.Fatalf("expected decrypted keys to be cleared after release")
	}
}

func TestReentrantLockSameToken(t *testing.T) {
	loader, _ := buildSinglePassphraseWallet(t, "test")
	c, err := New(loader, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tok, release1 := c.Lock(nil)
	tok2, release2 := c.Lock(tok)
	if tok2 != tok {
		t.Fatalf("expected reentrant lock to return the same token")
	}
	release2()
	if c.holder == nil {
		t.Fatalf("expected lock to still be held after releasing only the inner frame")
	}
	release1()
	if c.holder != nil {
		t.Fatalf("expected lock to be released after the outermost frame")
	}
}

func TestSingleLockRejectsReentry(t *testing.T) {
	loader, _ := buildSinglePassphraseWallet(t, "test")
	c, err := New(loader, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tok, release := c.Lock(nil)
	defer release()

	if _, err := c.SingleLock(tok); err == nil {
		t.Fatalf("expected SingleLock to reject reentry from the same token")
	}
}
