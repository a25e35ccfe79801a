// Package decryptdata implements the scoped-unlock decrypted-data
// container from spec.md section 4.C6 — the only place in the core
// plaintext master keys and private keys exist. It is grounded on
// original_source/cppForSwig/DecryptedDataContainer.cpp/.h (the
// ScopedUnlock guard and the populateEncryptionKey/rotate routines) and
// on the teacher's crypto/rand + AES usage in wallet/storage.go for the
// "never reuse a key+iv pair" discipline. Go has no native reentrant
// mutex or thread-id introspection, so per spec.md section 9's design
// note this uses the documented substitution: a non-reentrant mutex
// plus an explicit holder token compared by identity, emulating
// same-goroutine reentry without relying on runtime goroutine ids.
package decryptdata

import (
	"sync"
	"time"

	"github.com/coredge/hdvault/internal/cipher"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/kdf"
	"github.com/coredge/hdvault/internal/secretbytes"

	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"

	"context"
)

// LockToken is an opaque holder identity. A goroutine that acquires a
// lock keeps the returned token and passes it back in on re-entrant
// calls; passing nil always attempts a fresh acquisition.
type LockToken struct{}

// PromptFunc requests a passphrase from the user given the set of
// encryption-key ids it could satisfy. An empty return signals
// cancellation (spec.md section 4.C6, populateEncryptionKey step 5).
type PromptFunc func(candidates [][]byte) ([]byte, error)

// Loader fetches on-disk records the container doesn't have cached.
// Implemented by the wallet's KV-backed persistence layer.
type Loader interface {
	LoadEncryptedKey(keyID []byte) (*cipher.EncryptedKey, bool, error)
	LoadKDFParams(kdfID []byte) (*kdf.Params, bool, error)
}

// Container holds the process-wide-per-wallet KDF/encrypted-key caches
// and the scoped unlocked state (spec.md section 4.C6).
type Container struct {
	metaMu sync.Mutex
	cond   *sync.Cond
	holder *LockToken
	depth  int

	loader Loader

	kdfCache    map[string]*kdf.Params
	encKeyCache map[string]*cipher.EncryptedKey

	decryptedEncryptionKeys map[string]*secretbytes.SecretBytes // by string(keyID), raw id bytes
	decryptedPrivateKeys    map[string]*secretbytes.SecretBytes // by string(assetFullID), raw id bytes

	promptStack []PromptFunc

	retryLimiter limiter.Store

	// DefaultKeyID/DefaultKey back the "default encryption key" invariant:
	// a random 32 bytes stored in cleartext on disk, used when the user
	// supplies no passphrase (spec.md section 4.C6).
	DefaultKeyID []byte
	DefaultKey   *secretbytes.SecretBytes
}

// New builds a Container backed by loader. retryBudget bounds how many
// wrong-passphrase attempts populateEncryptionKey tolerates per rolling
// minute before giving up with KeyUnavailable, instead of hammering the
// KDF forever.
func New(loader Loader, retryBudget uint64) (*Container, error) {
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   retryBudget,
		Interval: time.Minute,
	})
	if err != nil {
		return nil, errs.New(errs.Encryption, "decryptdata.New", err)
	}
	c := &Container{
		loader:                  loader,
		kdfCache:                map[string]*kdf.Params{},
		encKeyCache:             map[string]*cipher.EncryptedKey{},
		decryptedEncryptionKeys: map[string]*secretbytes.SecretBytes{},
		decryptedPrivateKeys:    map[string]*secretbytes.SecretBytes{},
		retryLimiter:            store,
	}
	c.cond = sync.NewCond(&c.metaMu)
	return c, nil
}

// PushPrompt / PopPrompt implement the LIFO prompt-callback stack from
// spec.md section 4.C14 ("pushPasswordPrompt/popPasswordPrompt").
func (c *Container) PushPrompt(fn PromptFunc) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.promptStack = append(c.promptStack, fn)
}

func (c *Container) PopPrompt() {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	if len(c.promptStack) > 0 {
		c.promptStack = c.promptStack[:len(c.promptStack)-1]
	}
}

func (c *Container) currentPrompt() PromptFunc {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	if len(c.promptStack) == 0 {
		return nil
	}
	return c.promptStack[len(c.promptStack)-1]
}

// Lock acquires the reentrant scope. tok, if non-nil and currently
// held by this call chain, re-enters without blocking; otherwise this
// blocks until the current holder (if any) fully releases. The returned
// release func must be called exactly once per successful Lock call.
func (c *Container) Lock(tok *LockToken) (*LockToken, func()) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	if tok != nil && c.holder == tok {
		c.depth++
		return tok, func() { c.unlock(tok) }
	}
	for c.holder != nil {
		c.cond.Wait()
	}
	newTok := &LockToken{}
	c.holder = newTok
	c.depth = 1
	return newTok, func() { c.unlock(newTok) }
}

// SingleLock is the non-reentrant flavour spec.md reserves for
// rotateMasterPassphrase: it fails ErrAlreadyLocked if tok is the
// currently-held token, rather than silently re-entering.
func (c *Container) SingleLock(tok *LockToken) (func(), error) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	if tok != nil && c.holder == tok {
		return nil, errs.New(errs.Encryption, "decryptdata.SingleLock", errs.ErrAlreadyLocked)
	}
	for c.holder != nil {
		c.cond.Wait()
	}
	newTok := &LockToken{}
	c.holder = newTok
	c.depth = 1
	return func() { c.unlock(newTok) }, nil
}

func (c *Container) unlock(tok *LockToken) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	if c.holder != tok {
		return
	}
	c.depth--
	if c.depth == 0 {
		c.cleanupBeforeUnlock()
		c.holder = nil
		c.cond.Broadcast()
	}
}

// cleanupBeforeUnlock zeroes every decrypted secret; called once the
// outermost lock frame releases.
func (c *Container) cleanupBeforeUnlock() {
	for k, v := range c.decryptedEncryptionKeys {
		v.Zero()
		delete(c.decryptedEncryptionKeys, k)
	}
	for k, v := range c.decryptedPrivateKeys {
		v.Zero()
		delete(c.decryptedPrivateKeys, k)
	}
}

// take consults the retry limiter keyed by a stable string (the
// candidate set's combined identity), returning false once the budget
// for this rolling minute is exhausted.
func (c *Container) take(key string) bool {
	if c.retryLimiter == nil {
		return true
	}
	_, _, _, ok, err := c.retryLimiter.Take(context.Background(), key)
	if err != nil {
		return true // fail open: a limiter outage must not brick decryption
	}
	return ok
}
