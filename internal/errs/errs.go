// Package errs defines the error taxonomy shared by every wallet-core
// component, mirroring the categories the original C++ core reports
// alongside a wallet id (spec section 7).
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a coarse error category. It is not a Go type per component;
// every package returns a *Error tagged with one of these.
type Kind string

const (
	Crypto             Kind = "crypto"
	WalletIO           Kind = "wallet_io"
	Serialization      Kind = "serialization"
	Derivation         Kind = "derivation"
	Account            Kind = "account"
	Encryption         Kind = "encryption"
	Resolver           Kind = "resolver"
	InvariantViolation Kind = "invariant_violation"
)

// Error wraps an underlying cause with a Kind and, where known, the
// wallet id the operation was acting on.
type Error struct {
	Kind     Kind
	WalletID string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.WalletID != "" {
		return fmt.Sprintf("%s: %s [wallet=%x]: %v", e.Op, e.Kind, e.WalletID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error, wrapping err with pkg/errors so a caller
// further up the stack can still recover a trace via errors.Cause.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.Wrap(err, op)}
}

// WithWallet attaches a wallet id to an existing tagged error.
func (e *Error) WithWallet(id []byte) *Error {
	e.WalletID = fmt.Sprintf("%x", id)
	return e
}

// Is reports whether err, or any error it wraps, is an *Error tagged
// with kind k; call it as errs.Encryption.Is(err).
func (k Kind) Is(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Sentinels for the specific failure cases spec.md names explicitly.
var (
	ErrKeyUnavailable      = errors.New("key unavailable")
	ErrWrongPassphrase     = errors.New("wrong passphrase")
	ErrPassphraseCancelled = errors.New("passphrase entry cancelled")
	ErrCorruptCiphertext   = errors.New("corrupt ciphertext")
	ErrAlreadyLocked       = errors.New("lock already held by this thread")
	ErrAccountIDCollision  = errors.New("account id collides with a reserved sentinel")
	ErrLookupOverflow      = errors.New("lookahead extension could not reach requested index")
	ErrUnsupportedScript   = errors.New("unsupported script type for this account")
	ErrUnknownAddress      = errors.New("address not recognised by this wallet")
	ErrNoAssetForPubkey    = errors.New("no asset carries this public key")
	ErrPrivateKeyMissing   = errors.New("asset has no private key material")
	ErrHardenedFromPublic  = errors.New("cannot derive a hardened child from a public-only node")
	ErrSaltAlreadyPresent  = errors.New("ECDH salt already registered")
	ErrInvalidChildIndex   = errors.New("derivation produced an invalid child key")
	ErrSaltNotRegistered   = errors.New("no salt registered at this ECDH index")
	ErrInvalidPublicKey    = errors.New("not a valid secp256k1 public key")
	ErrMetaAccountMissing  = errors.New("no metadata account registered for this kind")
	ErrInvariantViolation  = errors.New("internal invariant violation")
)
