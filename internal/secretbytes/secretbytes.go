// Package secretbytes implements the zero-on-drop, constant-time byte
// buffer the rest of the wallet core builds private material on top of
// (spec.md section 4.C1). It is grounded on the teacher's hand-rolled
// key handling in wallet/storage.go (SaveToFile/LoadFromFile), which
// copies master-key bytes into fixed buffers and never needed to zero
// them explicitly; here we make the zeroing unconditional since a
// wallet's trust root outlives a single file round-trip.
package secretbytes

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// SecretBytes owns a private byte buffer. The zero value is an empty,
// already-safe SecretBytes.
type SecretBytes struct {
	b []byte
}

// New copies src into a new SecretBytes. The caller retains ownership of
// src and is responsible for its own zeroing.
func New(src []byte) *SecretBytes {
	s := &SecretBytes{b: make([]byte, len(src))}
	copy(s.b, src)
	return s
}

// Random returns n cryptographically random bytes wrapped as a SecretBytes.
func Random(n int) (*SecretBytes, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("secretbytes: rng failed: %w", err)
	}
	return &SecretBytes{b: b}, nil
}

// Bytes returns a reference to the underlying buffer. Callers must not
// retain it beyond the scope that produced this SecretBytes (spec.md
// section 5, "Secret bytes are owned exclusively by the container that
// produced them").
func (s *SecretBytes) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Len reports the buffer length.
func (s *SecretBytes) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Concat returns a new SecretBytes holding s followed by other.
func (s *SecretBytes) Concat(other *SecretBytes) *SecretBytes {
	out := make([]byte, s.Len()+other.Len())
	copy(out, s.Bytes())
	copy(out[s.Len():], other.Bytes())
	return &SecretBytes{b: out}
}

// Slice returns a copy of s.b[from:to] as a new SecretBytes.
func (s *SecretBytes) Slice(from, to int) *SecretBytes {
	out := make([]byte, to-from)
	copy(out, s.b[from:to])
	return &SecretBytes{b: out}
}

// XorInPlace xors other into s, truncating to the shorter length.
func (s *SecretBytes) XorInPlace(other *SecretBytes) {
	n := len(s.b)
	if len(other.b) < n {
		n = len(other.b)
	}
	for i := 0; i < n; i++ {
		s.b[i] ^= other.b[i]
	}
}

// Equal compares two SecretBytes in constant time.
func (s *SecretBytes) Equal(other *SecretBytes) bool {
	if s.Len() != other.Len() {
		return false
	}
	return subtle.ConstantTimeCompare(s.b, other.b) == 1
}

// ToHex renders the buffer as a hex string. This is the only sanctioned
// way to surface secret bytes textually (e.g. logging a key id derived
// from, but not equal to, the secret).
func (s *SecretBytes) ToHex() string {
	return hex.EncodeToString(s.b)
}

// Zero wipes the backing array. Safe to call more than once.
func (s *SecretBytes) Zero() {
	if s == nil {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
}

// String implements fmt.Stringer without ever printing secret material,
// satisfying spec.md's "never leaks through a general-purpose printer".
func (s *SecretBytes) String() string {
	return fmt.Sprintf("SecretBytes(%d bytes, redacted)", s.Len())
}

// GoString keeps %#v from leaking the buffer too.
func (s *SecretBytes) GoString() string {
	return s.String()
}
