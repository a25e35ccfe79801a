// Package bip32 implements the derivation node from spec.md section
// 4.C7: a chaincode plus an optional private key and the mandatory
// public key, carrying enough metadata (depth, parent fingerprint,
// child number) to round-trip through the standard xprv/xpub Base58
// encoding. It is grounded on the teacher's wallet/hd_wallet.go, which
// already builds master keys via hmac-sha512("Bitcoin seed", seed) and
// derives children via chained HMAC-SHA512 — generalised here to carry
// the full BIP-32 node state and to support hardened and soft private
// derivation plus soft public derivation (hardened public derivation is
// rejected).
package bip32

import (
	"encoding/binary"

	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/errs"

	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Version bytes for mainnet xprv/xpub, per BIP-32.
const (
	VersionPrivate uint32 = 0x0488ADE4
	VersionPublic  uint32 = 0x0488B21E

	hardenedOffset uint32 = 1 << 31
	seedHMACKey           = "Bitcoin seed"
)

// Node is a single point in a BIP-32 derivation tree.
type Node struct {
	ChainCode         []byte // 32 bytes
	PrivKey           []byte // 32 bytes, nil if this is a public-only node
	PubKey            []byte // 33 bytes, compressed
	Depth             uint8
	ParentFingerprint uint32
	ChildNum          uint32
}

// InitFromSeed builds the master node: I = hmac-sha512("Bitcoin seed", seed),
// split into the 32-byte private key (I_L) and chaincode (I_R).
func InitFromSeed(seed []byte) (*Node, error) {
	i := cryptoadapter.HMACSHA512([]byte(seedHMACKey), seed)
	il, ir := i[:32], i[32:]

	var sc secp.ModNScalar
	if overflow := sc.SetByteSlice(il); overflow || sc.IsZero() {
		return nil, errs.New(errs.Derivation, "InitFromSeed", errs.ErrInvalidChildIndex)
	}
	pub, err := cryptoadapter.Secp256k1PubkeyFromPriv(il)
	if err != nil {
		return nil, errs.New(errs.Derivation, "InitFromSeed", err)
	}
	compressed, err := cryptoadapter.PointCompress(pub)
	if err != nil {
		return nil, errs.New(errs.Derivation, "InitFromSeed", err)
	}
	return &Node{
		ChainCode: ir,
		PrivKey:   il,
		PubKey:    compressed,
		Depth:     0,
	}, nil
}

// IsHardened reports whether child index i designates a hardened child.
func IsHardened(i uint32) bool { return i >= hardenedOffset }

func ser32(i uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], i)
	return b[:]
}

func fingerprint(compressedPub []byte) uint32 {
	h := cryptoadapter.Hash160(compressedPub)
	return binary.BigEndian.Uint32(h[:4])
}

// DerivePrivate derives child i from this node, which must carry a
// private key. Hardened derivation (i >= 2^31) hashes 0x00||priv||ser32(i);
// soft derivation hashes the compressed pubkey||ser32(i).
func (n *Node) DerivePrivate(i uint32) (*Node, error) {
	if n.PrivKey == nil {
		return nil, errs.New(errs.Derivation, "DerivePrivate", errs.ErrPrivateKeyMissing)
	}
	var data []byte
	if IsHardened(i) {
		data = append([]byte{0x00}, n.PrivKey...)
	} else {
		data = append([]byte{}, n.PubKey...)
	}
	data = append(data, ser32(i)...)

	ihash := cryptoadapter.HMACSHA512(n.ChainCode, data)
	il, ir := ihash[:32], ihash[32:]

	var ilScalar, privScalar secp.ModNScalar
	if overflow := ilScalar.SetByteSlice(il); overflow {
		return nil, errs.New(errs.Derivation, "DerivePrivate", errs.ErrInvalidChildIndex)
	}
	if overflow := privScalar.SetByteSlice(n.PrivKey); overflow {
		return nil, errs.New(errs.Derivation, "DerivePrivate", errs.ErrInvalidChildIndex)
	}
	newPrivScalar := ilScalar
	newPrivScalar.Add(&privScalar)
	if newPrivScalar.IsZero() {
		return nil, errs.New(errs.Derivation, "DerivePrivate", errs.ErrInvalidChildIndex)
	}
	newPrivBytes := newPrivScalar.Bytes()
	newPriv := newPrivBytes[:]

	pub, err := cryptoadapter.Secp256k1PubkeyFromPriv(newPriv)
	if err != nil {
		return nil, errs.New(errs.Derivation, "DerivePrivate", err)
	}
	compressed, err := cryptoadapter.PointCompress(pub)
	if err != nil {
		return nil, errs.New(errs.Derivation, "DerivePrivate", err)
	}

	return &Node{
		ChainCode:         ir,
		PrivKey:           newPriv,
		PubKey:            compressed,
		Depth:             n.Depth + 1,
		ParentFingerprint: fingerprint(n.PubKey),
		ChildNum:          i,
	}, nil
}

// DerivePublic derives child i from this node's public key alone.
// Hardened indices are rejected: a hardened child's pubkey cannot be
// computed without the parent's private key.
func (n *Node) DerivePublic(i uint32) (*Node, error) {
	if IsHardened(i) {
		return nil, errs.New(errs.Derivation, "DerivePublic", errs.ErrHardenedFromPublic)
	}
	data := append(append([]byte{}, n.PubKey...), ser32(i)...)
	ihash := cryptoadapter.HMACSHA512(n.ChainCode, data)
	il, ir := ihash[:32], ihash[32:]

	pubUncompressed, err := cryptoadapter.PointUncompress(n.PubKey)
	if err != nil {
		return nil, errs.New(errs.Derivation, "DerivePublic", err)
	}
	tweakPointUncompressed, err := tweakPointFromScalar(il)
	if err != nil {
		return nil, errs.New(errs.Derivation, "DerivePublic", err)
	}
	newPubUncompressed, err := pointAdd(pubUncompressed, tweakPointUncompressed)
	if err != nil {
		return nil, errs.New(errs.Derivation, "DerivePublic", errs.ErrInvalidChildIndex)
	}
	compressed, err := cryptoadapter.PointCompress(newPubUncompressed)
	if err != nil {
		return nil, errs.New(errs.Derivation, "DerivePublic", err)
	}

	return &Node{
		ChainCode:         ir,
		PubKey:            compressed,
		Depth:             n.Depth + 1,
		ParentFingerprint: fingerprint(n.PubKey),
		ChildNum:          i,
	}, nil
}

// tweakPointFromScalar computes scalar*G in uncompressed form, used to
// add I_L*G to the parent's public point for soft public derivation.
func tweakPointFromScalar(scalar []byte) ([]byte, error) {
	priv, err := cryptoadapter.Secp256k1PubkeyFromPriv(scalar)
	if err != nil {
		return nil, err
	}
	return priv, nil
}

// pointAdd adds two uncompressed secp256k1 points.
func pointAdd(aUncompressed, bUncompressed []byte) ([]byte, error) {
	return cryptoadapter.PointAddUncompressed(aUncompressed, bUncompressed)
}
