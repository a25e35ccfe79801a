// Package asset implements the Asset entity from spec.md section 4.C9:
// the unit an AssetAccount indexes, carrying a public key, an optional
// encrypted private key, and — for BIP-32 roots — the chaincode/depth
// bookkeeping needed to keep deriving past it. Grounded on the teacher's
// wallet/wallet.go (BitcoinWallet's pubkey/privkey pairing) and on
// cipher.PrivateKeyContainer (C5) for the encrypted-key half.
package asset

import (
	"encoding/binary"

	"github.com/coredge/hdvault/internal/cipher"
	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/errs"
)

const currentVersion uint32 = 1

// RootMeta carries the BIP-32-root-only fields: chaincode, depth,
// leaf/fingerprint bookkeeping needed to keep a scheme extending past
// this asset.
type RootMeta struct {
	ChainCode         []byte
	Depth             uint8
	LeafID            uint32
	ParentFingerprint uint32
}

// Asset is one entry in an AssetAccount: an index, a stable full id, a
// public key, and optionally private-key material and BIP-32 root
// bookkeeping.
type Asset struct {
	Index          uint32
	ID             []byte // fullId: stable identity independent of index reshuffles
	PubUncompressed []byte
	PrivateKey     *cipher.PrivateKeyContainer // nil for a watching-only asset
	Root           *RootMeta                   // non-nil only for a BIP-32 root asset
	NeedsCommit    bool
}

// FullID satisfies decryptdata.PrivateKeyed.
func (a *Asset) FullID() []byte { return a.ID }

// PrivateKeyContainer satisfies decryptdata.PrivateKeyed.
func (a *Asset) PrivateKeyContainer() *cipher.PrivateKeyContainer { return a.PrivateKey }

// PubCompressed computes the compressed public key on demand from the
// stored uncompressed form, per spec.md section 4.C9.
func (a *Asset) PubCompressed() ([]byte, error) {
	return cryptoadapter.PointCompress(a.PubUncompressed)
}

// NewWatchingOnly builds a public-only asset.
func NewWatchingOnly(index uint32, id, pubUncompressed []byte) *Asset {
	return &Asset{Index: index, ID: id, PubUncompressed: pubUncompressed, NeedsCommit: true}
}

// NewWithPrivateKey builds an asset carrying private-key material,
// either unencrypted (rare; used only for the default-key path) or
// wrapped in a CipherData.
func NewWithPrivateKey(index uint32, id, pubUncompressed []byte, pk *cipher.PrivateKeyContainer) *Asset {
	return &Asset{Index: index, ID: id, PubUncompressed: pubUncompressed, PrivateKey: pk, NeedsCommit: true}
}

// PublicCopy strips the private-key field and flags the result
// needs-commit, the watching-only projection spec.md section 4.C9 calls
// for.
func (a *Asset) PublicCopy() *Asset {
	var root *RootMeta
	if a.Root != nil {
		cp := *a.Root
		root = &cp
	}
	return &Asset{
		Index:           a.Index,
		ID:              append([]byte{}, a.ID...),
		PubUncompressed: append([]byte{}, a.PubUncompressed...),
		Root:            root,
		NeedsCommit:     true,
	}
}

// Serialize renders {version, index, fullId, pubKeyUncompressed,
// [privKeyContainer], [root]} per spec.md section 4.C9.
func (a *Asset) Serialize() []byte {
	var buf []byte
	var verBuf, idxBuf [4]byte
	binary.LittleEndian.PutUint32(verBuf[:], currentVersion)
	binary.LittleEndian.PutUint32(idxBuf[:], a.Index)
	buf = append(buf, verBuf[:]...)
	buf = append(buf, idxBuf[:]...)
	buf = appendLP(buf, a.ID)
	buf = appendLP(buf, a.PubUncompressed)
	buf = append(buf, a.PrivateKey.Serialize()...)
	if a.Root == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = appendLP(buf, a.Root.ChainCode)
		buf = append(buf, a.Root.Depth)
		var leafBuf, fpBuf [4]byte
		binary.LittleEndian.PutUint32(leafBuf[:], a.Root.LeafID)
		binary.LittleEndian.PutUint32(fpBuf[:], a.Root.ParentFingerprint)
		buf = append(buf, leafBuf[:]...)
		buf = append(buf, fpBuf[:]...)
	}
	return buf
}

// Deserialize parses bytes produced by Serialize.
func Deserialize(data []byte) (*Asset, error) {
	if len(data) < 8 {
		return nil, errs.New(errs.Serialization, "asset.Deserialize", errTruncated)
	}
	off := 4 // skip version; only version 1 exists
	index := binary.LittleEndian.Uint32(data[off:])
	off += 4
	id, n, err := readLP(data[off:])
	if err != nil {
		return nil, err
	}
	off += n
	pub, n, err := readLP(data[off:])
	if err != nil {
		return nil, err
	}
	off += n
	pk, n, err := cipher.DeserializePrivateKeyContainer(data[off:])
	if err != nil {
		return nil, err
	}
	off += n

	a := &Asset{Index: index, ID: id, PubUncompressed: pub, PrivateKey: pk}
	if off >= len(data) {
		return a, nil
	}
	hasRoot := data[off]
	off++
	if hasRoot == 1 {
		chainCode, n, err := readLP(data[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if len(data) < off+9 {
			return nil, errs.New(errs.Serialization, "asset.Deserialize", errTruncated)
		}
		depth := data[off]
		off++
		leafID := binary.LittleEndian.Uint32(data[off:])
		off += 4
		parentFingerprint := binary.LittleEndian.Uint32(data[off:])
		a.Root = &RootMeta{ChainCode: chainCode, Depth: depth, LeafID: leafID, ParentFingerprint: parentFingerprint}
	}
	return a, nil
}

func appendLP(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func readLP(data []byte) (field []byte, consumed int, err error) {
	if len(data) < 4 {
		return nil, 0, errs.New(errs.Serialization, "asset.readLP", errTruncated)
	}
	n := binary.LittleEndian.Uint32(data[:4])
	if len(data) < int(4+n) {
		return nil, 0, errs.New(errs.Serialization, "asset.readLP", errTruncated)
	}
	return append([]byte{}, data[4:4+n]...), int(4 + n), nil
}

type assetErr string

func (e assetErr) Error() string { return string(e) }

const errTruncated = assetErr("truncated asset record")
