package bip32

import (
	"encoding/binary"

	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/errs"
)

// EncodeBase58 renders the node as version(4)||depth(1)||parentFingerprint(4)||
// childNum(4)||chaincode(32)||keyData(33), Base58Check-encoded. keyData is
// 0x00||privKey for a private node, or the compressed pubkey for a public one.
// BIP-32's version field is 4 bytes wide, wider than btcutil's single-byte
// CheckEncode version, so the checksum is computed directly here and the
// result run through the library's raw (non-check) Base58 alphabet encoder.
func (n *Node) EncodeBase58() string {
	var version uint32
	var keyData []byte
	if n.PrivKey != nil {
		version = VersionPrivate
		keyData = append([]byte{0x00}, n.PrivKey...)
	} else {
		version = VersionPublic
		keyData = n.PubKey
	}

	payload := make([]byte, 0, 4+1+4+4+32+33+4)
	var versionBytes, pf, cn [4]byte
	binary.BigEndian.PutUint32(versionBytes[:], version)
	binary.BigEndian.PutUint32(pf[:], n.ParentFingerprint)
	binary.BigEndian.PutUint32(cn[:], n.ChildNum)
	payload = append(payload, versionBytes[:]...)
	payload = append(payload, n.Depth)
	payload = append(payload, pf[:]...)
	payload = append(payload, cn[:]...)
	payload = append(payload, n.ChainCode...)
	payload = append(payload, keyData...)

	checksum := cryptoadapter.DoubleSHA256(payload)[:4]
	return cryptoadapter.Base58Encode(append(payload, checksum...))
}

// DecodeBase58 parses a string produced by EncodeBase58. The version
// prefix (xprv/xpub) determines whether a private key is present.
func DecodeBase58(s string) (*Node, error) {
	full, err := cryptoadapter.Base58DecodeRaw(s)
	if err != nil {
		return nil, errs.New(errs.Serialization, "bip32.DecodeBase58", err)
	}
	if len(full) != 4+1+4+4+32+33+4 {
		return nil, errs.New(errs.Serialization, "bip32.DecodeBase58", errBadLength)
	}
	payload, checksum := full[:len(full)-4], full[len(full)-4:]
	want := cryptoadapter.DoubleSHA256(payload)[:4]
	if string(checksum) != string(want) {
		return nil, errs.New(errs.Serialization, "bip32.DecodeBase58", errChecksumMismatch)
	}
	data := payload
	version := binary.BigEndian.Uint32(data[:4])
	off := 4
	depth := data[off]
	off++
	parentFingerprint := binary.BigEndian.Uint32(data[off:])
	off += 4
	childNum := binary.BigEndian.Uint32(data[off:])
	off += 4
	chainCode := append([]byte{}, data[off:off+32]...)
	off += 32
	keyData := data[off : off+33]

	n := &Node{
		ChainCode:         chainCode,
		Depth:             depth,
		ParentFingerprint: parentFingerprint,
		ChildNum:          childNum,
	}

	switch version {
	case VersionPrivate:
		if keyData[0] != 0x00 {
			return nil, errs.New(errs.Serialization, "bip32.DecodeBase58", errBadLength)
		}
		n.PrivKey = append([]byte{}, keyData[1:]...)
		pub, err := cryptoadapter.Secp256k1PubkeyFromPriv(n.PrivKey)
		if err != nil {
			return nil, errs.New(errs.Serialization, "bip32.DecodeBase58", err)
		}
		compressed, err := cryptoadapter.PointCompress(pub)
		if err != nil {
			return nil, errs.New(errs.Serialization, "bip32.DecodeBase58", err)
		}
		n.PubKey = compressed
	case VersionPublic:
		n.PubKey = append([]byte{}, keyData...)
	default:
		return nil, errs.New(errs.Serialization, "bip32.DecodeBase58", errBadLength)
	}
	return n, nil
}

// Neuter strips the private key, returning a public-only copy of n —
// the watching-only projection spec.md section 4.C9 calls for.
func (n *Node) Neuter() *Node {
	return &Node{
		ChainCode:         n.ChainCode,
		PubKey:            n.PubKey,
		Depth:             n.Depth,
		ParentFingerprint: n.ParentFingerprint,
		ChildNum:          n.ChildNum,
	}
}

type bip32Err string

func (e bip32Err) Error() string { return string(e) }

const (
	errBadLength        = bip32Err("malformed bip32 serialisation")
	errChecksumMismatch = bip32Err("bip32 base58 checksum mismatch")
)
