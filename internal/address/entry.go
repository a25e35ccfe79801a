// Package address implements the AddressEntry algebra from spec.md
// section 4.C12: P2PKH, P2PK, P2WPKH, Multisig, and the two nested
// variants (P2SH-wrapped and P2WSH-wrapped). Each variant computes its
// prefixed hash (the resolver's lookup key) and its preimage (what a
// signer needs to produce a spend). Grounded on the teacher's
// wallet/address.go (the Address type implementing a btcutil.Address-like
// interface) and on cryptoadapter for hashing and Base58/Bech32 encoding.
package address

import (
	"github.com/coredge/hdvault/internal/asset"
	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/errs"
)

// ScriptType tags which AddressEntry variant an asset/account uses.
type ScriptType byte

const (
	P2PKH ScriptType = iota
	P2PKCompressed
	P2PKUncompressed
	P2WPKH
	MultisigP2SH
	NestedP2SH_P2WPKH
	NestedP2WSH
)

// Network carries the version/HRP bytes an address is rendered under.
type Network struct {
	P2PKHVersion byte
	P2SHVersion  byte
	Bech32HRP    string
}

// Mainnet is Bitcoin mainnet's network parameters.
var Mainnet = Network{P2PKHVersion: 0x00, P2SHVersion: 0x05, Bech32HRP: "bc"}

// Entry is a concrete, already-computed address: its prefixed hash (what
// the resolver indexes), its preimage (what the signer needs), and,
// for nested variants, its predecessor chain.
type Entry struct {
	Type          ScriptType
	PrefixedHash  []byte
	Preimage      []byte // pubkey for P2PK/P2PKH/P2WPKH (uncompressed only for P2PKUncompressed); redeem/witness script otherwise
	Predecessor   *Entry // non-nil for nested variants
}

// ForAsset builds the AddressEntry for a single-key asset under the
// given script type and network.
func ForAsset(as *asset.Asset, t ScriptType, net Network) (*Entry, error) {
	compressed, err := as.PubCompressed()
	if err != nil {
		return nil, errs.New(errs.Account, "address.ForAsset", err)
	}
	switch t {
	case P2PKH:
		hash := cryptoadapter.Hash160(compressed)
		return &Entry{Type: t, PrefixedHash: prefixed(net.P2PKHVersion, hash), Preimage: compressed}, nil
	case P2PKCompressed:
		hash := cryptoadapter.Hash160(compressed)
		return &Entry{Type: t, PrefixedHash: prefixed(net.P2PKHVersion, hash), Preimage: compressed}, nil
	case P2PKUncompressed:
		hash := cryptoadapter.Hash160(as.PubUncompressed)
		return &Entry{Type: t, PrefixedHash: prefixed(net.P2PKHVersion, hash), Preimage: as.PubUncompressed}, nil
	case P2WPKH:
		hash := cryptoadapter.Hash160(compressed)
		return &Entry{Type: t, PrefixedHash: prefixedWitness(0, hash), Preimage: compressed}, nil
	case NestedP2SH_P2WPKH:
		inner, err := ForAsset(as, P2WPKH, net)
		if err != nil {
			return nil, err
		}
		witnessProgram := append([]byte{0x00, 0x14}, cryptoadapter.Hash160(compressed)...)
		redeemHash := cryptoadapter.Hash160(witnessProgram)
		return &Entry{Type: t, PrefixedHash: prefixed(net.P2SHVersion, redeemHash), Preimage: witnessProgram, Predecessor: inner}, nil
	default:
		return nil, errs.New(errs.Account, "address.ForAsset", errs.ErrUnsupportedScript)
	}
}

// ForMultisig builds the Multisig(assetGroup, m, n) variant: a bare
// m-of-n redeem script over the supplied assets' compressed pubkeys,
// optionally P2WSH-wrapped.
func ForMultisig(assets []*asset.Asset, m int, wrapWitness bool, net Network) (*Entry, error) {
	redeem, err := multisigRedeemScript(assets, m)
	if err != nil {
		return nil, err
	}
	if wrapWitness {
		hash := cryptoadapter.SHA256(redeem)
		inner := &Entry{Type: NestedP2WSH, PrefixedHash: prefixedWitness(0, hash), Preimage: redeem}
		witnessProgram := append([]byte{0x00, 0x20}, hash...)
		redeemHash := cryptoadapter.Hash160(witnessProgram)
		return &Entry{Type: NestedP2WSH, PrefixedHash: prefixed(net.P2SHVersion, redeemHash), Preimage: witnessProgram, Predecessor: inner}, nil
	}
	hash := cryptoadapter.Hash160(redeem)
	return &Entry{Type: MultisigP2SH, PrefixedHash: prefixed(net.P2SHVersion, hash), Preimage: redeem}, nil
}

func multisigRedeemScript(assets []*asset.Asset, m int) ([]byte, error) {
	if m <= 0 || m > len(assets) || len(assets) > 15 {
		return nil, errs.New(errs.Account, "multisigRedeemScript", errs.ErrUnsupportedScript)
	}
	script := []byte{0x50 + byte(m)} // OP_m
	for _, as := range assets {
		compressed, err := as.PubCompressed()
		if err != nil {
			return nil, err
		}
		script = append(script, byte(len(compressed)))
		script = append(script, compressed...)
	}
	script = append(script, 0x50+byte(len(assets))) // OP_n
	script = append(script, 0xae)                    // OP_CHECKMULTISIG
	return script, nil
}

func prefixed(version byte, hash []byte) []byte {
	return append([]byte{version}, hash...)
}

// prefixedWitness prepends 0x80|witnessVersion as the prefix byte, the
// bech32-side analogue of a base58 version byte, so the resolver's hash
// map can treat every script type uniformly (spec.md section 4.C10,
// "Hash-map semantics").
func prefixedWitness(witnessVersion byte, program []byte) []byte {
	return append([]byte{0x80 | witnessVersion}, program...)
}

// EncodeBase58Check renders a base58-family PrefixedHash as a standard
// address string.
func (e *Entry) EncodeBase58Check() (string, error) {
	if len(e.PrefixedHash) == 0 {
		return "", errs.New(errs.Account, "Entry.EncodeBase58Check", errs.ErrUnsupportedScript)
	}
	return cryptoadapter.Base58EncodeCheck(e.PrefixedHash[0], e.PrefixedHash[1:]), nil
}

// EncodeBech32 renders a witness-prefixed PrefixedHash as a bech32 string.
func (e *Entry) EncodeBech32(hrp string) (string, error) {
	if len(e.PrefixedHash) == 0 || e.PrefixedHash[0]&0x80 == 0 {
		return "", errs.New(errs.Account, "Entry.EncodeBech32", errs.ErrUnsupportedScript)
	}
	witnessVersion := e.PrefixedHash[0] &^ 0x80
	return cryptoadapter.Bech32Encode(hrp, witnessVersion, e.PrefixedHash[1:])
}
