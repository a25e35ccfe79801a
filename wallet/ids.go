package wallet

import (
	"encoding/binary"

	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/derivation"
	"github.com/coredge/hdvault/internal/errs"
)

// Kind tags which of the six wallet flavours original_source's
// CoreHDWallet.cpp supports a given Wallet implements (spec.md section
// 12, "Multiple wallet kinds under one root").
type Kind byte

const (
	KindArmory135 Kind = iota
	KindBIP32Legacy
	KindBIP32Segwit
	KindBIP32Custom
	KindBIP32Salted
	KindECDH
)

// accountKindTag is XORed into a derived account's root pubkey before
// hashing, per spec.md section 3: "account id (BIP-32 kinds) is
// hash160(derivedRoot with first byte XORed by account-kind-tag)[0..4]".
// Fixed-id kinds (legacy/segwit/ECDH/Armory-135) use the literal
// constants from the account-creation matrix (section 4.C11) instead;
// this tag only matters for the derived-id kinds, custom and salted.
type accountKindTag byte

const (
	tagCustom accountKindTag = 0x02
	tagSalted accountKindTag = 0x03
)

// Reserved account-id sentinels that must never be produced by a
// derived (custom/salted) account id, per spec.md section 3 and the
// AccountIdCollision failure in section 4.C11. ReservedLegacyAccountID
// doubles as the literal id the Armory-135 account-creation row assigns.
const (
	ReservedLegacyAccountID  uint32 = 0xFFFFFFFE
	ReservedImportsAccountID uint32 = 0xFFFFFFFF
)

// Fixed account ids from the account-creation matrix, spec.md section 4.C11.
const (
	legacyOuterAccountID  uint32 = 0
	legacyInnerAccountID  uint32 = 1
	segwitOuterAccountID  uint32 = 0x10000000
	segwitInnerAccountID  uint32 = 0x10000001
	ecdhAccountID         uint32 = 0x20000000
)

// deriveAccountID implements the derived-id path for custom/salted
// accounts: hash160(rootPub with byte[0] XORed by tag), truncated to
// the leading 4 bytes, read big-endian. Fails AccountIdCollision if the
// result matches either reserved sentinel (the caller must re-derive
// under a different root or a different node index).
func deriveAccountID(rootPubCompressed []byte, tag accountKindTag) (uint32, error) {
	if len(rootPubCompressed) == 0 {
		return 0, errs.New(errs.Account, "deriveAccountID", errs.ErrAccountIDCollision)
	}
	tweaked := append([]byte{}, rootPubCompressed...)
	tweaked[0] ^= byte(tag)
	hash := cryptoadapter.Hash160(tweaked)
	id := binary.BigEndian.Uint32(hash[:4])
	if id == ReservedLegacyAccountID || id == ReservedImportsAccountID {
		return 0, errs.New(errs.Account, "deriveAccountID", errs.ErrAccountIDCollision)
	}
	return id, nil
}

// accountIDBytes renders a u32 account id as its big-endian wire form.
func accountIDBytes(id uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	return b[:]
}

// walletIDLen is the truncated hash160 width spec.md section 4.C14
// specifies for both wallet-id derivation variants.
const walletIDLen = 6

// deriveWalletIDArmory135 implements "walk the public chain one step,
// compute hash160 of the uncompressed public key of the first derived
// asset, truncate to 6 bytes, Base58-encode" (spec.md section 4.C14).
func deriveWalletIDArmory135(scheme *derivation.Armory135Scheme, rootPubCompressed []byte) (raw []byte, encoded string, err error) {
	kps, err := scheme.ExtendPublicChain(rootPubCompressed, 0, 0)
	if err != nil {
		return nil, "", errs.New(errs.Derivation, "deriveWalletIDArmory135", err)
	}
	firstUncompressed, err := cryptoadapter.PointUncompress(kps[0].PubKey)
	if err != nil {
		return nil, "", errs.New(errs.Derivation, "deriveWalletIDArmory135", err)
	}
	full := cryptoadapter.Hash160(firstUncompressed)
	raw = full[:walletIDLen]
	return raw, cryptoadapter.Base58Encode(raw), nil
}

// deriveWalletIDBIP32 implements "same scheme applied to the derived
// root's public key after scheme-tag XOR": hash160(rootPub with byte[0]
// XORed by the scheme's serialisation tag), truncated, Base58-encoded.
func deriveWalletIDBIP32(rootPubCompressed []byte, schemeTag byte) (raw []byte, encoded string) {
	tweaked := append([]byte{}, rootPubCompressed...)
	tweaked[0] ^= schemeTag
	full := cryptoadapter.Hash160(tweaked)
	raw = full[:walletIDLen]
	return raw, cryptoadapter.Base58Encode(raw)
}

// fullAccountID concatenates a wallet's raw id with a 4-byte account id,
// the prefix every asset under that account shares (spec.md section 3:
// "asset id is the concatenation wallet-id || account-id || asset-index-be").
func fullAccountID(walletIDRaw []byte, accountID uint32) []byte {
	return append(append([]byte{}, walletIDRaw...), accountIDBytes(accountID)...)
}
