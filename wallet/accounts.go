package wallet

import (
	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/address"
	"github.com/coredge/hdvault/internal/bip32"
	"github.com/coredge/hdvault/internal/derivation"
	"github.com/coredge/hdvault/internal/errs"
)

const hardenedOffset = uint32(1) << 31

// deriveAccountNode produces the per-account root node a legacy/segwit/
// custom/salted account's AssetAccount chains from: a hardened BIP-32
// child of the wallet's master node at the given account index. Only
// possible when master carries a private key.
func deriveAccountNode(master *bip32.Node, accountID uint32) (*bip32.Node, error) {
	if master.PrivKey == nil {
		return nil, errs.New(errs.Derivation, "deriveAccountNode", errs.ErrHardenedFromPublic)
	}
	return master.DerivePrivate(accountID | hardenedOffset)
}

// buildAssetAccount wires one account.AssetAccount from a root node and
// scheme, tagging it with the wallet's master-key/KDF ids so every
// derived private key encrypts under the same wrapping the wallet
// installed.
func buildAssetAccount(masterKeyID, kdfID, walletIDRaw []byte, accountID uint32, scheme derivation.Scheme, node *bip32.Node, lookAhead int) *account.AssetAccount {
	fullID := fullAccountID(walletIDRaw, accountID)
	return account.New(fullID, scheme, node.PubKey, node.PrivKey, masterKeyID, kdfID, lookAhead)
}

// singleAddressAccount builds an AddressAccount whose outer and inner
// both point at the same AssetAccount — the shape Armory-135 and ECDH
// accounts take in the account-creation matrix (spec.md section 4.C11).
func singleAddressAccount(masterKeyID, kdfID, walletIDRaw []byte, accountID uint32, scheme derivation.Scheme, node *bip32.Node, lookAhead int, defaultType byte, permitted []byte) *account.AddressAccount {
	aacct := buildAssetAccount(masterKeyID, kdfID, walletIDRaw, accountID, scheme, node, lookAhead)
	return account.NewAddressAccount(accountIDBytes(accountID), aacct, aacct, defaultType, permitted)
}

// pairAddressAccount builds an AddressAccount with distinct outer/inner
// AssetAccounts, the shape BIP-32 legacy and segwit accounts take.
func pairAddressAccount(masterKeyID, kdfID, walletIDRaw []byte, addrAccountID, outerID, innerID uint32, scheme derivation.Scheme, outerNode, innerNode *bip32.Node, defaultType byte, permitted []byte) *account.AddressAccount {
	outer := buildAssetAccount(masterKeyID, kdfID, walletIDRaw, outerID, scheme, outerNode, account.DefaultLookAhead)
	inner := buildAssetAccount(masterKeyID, kdfID, walletIDRaw, innerID, scheme, innerNode, account.DefaultLookAhead)
	return account.NewAddressAccount(accountIDBytes(addrAccountID), outer, inner, defaultType, permitted)
}

// makeAccounts implements the account-creation matrix from spec.md
// section 4.C11: which accounts a wallet of a given Kind gets, their
// fixed or derived ids, and the outer/inner assignment each uses.
func makeAccounts(kind Kind, master *bip32.Node, armoryScheme *derivation.Armory135Scheme, walletIDRaw []byte, masterKeyID, kdfID []byte, opts CreateOptions) (map[uint32]*account.AddressAccount, uint32, error) {
	out := map[uint32]*account.AddressAccount{}

	switch kind {
	case KindArmory135:
		permitted := []byte{byte(address.P2PKH), byte(address.P2PKCompressed), byte(address.P2PKUncompressed)}
		aa := singleAddressAccount(masterKeyID, kdfID, walletIDRaw, ReservedLegacyAccountID, armoryScheme, master, account.DefaultLookAhead, byte(address.P2PKH), permitted)
		out[ReservedLegacyAccountID] = aa
		return out, ReservedLegacyAccountID, nil

	case KindBIP32Legacy:
		outerNode, err := deriveAccountNode(master, legacyOuterAccountID)
		if err != nil {
			return nil, 0, err
		}
		innerNode, err := deriveAccountNode(master, legacyInnerAccountID)
		if err != nil {
			return nil, 0, err
		}
		scheme := derivation.NewBIP32Scheme(outerNode.ChainCode)
		permitted := []byte{byte(address.P2PKH), byte(address.P2PKCompressed)}
		aa := pairAddressAccount(masterKeyID, kdfID, walletIDRaw, legacyOuterAccountID, legacyOuterAccountID, legacyInnerAccountID, scheme, outerNode, innerNode, byte(address.P2PKH), permitted)
		out[legacyOuterAccountID] = aa
		return out, legacyOuterAccountID, nil

	case KindBIP32Segwit:
		outerNode, err := deriveAccountNode(master, segwitOuterAccountID&^hardenedOffset)
		if err != nil {
			return nil, 0, err
		}
		innerNode, err := deriveAccountNode(master, segwitInnerAccountID&^hardenedOffset)
		if err != nil {
			return nil, 0, err
		}
		scheme := derivation.NewBIP32Scheme(outerNode.ChainCode)
		permitted := []byte{byte(address.P2WPKH), byte(address.NestedP2SH_P2WPKH)}
		aa := pairAddressAccount(masterKeyID, kdfID, walletIDRaw, segwitOuterAccountID, segwitOuterAccountID, segwitInnerAccountID, scheme, outerNode, innerNode, byte(address.P2WPKH), permitted)
		out[segwitOuterAccountID] = aa
		return out, segwitOuterAccountID, nil

	case KindECDH:
		scheme, err := derivation.NewECDHScheme()
		if err != nil {
			return nil, 0, err
		}
		permitted := []byte{byte(address.P2PKCompressed)}
		aa := singleAddressAccount(masterKeyID, kdfID, walletIDRaw, ecdhAccountID, scheme, master, 1, byte(address.P2PKCompressed), permitted)
		out[ecdhAccountID] = aa
		return out, ecdhAccountID, nil

	case KindBIP32Custom, KindBIP32Salted:
		permitted := []byte{byte(address.P2PKH), byte(address.P2PKCompressed), byte(address.P2WPKH)}
		indices := opts.CustomNodeIndices
		if len(indices) == 0 {
			aa := singleAddressAccount(masterKeyID, kdfID, walletIDRaw, ReservedImportsAccountID, customScheme(kind, master.ChainCode, opts.Salt), master, account.DefaultLookAhead, byte(address.P2PKH), permitted)
			out[ReservedImportsAccountID] = aa
			return out, ReservedImportsAccountID, nil
		}
		var mainID uint32
		for i, nodeIndex := range indices {
			node, err := deriveAccountNode(master, nodeIndex)
			if err != nil {
				return nil, 0, err
			}
			scheme := customScheme(kind, node.ChainCode, opts.Salt)
			id, err := deriveAccountID(node.PubKey, tagFor(kind))
			if err != nil {
				return nil, 0, err
			}
			aa := singleAddressAccount(masterKeyID, kdfID, walletIDRaw, id, scheme, node, account.DefaultLookAhead, byte(address.P2PKH), permitted)
			out[id] = aa
			if i == 0 {
				mainID = id
			}
		}
		return out, mainID, nil
	}

	return nil, 0, errs.New(errs.Account, "makeAccounts", errUnknownKind)
}

func customScheme(kind Kind, chainCode, salt []byte) derivation.Scheme {
	if kind == KindBIP32Salted {
		return derivation.NewBIP32SaltedScheme(chainCode, salt)
	}
	return derivation.NewBIP32Scheme(chainCode)
}

func tagFor(kind Kind) accountKindTag {
	if kind == KindBIP32Salted {
		return tagSalted
	}
	return tagCustom
}

type accountErr string

func (e accountErr) Error() string { return string(e) }

const errUnknownKind = accountErr("unrecognised wallet kind")
