package account

import (
	"encoding/binary"
	"sync"

	"github.com/coredge/hdvault/internal/asset"
	"github.com/coredge/hdvault/internal/errs"
)

// AddressRole distinguishes the outer (receive) and inner (change) asset
// accounts an AddressAccount wraps.
type AddressRole int

const (
	Outer AddressRole = iota
	Inner
)

// AddressAccount implements spec.md section 4.C11: getNewAddress/
// getNewChangeAddress delegating to the outer/inner AssetAccount, with a
// per-account default script type and a permitted-type set, plus a
// persisted asset-id -> script-type override map for assets that
// deviate from the default.
type AddressAccount struct {
	mu sync.Mutex

	ID             []byte
	Outer          *AssetAccount
	Inner          *AssetAccount // may equal Outer (Armory-135, ECDH: both = same account)
	DefaultType    byte
	PermittedTypes map[byte]bool

	overrides map[string]byte // string(assetID) -> scriptType
}

// NewAddressAccount wires an AddressAccount over the given outer/inner
// asset accounts.
func NewAddressAccount(id []byte, outer, inner *AssetAccount, defaultType byte, permitted []byte) *AddressAccount {
	set := map[byte]bool{}
	for _, t := range permitted {
		set[t] = true
	}
	set[defaultType] = true
	return &AddressAccount{
		ID:             append([]byte{}, id...),
		Outer:          outer,
		Inner:          inner,
		DefaultType:    defaultType,
		PermittedTypes: set,
		overrides:      map[string]byte{},
	}
}

// GetNewAddress implements getNewAddress(type?) -> getNewAddress(outer, type).
func (aa *AddressAccount) GetNewAddress(scriptType *byte) (*asset.Asset, byte, error) {
	return aa.getNewAddress(Outer, scriptType)
}

// GetNewChangeAddress implements getNewChangeAddress(type?) -> getNewAddress(inner, type).
func (aa *AddressAccount) GetNewChangeAddress(scriptType *byte) (*asset.Asset, byte, error) {
	return aa.getNewAddress(Inner, scriptType)
}

func (aa *AddressAccount) getNewAddress(role AddressRole, scriptType *byte) (*asset.Asset, byte, error) {
	t := aa.DefaultType
	if scriptType != nil {
		t = *scriptType
	}
	aa.mu.Lock()
	permitted := aa.PermittedTypes[t]
	aa.mu.Unlock()
	if !permitted {
		return nil, 0, errs.New(errs.Account, "AddressAccount.getNewAddress", errs.ErrUnsupportedScript)
	}

	account := aa.Outer
	if role == Inner {
		account = aa.Inner
	}
	as, err := account.GetNewAsset()
	if err != nil {
		return nil, 0, err
	}

	aa.mu.Lock()
	defer aa.mu.Unlock()
	if t != aa.DefaultType {
		aa.overrides[string(as.ID)] = t
	} else {
		delete(aa.overrides, string(as.ID))
	}
	return as, t, nil
}

// TypeFor returns the script type a given asset's address should render
// under: its override if present, else the account default.
func (aa *AddressAccount) TypeFor(assetID []byte) byte {
	aa.mu.Lock()
	defer aa.mu.Unlock()
	if t, ok := aa.overrides[string(assetID)]; ok {
		return t
	}
	return aa.DefaultType
}

// OverrideKey renders the (0xC0 || assetId) db key spec.md section 4.C11
// specifies for a persisted type override.
func OverrideKey(assetID []byte) []byte {
	return append([]byte{0xC0}, assetID...)
}

// EncodeOverrideValue/DecodeOverrideValue render the type-u32 payload
// of a persisted type override.
func EncodeOverrideValue(t byte) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(t))
	return b[:]
}

func DecodeOverrideValue(data []byte) (byte, error) {
	if len(data) != 4 {
		return 0, errs.New(errs.Serialization, "DecodeOverrideValue", errTruncatedOverride)
	}
	return byte(binary.LittleEndian.Uint32(data)), nil
}

type accountErr string

func (e accountErr) Error() string { return string(e) }

const errTruncatedOverride = accountErr("truncated script-type override record")
