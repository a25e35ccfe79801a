// Package cryptoadapter is the thin interface over hashing, HMAC,
// AES-CBC, secp256k1 and the Base58/Bech32 wire codecs that spec.md
// section 4.C2 describes as the crypto boundary the rest of the core
// consumes. It is grounded on the teacher's wallet/hd_wallet.go and
// wallet/btc_hd_wallet.go (hash160, HMAC-SHA512 child derivation,
// secp256k1 signing) and on wallet/base58.go for the Base58 codec;
// Bech32 and the curve's ModNScalar tweak arithmetic are adopted from
// the wider corpus (see SPEC_FULL.md's domain-stack table) since the
// teacher never needed segwit addresses or salted derivation.
package cryptoadapter

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/ripemd160"

	"github.com/coredge/hdvault/internal/errs"
)

// Kind tags the specific failure within errs.Crypto.
type Kind int

const (
	InvalidPoint Kind = iota
	InvalidSignature
	RngFailed
	BadLength
)

// CryptoError is the concrete cause wrapped by errs.Error{Kind: errs.Crypto}.
type CryptoError struct {
	Kind Kind
	Msg  string
}

func (e *CryptoError) Error() string { return e.Msg }

func fail(op string, kind Kind, msg string) error {
	return errs.New(errs.Crypto, op, &CryptoError{Kind: kind, Msg: msg})
}

// SHA256 returns the single SHA-256 digest of data.
func SHA256(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// DoubleSHA256 returns sha256(sha256(data)), Bitcoin's checksum hash.
func DoubleSHA256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// Hash160 is ripemd160(sha256(data)).
func Hash160(data []byte) []byte {
	first := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(first[:])
	return r.Sum(nil)
}

// HMACSHA256 computes HMAC-SHA256(key, data).
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// HMACSHA512 computes HMAC-SHA512(key, data).
func HMACSHA512(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// AESCBCEncrypt encrypts data under key with the given IV, applying
// PKCS#7 padding. len(iv) must equal aes.BlockSize.
func AESCBCEncrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fail("aes_cbc_encrypt", BadLength, err.Error())
	}
	if len(iv) != aes.BlockSize {
		return nil, fail("aes_cbc_encrypt", BadLength, "iv must be 16 bytes")
	}
	padded := pkcs7Pad(data, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// AESCBCDecrypt is the inverse of AESCBCEncrypt, stripping PKCS#7 padding.
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fail("aes_cbc_decrypt", BadLength, err.Error())
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fail("aes_cbc_decrypt", BadLength, "ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fail("pkcs7_unpad", BadLength, "empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fail("pkcs7_unpad", BadLength, "invalid padding")
	}
	return data[:len(data)-padLen], nil
}

// Secp256k1PubkeyFromPriv returns the uncompressed public key for priv.
func Secp256k1PubkeyFromPriv(priv []byte) (pubUncompressed []byte, err error) {
	var sc secp.ModNScalar
	if overflow := sc.SetByteSlice(priv); overflow || sc.IsZero() {
		return nil, fail("pubkey_from_priv", InvalidPoint, "zero or out-of-range private key")
	}
	pk := secp.PrivKeyFromBytes(priv)
	return pk.PubKey().SerializeUncompressed(), nil
}

// Secp256k1SignDeterministic signs hash with priv using RFC 6979
// deterministic nonce generation and returns a low-S normalised DER
// signature.
func Secp256k1SignDeterministic(priv, hash []byte) ([]byte, error) {
	var sc secp.ModNScalar
	if overflow := sc.SetByteSlice(priv); overflow || sc.IsZero() {
		return nil, fail("sign", InvalidPoint, "zero or out-of-range private key")
	}
	pk := secp.PrivKeyFromBytes(priv)
	btcPriv, _ := btcec.PrivKeyFromBytes(pk.Serialize())
	sig := ecdsa.Sign(btcPriv, hash) // btcec's ecdsa.Sign already enforces low-S
	return sig.Serialize(), nil
}

// Secp256k1Verify checks a DER signature against an uncompressed or
// compressed pubkey.
func Secp256k1Verify(pubkey, hash, sigDER []byte) (bool, error) {
	pk, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return false, fail("verify", InvalidPoint, err.Error())
	}
	sig, err := ecdsa.ParseDERSignature(sigDER)
	if err != nil {
		return false, fail("verify", InvalidSignature, err.Error())
	}
	return sig.Verify(hash, pk), nil
}

// PointCompress converts an uncompressed (65-byte) public key to its
// compressed (33-byte) form.
func PointCompress(uncompressed []byte) ([]byte, error) {
	pk, err := btcec.ParsePubKey(uncompressed)
	if err != nil {
		return nil, fail("point_compress", InvalidPoint, err.Error())
	}
	return pk.SerializeCompressed(), nil
}

// PointUncompress expands a 33-byte compressed key to its 65-byte form.
func PointUncompress(compressed []byte) ([]byte, error) {
	pk, err := btcec.ParsePubKey(compressed)
	if err != nil {
		return nil, fail("point_uncompress", InvalidPoint, err.Error())
	}
	return pk.SerializeUncompressed(), nil
}

// ScalarTweakMulPriv computes (priv * tweak) mod N, returning a new
// 32-byte scalar. Used by the BIP-32-salted and ECDH derivation schemes.
func ScalarTweakMulPriv(priv, tweak []byte) ([]byte, error) {
	var ps, ts secp.ModNScalar
	if overflow := ps.SetByteSlice(priv); overflow {
		return nil, fail("scalar_tweak_mul_priv", InvalidPoint, "priv overflows group order")
	}
	if overflow := ts.SetByteSlice(tweak); overflow {
		return nil, fail("scalar_tweak_mul_priv", InvalidPoint, "tweak overflows group order")
	}
	ps.Mul(&ts)
	if ps.IsZero() {
		return nil, fail("scalar_tweak_mul_priv", InvalidPoint, "resulting scalar is zero")
	}
	out := ps.Bytes()
	return out[:], nil
}

// ScalarTweakMulPoint computes tweak*P for a public point P, returning
// the uncompressed result. Used for ECDH-per-key public derivation.
func ScalarTweakMulPoint(pubUncompressed, tweak []byte) ([]byte, error) {
	pk, err := btcec.ParsePubKey(pubUncompressed)
	if err != nil {
		return nil, fail("scalar_tweak_mul_point", InvalidPoint, err.Error())
	}
	var ts secp.ModNScalar
	if overflow := ts.SetByteSlice(tweak); overflow {
		return nil, fail("scalar_tweak_mul_point", InvalidPoint, "tweak overflows group order")
	}
	var result, px secp.JacobianPoint
	px.X.SetByteSlice(pk.X().Bytes()[:])
	px.Y.SetByteSlice(pk.Y().Bytes()[:])
	px.Z.SetInt(1)
	secp.ScalarMultNonConst(&ts, &px, &result)
	result.ToAffine()
	if result.X.IsZero() && result.Y.IsZero() {
		return nil, fail("scalar_tweak_mul_point", InvalidPoint, "result is point at infinity")
	}
	fx := result.X.Bytes()
	fy := result.Y.Bytes()
	out := make([]byte, 65)
	out[0] = 0x04
	copy(out[1:33], fx[:])
	copy(out[33:65], fy[:])
	return out, nil
}

// PointAddUncompressed adds two uncompressed secp256k1 points, returning
// the uncompressed sum. Used by BIP-32 soft public derivation
// (parent pubkey + I_L*G) and by Armory-135's chained public derivation.
func PointAddUncompressed(aUncompressed, bUncompressed []byte) ([]byte, error) {
	pa, err := btcec.ParsePubKey(aUncompressed)
	if err != nil {
		return nil, fail("point_add", InvalidPoint, err.Error())
	}
	pb, err := btcec.ParsePubKey(bUncompressed)
	if err != nil {
		return nil, fail("point_add", InvalidPoint, err.Error())
	}
	var ja, jb, sum secp.JacobianPoint
	ax, ay := secp.FieldVal{}, secp.FieldVal{}
	ax.SetByteSlice(pa.X().Bytes()[:])
	ay.SetByteSlice(pa.Y().Bytes()[:])
	ja.X, ja.Y, ja.Z = ax, ay, secp.FieldVal{}
	ja.Z.SetInt(1)

	bx, by := secp.FieldVal{}, secp.FieldVal{}
	bx.SetByteSlice(pb.X().Bytes()[:])
	by.SetByteSlice(pb.Y().Bytes()[:])
	jb.X, jb.Y, jb.Z = bx, by, secp.FieldVal{}
	jb.Z.SetInt(1)

	secp.AddNonConst(&ja, &jb, &sum)
	sum.ToAffine()
	if sum.X.IsZero() && sum.Y.IsZero() {
		return nil, fail("point_add", InvalidPoint, "result is point at infinity")
	}
	fx := sum.X.Bytes()
	fy := sum.Y.Bytes()
	out := make([]byte, 65)
	out[0] = 0x04
	copy(out[1:33], fx[:])
	copy(out[33:65], fy[:])
	return out, nil
}

// LowSNormalize ensures a raw (r,s) scalar signature uses the low-S form
// required by BIP-62/standardness rules. btcec's ecdsa.Sign already does
// this; exposed for callers that construct signatures out of band.
func LowSNormalize(s []byte) []byte {
	var sc secp.ModNScalar
	sc.SetByteSlice(s)
	if sc.IsOverHalfOrder() {
		sc.Negate()
	}
	out := sc.Bytes()
	return out[:]
}

// Base58Encode is plain (non-checksummed) Base58 of the input.
func Base58Encode(input []byte) string {
	return base58.Encode(input)
}

// Base58DecodeRaw decodes a plain (non-checksummed) Base58 string — used
// by callers like bip32 that carry their own wider version field and
// verify the checksum themselves.
func Base58DecodeRaw(s string) ([]byte, error) {
	decoded := base58.Decode(s)
	if len(decoded) == 0 && s != "" {
		return nil, fail("base58_decode_raw", BadLength, "invalid base58 string")
	}
	return decoded, nil
}

// Base58DecodeCheck decodes a Base58Check string, verifying the 4-byte
// double-SHA256 checksum, and returns the leading version byte together
// with the remaining payload reassembled as the core's wire format
// expects (version byte first).
func Base58DecodeCheck(s string) ([]byte, error) {
	payload, version, err := base58.CheckDecode(s)
	if err != nil {
		return nil, fail("base58_decode_check", BadLength, err.Error())
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, version)
	return append(out, payload...), nil
}

// Base58EncodeCheck encodes payload with a version byte and trailing
// double-SHA256 checksum.
func Base58EncodeCheck(version byte, payload []byte) string {
	return base58.CheckEncode(payload, version)
}

// Bech32Encode converts the 8-bit witness program to 5-bit groups and
// encodes it under the given human-readable prefix and witness version.
func Bech32Encode(hrp string, witnessVersion byte, program []byte) (string, error) {
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", fail("bech32_encode", BadLength, err.Error())
	}
	data := append([]byte{witnessVersion}, converted...)
	encoded, err := bech32.Encode(hrp, data)
	if err != nil {
		return "", fail("bech32_encode", BadLength, err.Error())
	}
	return encoded, nil
}

// Bech32Decode is the inverse of Bech32Encode, returning the witness
// version and the raw (8-bit) witness program.
func Bech32Decode(encoded string) (hrp string, witnessVersion byte, program []byte, err error) {
	hrp, data, decErr := bech32.Decode(encoded)
	if decErr != nil {
		return "", 0, nil, fail("bech32_decode", BadLength, decErr.Error())
	}
	if len(data) == 0 {
		return "", 0, nil, fail("bech32_decode", BadLength, "empty bech32 payload")
	}
	witnessVersion = data[0]
	program, err = bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return "", 0, nil, fail("bech32_decode", BadLength, err.Error())
	}
	return hrp, witnessVersion, program, nil
}
