package cryptoadapter

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// TestHash160KnownVector checks scenario B from spec.md: the pubkey hash
// embedded in address 16UwLL9Risc3QfPqBUvKofHmBQ7wMtjvM.
func TestHash160KnownVector(t *testing.T) {
	pub, _ := hex.DecodeString("0450863ad64a87ae8a2fe83c1af1a8403cb53f53e486d8511dad8a04887e5b23522cd470243453a299fa9e77237716103abc11a1df38855ed6f2ee187e9c582ba6")
	want, _ := hex.DecodeString("00010966776006953d5567439e5e39f86a0d273bee")
	got := Hash160(pub)
	if !bytes.Equal(got, want[1:]) {
		t.Fatalf("hash160 mismatch: got %x want %x", got, want[1:])
	}
}

func TestBase58EncodeCheckKnownVector(t *testing.T) {
	payload, _ := hex.DecodeString("00010966776006953d5567439e5e39f86a0d273bee")
	encoded := Base58EncodeCheck(payload[0], payload[1:])
	if encoded != "16UwLL9Risc3QfPqBUvKofHmBQ7wMtjvM" {
		t.Fatalf("unexpected address: %s", encoded)
	}
}

func TestBase58DecodeCheckRoundTrip(t *testing.T) {
	payload, _ := hex.DecodeString("010966776006953d5567439e5e39f86a0d273bee")
	encoded := Base58EncodeCheck(payload[0], payload[1:])
	decoded, err := Base58DecodeCheck(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatalf("round trip mismatch: got %x want %x", decoded, payload)
	}
}

func TestBech32P2WPKHKnownVector(t *testing.T) {
	pub, _ := hex.DecodeString("0279BE667EF9DCBBAC55A06295CE870B07029BFCDB2DCE28D959F2815B16F81798")
	hash := Hash160(pub)
	got, err := Bech32Encode("bc", 0, hash)
	if err != nil {
		t.Fatalf("bech32 encode: %v", err)
	}
	want := "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestAESCBCRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	iv := bytes.Repeat([]byte{0x01}, 16)
	plaintext := []byte("a secp256k1 private key, 32 by.")

	ct, err := AESCBCEncrypt(key, iv, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := AESCBCDecrypt(key, iv, ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", pt, plaintext)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv := bytes.Repeat([]byte{0x09}, 32)
	pub, err := Secp256k1PubkeyFromPriv(priv)
	if err != nil {
		t.Fatalf("pubkey: %v", err)
	}
	hash := SHA256([]byte("message"))
	sig, err := Secp256k1SignDeterministic(priv, hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := Secp256k1Verify(pub, hash, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("signature did not verify")
	}
}
