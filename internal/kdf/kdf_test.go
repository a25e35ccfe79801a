package kdf

import "testing"

func TestDeriveDeterministic(t *testing.T) {
	p, err := New(MinMemoryBytes, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, err := p.Derive([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := p.Derive([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(a) != kdfOutSize {
		t.Fatalf("unexpected output length %d", len(a))
	}
	if string(a) != string(b) {
		t.Fatalf("derive is not deterministic for the same password+params")
	}
}

func TestDeriveDiffersByPassword(t *testing.T) {
	p, err := New(MinMemoryBytes, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, _ := p.Derive([]byte("password-a"))
	b, _ := p.Derive([]byte("password-b"))
	if string(a) == string(b) {
		t.Fatalf("different passwords produced the same derived key")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	p, err := New(MinMemoryBytes, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := p.Serialize()
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if string(got.KdfID) != string(p.KdfID) {
		t.Fatalf("kdf id mismatch after round trip")
	}
	if got.MemoryBytes != p.MemoryBytes || got.Iterations != p.Iterations {
		t.Fatalf("params mismatch after round trip")
	}
}

func TestDeserializeRejectsTamperedID(t *testing.T) {
	p, _ := New(MinMemoryBytes, 1)
	data := p.Serialize()
	data[len(data)-1] ^= 0xFF
	if _, err := Deserialize(data); err == nil {
		t.Fatalf("expected tampered kdf id to be rejected")
	}
}
