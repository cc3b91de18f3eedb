package utils

import "testing"

func TestFingerprintStable(t *testing.T) {
	if Fingerprint([]byte("abc")) != Fingerprint([]byte("abc")) {
		t.Fatalf("fingerprint not deterministic")
	}
	if Fingerprint([]byte("abc")) == Fingerprint([]byte("abd")) {
		t.Fatalf("expected different fingerprints")
	}
}

func TestTagHidesInput(t *testing.T) {
	tag := Tag("secret-token")
	if len(tag) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", tag)
	}
	if tag == "secret-token" || tag != Tag("secret-token") {
		t.Fatalf("unexpected tag %q", tag)
	}
}
