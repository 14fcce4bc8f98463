package security

import "testing"

func TestHashToken(t *testing.T) {
	h1 := HashToken("tok-a")
	h2 := HashToken("tok-a")
	if h1 != h2 {
		t.Error("HashToken not deterministic")
	}
	if h1 == HashToken("tok-b") {
		t.Error("different tokens produced same hash")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
}

func TestTokenHashEqual(t *testing.T) {
	stored := HashToken("tok-a")
	if !TokenHashEqual("tok-a", stored) {
		t.Error("TokenHashEqual should match")
	}
	if TokenHashEqual("tok-b", stored) {
		t.Error("TokenHashEqual should not match different token")
	}
}

func TestRandomOpaqueToken(t *testing.T) {
	a, err := RandomOpaqueToken()
	if err != nil {
		t.Fatalf("RandomOpaqueToken: %v", err)
	}
	b, err := RandomOpaqueToken()
	if err != nil {
		t.Fatalf("RandomOpaqueToken: %v", err)
	}
	if a == b {
		t.Error("two opaque tokens were identical")
	}
	if len(a) < 40 {
		t.Errorf("token too short: %d", len(a))
	}
}
