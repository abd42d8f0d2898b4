package domain

import (
	"strings"
	"testing"
)

func TestTokenHasher_Generate(t *testing.T) {
	h := NewTokenHasher("test-secret")

	plaintext, hash, err := h.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !strings.HasPrefix(plaintext, TokenPrefix) {
		t.Errorf("Plaintext should have prefix %q, got %q", TokenPrefix, plaintext)
	}
	if len(plaintext) != TokenLength {
		t.Errorf("Plaintext length = %d, want %d", len(plaintext), TokenLength)
	}
	if !ValidateTokenFormat(plaintext) {
		t.Errorf("generated token %q does not validate", plaintext)
	}

	if !ValidateTokenHashFormat(hash) {
		t.Errorf("generated hash %q does not validate", hash)
	}
	if h.Hash(plaintext) != hash {
		t.Error("Hash(plaintext) should equal returned hash")
	}
}

func TestTokenHasher_Uniqueness(t *testing.T) {
	h := NewTokenHasher("test-secret")
	tokens := make(map[string]bool)

	for i := 0; i < 100; i++ {
		plaintext, _, err := h.Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if tokens[plaintext] {
			t.Errorf("Duplicate token generated: %q", plaintext)
		}
		tokens[plaintext] = true
	}
}

func TestTokenHasher_Hash(t *testing.T) {
	tok := "sstk_ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopq"

	a := NewTokenHasher("secret-a")
	b := NewTokenHasher("secret-b")

	if a.Hash(tok) != a.Hash(tok) {
		t.Error("Hash should be deterministic")
	}
	if a.Hash(tok) == b.Hash(tok) {
		t.Error("different secrets should yield different hashes")
	}
	if a.Hash(tok) == a.Hash("sstk_ZYXWVUTSRQPONMLKJIHGFEDCBAzyxwvutsrqponml") {
		t.Error("different tokens should yield different hashes")
	}
	if got := len(NewTokenHasher("").Hash(tok)); got != TokenHashLength {
		t.Errorf("unkeyed hash length = %d, want %d", got, TokenHashLength)
	}
}

func TestTokenHasher_Issued(t *testing.T) {
	h := NewTokenHasher("test-secret")
	own, _, err := h.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	foreign, _, _ := NewTokenHasher("other-secret").Generate()

	// flip one bit in the tag
	body := []byte(own)
	if body[len(body)-2] == 'A' {
		body[len(body)-2] = 'B'
	} else {
		body[len(body)-2] = 'A'
	}

	tests := []struct {
		name string
		tok  string
		want bool
	}{
		{"own token", own, true},
		{"other secret", foreign, false},
		{"made up", TokenPrefix + strings.Repeat("A", TokenBodyLength), false},
		{"tampered", string(body), false},
		{"malformed", "sstk_short", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Issued(tt.tok); got != tt.want {
				t.Errorf("Issued(%q) = %v, want %v", tt.tok, got, tt.want)
			}
		})
	}

	unkeyed := NewTokenHasher("")
	tok, _, err := unkeyed.Generate()
	if err != nil || !ValidateTokenFormat(tok) {
		t.Fatalf("unkeyed Generate() = %q, %v", tok, err)
	}
	if unkeyed.Issued(tok) {
		t.Error("an unkeyed hasher should not vouch for any token")
	}
}

func TestValidateTokenFormat(t *testing.T) {
	tests := []struct {
		name  string
		token string
		valid bool
	}{
		{"valid token", "sstk_ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopq", true},
		{"valid Base64 URL", "sstk_0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-_abcde", true},
		{"wrong prefix", "ssth_ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopq", false},
		{"no prefix", "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvw", false},
		{"too short", "sstk_ABC", false},
		{"too long", "sstk_ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqXXX", false},
		{"invalid Base64 chars", "sstk_ABCDEFGHIJKLMNOPQRSTUVWXYZ!@#$%^&*()abcd", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateTokenFormat(tt.token); got != tt.valid {
				t.Errorf("ValidateTokenFormat(%q) = %v, want %v", tt.token, got, tt.valid)
			}
		})
	}
}

func TestValidateTokenHashFormat(t *testing.T) {
	validBody := strings.Repeat("ab", 32)

	tests := []struct {
		name  string
		hash  string
		valid bool
	}{
		{"valid", TokenHashPrefix + validBody, true},
		{"wrong prefix", "tmth_" + validBody, false},
		{"not hex", TokenHashPrefix + strings.Repeat("zz", 32), false},
		{"too short", TokenHashPrefix + "abcd", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateTokenHashFormat(tt.hash); got != tt.valid {
				t.Errorf("ValidateTokenHashFormat(%q) = %v, want %v", tt.hash, got, tt.valid)
			}
		})
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"session token", "sstk_ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopq", "sstk_ABC...opq"},
		{"short", "abc", "***REDACTED***"},
		{"foreign", "Bearer something-long", "***REDACTED***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskToken(tt.token); got != tt.want {
				t.Errorf("MaskToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
