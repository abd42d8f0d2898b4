package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

const testTokenHash = TokenHashPrefix + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestNewSession(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	resID, err := GenerateResID()
	if err != nil {
		t.Fatalf("GenerateResID() error = %v", err)
	}

	session := NewSession(resID, testTokenHash, now)

	if session.ResID != resID {
		t.Errorf("ResID = %q, want %q", session.ResID, resID)
	}
	if session.TokenHash != testTokenHash {
		t.Errorf("TokenHash = %q", session.TokenHash)
	}
	if session.CreatedAt != now.UnixMilli() || session.LastActive != now.UnixMilli() {
		t.Errorf("timestamps = (%d, %d), want both %d", session.CreatedAt, session.LastActive, now.UnixMilli())
	}
	if session.Version != 1 {
		t.Errorf("Version = %d, want 1", session.Version)
	}
	if err := session.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestGenerateResID(t *testing.T) {
	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id, err := GenerateResID()
		if err != nil {
			t.Fatalf("GenerateResID() error = %v", err)
		}
		if !IsValidResID(id) {
			t.Errorf("Generated res_id is not valid: %q", id)
		}
		if strings.Contains(id, ".") {
			t.Errorf("res_id must not contain a dot: %q", id)
		}
		if strings.HasPrefix(id, "system") || strings.HasPrefix(id, "_") {
			t.Errorf("res_id collides with reserved prefix: %q", id)
		}
		if ids[id] {
			t.Errorf("Duplicate res_id generated: %q", id)
		}
		ids[id] = true
	}
}

func TestIsValidResID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"valid", "01hq3v6x8k2n4p6r8t0v2x4z6b", true},
		{"uppercase", "01HQ3V6X8K2N4P6R8T0V2X4Z6B", false},
		{"too short", "01hq3v6x8k", false},
		{"dotted", "01hq3v6x8k2n4p6r8t0v2x4z.b", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidResID(tt.id); got != tt.valid {
				t.Errorf("IsValidResID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}

func TestSession_TouchAndIdle(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	session := NewSession("01hq3v6x8k2n4p6r8t0v2x4z6b", testTokenHash, start)

	if !session.IdleBefore(start.Add(time.Second)) {
		t.Error("session should be idle before a later cutoff")
	}
	if session.IdleBefore(start) {
		t.Error("session active exactly at cutoff is not idle")
	}

	session.Touch(start.Add(time.Minute))
	if session.IdleBefore(start.Add(time.Second)) {
		t.Error("Touch should move LastActive past the cutoff")
	}
	if !session.LastActiveTime().Equal(start.Add(time.Minute)) {
		t.Errorf("LastActiveTime() = %v", session.LastActiveTime())
	}
	if !session.CreatedAtTime().Equal(start) {
		t.Errorf("CreatedAtTime() = %v", session.CreatedAtTime())
	}
}

func TestSession_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		mutate  func(*Session)
		wantErr bool
	}{
		{"valid", func(*Session) {}, false},
		{"bad res_id", func(s *Session) { s.ResID = "nope" }, true},
		{"bad hash", func(s *Session) { s.TokenHash = "ssth_zz" }, true},
		{"time travel", func(s *Session) { s.LastActive = s.CreatedAt - 1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("01hq3v6x8k2n4p6r8t0v2x4z6b", testTokenHash, now)
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsDomainError(err, ErrInvalidArgument.Code) {
				t.Errorf("Validate() error code = %q", GetErrorCode(err))
			}
		})
	}
}

func TestSession_CloneAndVersion(t *testing.T) {
	s := NewSession("01hq3v6x8k2n4p6r8t0v2x4z6b", testTokenHash, time.Now())
	c := s.Clone()
	c.IncrVersion()
	c.ResID = "other"

	if s.Version != 1 || s.ResID != "01hq3v6x8k2n4p6r8t0v2x4z6b" {
		t.Error("Clone should not share state with the original")
	}
	if c.GetVersion() != 2 {
		t.Errorf("GetVersion() = %d, want 2", c.GetVersion())
	}
	c.SetVersion(9)
	if c.Version != 9 {
		t.Errorf("SetVersion() not applied")
	}
}

func TestSession_MarshalJSON(t *testing.T) {
	s := NewSession("01hq3v6x8k2n4p6r8t0v2x4z6b", testTokenHash, time.UnixMilli(42))

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, key := range []string{`"res_id"`, `"token_hash"`, `"created_at"`, `"last_active"`, `"version"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("JSON %s missing key %s", data, key)
		}
	}
}
