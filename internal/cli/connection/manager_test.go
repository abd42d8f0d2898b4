package connection

import (
	"context"
	"errors"
	"testing"
)

func TestNewManager(t *testing.T) {
	m := NewManager(NewHTTPClient("localhost:5080", ""), "")
	if m.IsConnected() {
		t.Error("new manager should not be connected")
	}
	if _, err := m.ResID(); !errors.Is(err, ErrNoSession) {
		t.Errorf("ResID() error = %v, want ErrNoSession", err)
	}
}

func TestManager_Use(t *testing.T) {
	m := NewManager(NewHTTPClient("localhost:5080", ""), "")
	m.Use("01J0000000000000000000000A", "sstk_one")

	resID, err := m.ResID()
	if err != nil || resID != "01J0000000000000000000000A" {
		t.Errorf("ResID() = %q, %v", resID, err)
	}
	if m.Client().Token() != "sstk_one" {
		t.Errorf("token = %q", m.Client().Token())
	}
	if !m.IsConnected() {
		t.Error("manager should be connected after Use")
	}
}

func TestManager_Connect(t *testing.T) {
	server := newSandstore(t)

	m := NewManager(NewHTTPClient(server.URL, ""), "")
	result, err := m.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	resID, _ := m.ResID()
	if resID != result.ResID || m.Client().Token() != result.Token {
		t.Errorf("manager state = %q/%q, want %+v", resID, m.Client().Token(), result)
	}
}
