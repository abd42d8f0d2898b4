package command

import (
	"context"
	"strings"
	"testing"

	"github.com/yndnr/sandstore-go/internal/cli/connection"
	"github.com/yndnr/sandstore-go/internal/cli/output"
	"github.com/yndnr/sandstore-go/internal/cli/repl"
)

func TestShellExecutor(t *testing.T) {
	h := newHarness(t)
	saved := h.createSession()

	mgr := connection.NewManager(connection.NewHTTPClient(saved.Server, saved.Token), saved.ResID)
	exec := &shellExecutor{mgr: mgr}
	ctx := context.Background()

	run := func(line string) any {
		t.Helper()
		call, err := repl.Parse(line)
		if err != nil {
			t.Fatalf("Parse(%q): %v", line, err)
		}
		result, err := exec.Execute(ctx, call)
		if err != nil {
			t.Fatalf("Execute(%q): %v", line, err)
		}
		return result
	}

	if got := run(`db.users.insert([{"name":"ada","n":1},{"name":"bob","n":2}])`); got != nil {
		t.Errorf("insert = %v, want nil", got)
	}

	docs, ok := run(`db.users.find({"n":{"$gt":1}})`).(output.Documents)
	if !ok || len(docs) != 1 || !strings.Contains(string(docs[0]), "bob") {
		t.Errorf("find = %v", docs)
	}

	if got := run(`db.users.count()`); got != "2" {
		t.Errorf("count = %v, want 2", got)
	}

	names, ok := run(`db.getCollectionNames()`).([]string)
	if !ok || len(names) != 1 || names[0] != "users" {
		t.Errorf("getCollectionNames = %v", names)
	}

	run(`db.dropDatabase()`)
	names, _ = run(`db.getCollectionNames()`).([]string)
	if len(names) != 0 {
		t.Errorf("names after dropDatabase = %v", names)
	}
}

func TestShellExecutor_NoSession(t *testing.T) {
	mgr := connection.NewManager(connection.NewHTTPClient("localhost:1", ""), "")
	exec := &shellExecutor{mgr: mgr}

	call, err := repl.Parse(`db.users.find()`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := exec.Execute(context.Background(), call); err != connection.ErrNoSession {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestShell_Session(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	h := newHarness(t)
	h.createSession()

	out, err := h.run("db.users.insert({\"name\":\"ada\"})\ndb.users.count()\nexit\n", "shell")
	if err != nil {
		t.Fatalf("shell: %v", err)
	}
	if !strings.Contains(out, "OK") || !strings.Contains(out, "1") {
		t.Errorf("shell output = %q", out)
	}
}
