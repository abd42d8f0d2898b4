package command

import (
	"bytes"
	"flag"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sandstore-go/internal/cli/config"
	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/internal/server/httpserver"
	"github.com/yndnr/sandstore-go/internal/storage/memory"
)

// harness runs CLI commands against a real router on in-memory storage,
// with the CLI profile kept in a temp dir across runs.
type harness struct {
	t       *testing.T
	server  *httptest.Server
	profile string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	sessions := memory.New()
	namespaces := memory.NewNamespaceStore()
	backend := memory.NewDocStore()
	registry := service.NewSessionRegistry(sessions, namespaces, domain.NewTokenHasher("command-test"))
	mapper := service.NewNamespaceMapper(namespaces, backend)
	data := service.NewDataService(registry,
		service.NewRateLimiter(memory.NewCounterStore(), 0, time.Minute),
		mapper,
		service.NewQuotaEnforcer(namespaces, backend, 0),
		backend,
	)

	cfg := httpserver.DefaultRouterConfig()
	cfg.Registry = registry
	cfg.Data = data
	cfg.Validator = service.NewValidator(data)
	cfg.Fixtures = service.NewFixtureLoader(data)
	cfg.Sweeper = service.NewExpirySweeper(sessions, namespaces, mapper, time.Hour, time.Hour)
	cfg.EnableAudit = false

	server := httptest.NewServer(httpserver.NewRouter(cfg))
	t.Cleanup(server.Close)

	return &harness{
		t:       t,
		server:  server,
		profile: filepath.Join(t.TempDir(), "cli.yaml"),
	}
}

// run executes the CLI with the harness server and profile. stdin feeds
// confirmations and "-" inputs.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()

	var out, errOut bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)

	full := append([]string{"sandstore-cli", "--server", h.server.URL, "--config", h.profile}, args...)
	err := app.Run(full)
	return out.String(), err
}

// mustRun is run that fails the test on error.
func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run("", args...)
	if err != nil {
		h.t.Fatalf("%v: %v\noutput: %s", args, err, out)
	}
	return out
}

// createSession allocates a namespace and saves it as the default session.
func (h *harness) createSession() config.Session {
	h.t.Helper()
	h.mustRun("session", "create")
	return h.savedSession(config.DefaultSession)
}

func (h *harness) savedSession(name string) config.Session {
	h.t.Helper()
	cfg, err := config.Load(h.profile)
	if err != nil {
		h.t.Fatalf("Load profile: %v", err)
	}
	s, ok := cfg.Sessions[name]
	if !ok {
		h.t.Fatalf("session %q not saved; sessions: %v", name, cfg.Sessions)
	}
	return s
}

// testContext builds a cli.Context with the global flags parsed from args
// and the given profile.
func testContext(t *testing.T, cfg *config.CLIConfig, args ...string) *cli.Context {
	t.Helper()

	app := &cli.App{
		Name:     "test",
		Flags:    globalFlags(),
		Metadata: map[string]any{metaProfile: cfg},
	}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		if err := f.Apply(set); err != nil {
			t.Fatalf("Apply(%v): %v", f.Names(), err)
		}
	}
	if err := set.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return cli.NewContext(app, set, nil)
}
