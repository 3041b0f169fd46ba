package command

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/keymesh-go/internal/authtest"
	"github.com/yndnr/keymesh-go/internal/cli/config"
)

// harness runs the CLI against an in-process identity service with a
// config file and credential store under a temp dir.
type harness struct {
	srv     *authtest.Server
	cfgPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	srv := authtest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser("alice", "alice@example.com", "correct-pw")

	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfg := config.Default()
	cfg.Server = srv.URL()
	cfg.Store.Dir = filepath.Join(dir, "credentials")
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := config.Save(cfg, cfgPath); err != nil {
		t.Fatalf("save config: %v", err)
	}

	return &harness{srv: srv, cfgPath: cfgPath}
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes one CLI invocation with stdin as its input.
func (h *harness) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()

	app := App()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)

	full := append([]string{"keymesh-cli", "--config", h.cfgPath}, args...)
	err := app.Run(full)
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

// mustRun is run that fails the test on error.
func (h *harness) mustRun(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	r := h.run(t, stdin, args...)
	if r.err != nil {
		t.Fatalf("%v: %v\nstderr: %s", args, r.err, r.stderr)
	}
	return r
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	h.mustRun(t, "correct-pw\n", "login", "--username", "alice", "--password-stdin")
}

func decodeJSON(t *testing.T, s string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(s), v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
}
