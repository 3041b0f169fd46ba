package command

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApp(t *testing.T) {
	app := App()

	if app.Name != "keymesh-cli" {
		t.Errorf("Name = %q, want keymesh-cli", app.Name)
	}

	commands := make(map[string]bool)
	for _, cmd := range app.Commands {
		commands[cmd.Name] = true
	}
	for _, name := range []string{"login", "register", "logout", "whoami", "status", "apikey", "config", "version"} {
		if !commands[name] {
			t.Errorf("missing command: %s", name)
		}
	}

	flags := make(map[string]bool)
	for _, f := range app.Flags {
		flags[f.Names()[0]] = true
	}
	for _, name := range []string{"server", "config", "output", "wide", "verbose", "metrics-file"} {
		if !flags[name] {
			t.Errorf("missing global flag: %s", name)
		}
	}
}

func TestGlobalFlags_Overrides(t *testing.T) {
	f := &GlobalFlags{Server: "http://x/api", Output: "json", Verbose: true}
	got := f.overrides()

	if got["server"] != "http://x/api" || got["output"] != "json" || got["log.level"] != "debug" {
		t.Errorf("overrides() = %v", got)
	}
	if len((&GlobalFlags{}).overrides()) != 0 {
		t.Error("unset flags should not override config")
	}
}

func TestInvalidOutputFlag(t *testing.T) {
	h := newHarness(t)

	r := h.run(t, "", "--output", "xml", "status")
	if r.err == nil || !strings.Contains(r.err.Error(), "output") {
		t.Errorf("err = %v, want output format error", r.err)
	}
}

func TestServerFlagOverridesConfig(t *testing.T) {
	h := newHarness(t)

	r := h.mustRun(t, "", "--server", "http://127.0.0.1:1/api", "-o", "json", "status")
	var got statusView
	decodeJSON(t, r.stdout, &got)
	if got.Server != "http://127.0.0.1:1/api" {
		t.Errorf("Server = %q", got.Server)
	}
}

func TestVersion(t *testing.T) {
	h := newHarness(t)

	r := h.mustRun(t, "", "-o", "json", "version")
	var got map[string]string
	decodeJSON(t, r.stdout, &got)
	if got["version"] == "" || !strings.HasPrefix(got["goVersion"], "go") {
		t.Errorf("version output = %v", got)
	}
}

func TestMetricsFile(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	path := filepath.Join(t.TempDir(), "keymesh.prom")
	h.mustRun(t, "", "--metrics-file", path, "whoami")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		`keymesh_client_requests_total{method="GET",status="200"} 1`,
		"keymesh_client_session_authenticated 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("%q missing from metrics file:\n%s", want, body)
		}
	}
}

func TestMetricsFile_WriteFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	path := filepath.Join(t.TempDir(), "missing", "keymesh.prom")
	r := h.mustRun(t, "", "--metrics-file", path, "whoami")
	if !strings.Contains(r.stderr, "write metrics file") {
		t.Errorf("stderr = %q, want metrics write warning", r.stderr)
	}
}
