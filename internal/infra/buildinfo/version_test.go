package buildinfo

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" || info.Commit == "" || info.BuildTime == "" {
		t.Errorf("Get() has empty fields: %+v", info)
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
}

func TestString(t *testing.T) {
	i := Get()
	want := i.Version + " (" + i.Commit + ") built at " + i.BuildTime
	if s := String(); s != want {
		t.Errorf("String() = %q, want %q", s, want)
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "keymesh-cli/") {
		t.Errorf("UserAgent() = %q", ua)
	}
}

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	}

	info := Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"}
	fillFromBuildInfo(&info, bi)
	if info.Version != "v1.4.0" || info.Commit != "0123456789ab" || info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Errorf("info = %+v", info)
	}

	// ldflags values win.
	info = Info{Version: "v9.9.9", Commit: "abc", BuildTime: "now"}
	fillFromBuildInfo(&info, bi)
	if info.Version != "v9.9.9" || info.Commit != "abc" || info.BuildTime != "now" {
		t.Errorf("ldflags overridden: %+v", info)
	}

	info = Info{Version: "dev"}
	fillFromBuildInfo(&info, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if info.Version != "dev" {
		t.Errorf("(devel) should keep dev, got %q", info.Version)
	}
}
