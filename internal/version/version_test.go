package version

import (
	"runtime/debug"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.22.1",
		Main:      debug.Module{Path: "github.com/janvdherrewegen/bootl-attacks", Version: "(devel)"},
		Deps: []*debug.Module{
			{Path: "gopkg.in/yaml.v3", Version: "v3.0.1"},
			{Path: "github.com/spf13/cobra", Version: "v1.10.1"},
			{Path: "github.com/gnboorse/centipede", Version: "v1.0.2"},
			{Path: "github.com/benbjohnson/immutable", Version: "v0.4.3",
				Replace: &debug.Module{Path: "github.com/benbjohnson/immutable", Version: "v0.4.4"}},
		},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	got := fromBuildInfo(Info{}, bi)
	want := Info{
		Commit: "0123456",
		Dirty:  true,
		Go:     "go1.22.1",
		Deps: []string{
			"github.com/gnboorse/centipede v1.0.2",
			"github.com/benbjohnson/immutable v0.4.4",
			"gopkg.in/yaml.v3 v3.0.1",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fromBuildInfo() mismatch (-want +got):\n%s", diff)
	}
}

func TestLinkerValuesWin(t *testing.T) {
	bi := &debug.BuildInfo{
		Main:     debug.Module{Version: "v0.1.0"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "fedcba9876"}},
	}
	got := fromBuildInfo(Info{Version: "v0.3.0", Commit: "abc"}, bi)
	if got.Version != "v0.3.0" || got.Commit != "abc" {
		t.Errorf("fromBuildInfo() = %+v, want ldflags values kept", got)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"plain", Info{Version: "dev", Commit: "unknown"}, "dev (commit: unknown)"},
		{"dirty", Info{Version: "v0.3.0", Commit: "0123456", Dirty: true, Go: "go1.22.1"}, "v0.3.0 (commit: 0123456, modified, go1.22.1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetFillsDefaults(t *testing.T) {
	got := Get()
	if got.Version == "" || got.Commit == "" {
		t.Errorf("Get() = %+v, want version and commit set", got)
	}
}
