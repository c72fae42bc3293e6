// Package version reports which build of bootl-analyze is running and which
// versions of the solver and graph libraries it was linked against.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

// Version and Commit may be stamped at link time:
//
//	go build -ldflags="-X github.com/janvdherrewegen/bootl-attacks/internal/version.Version=v0.3.0"
var (
	Version = ""
	Commit  = ""
)

// tracked lists the modules whose versions change analysis results
var tracked = []string{
	"github.com/gnboorse/centipede",
	"github.com/benbjohnson/immutable",
	"github.com/deckarep/golang-set/v2",
	"gopkg.in/yaml.v3",
}

// Info describes the running build
type Info struct {
	Version string
	Commit  string
	Dirty   bool
	Go      string
	Deps    []string // "path version" of each tracked module that is linked in
}

var (
	once sync.Once
	info Info
)

// Get returns the build information, read once per process
func Get() Info {
	once.Do(func() {
		info = read(Version, Commit)
	})
	return info
}

func read(ver, commit string) Info {
	i := Info{Version: ver, Commit: commit}
	if bi, ok := debug.ReadBuildInfo(); ok {
		i = fromBuildInfo(i, bi)
	}
	if i.Version == "" {
		i.Version = "dev"
	}
	if i.Commit == "" {
		i.Commit = "unknown"
	}
	return i
}

func fromBuildInfo(i Info, bi *debug.BuildInfo) Info {
	i.Go = bi.GoVersion
	if i.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "" {
				i.Commit = s.Value
				if len(i.Commit) > 7 {
					i.Commit = i.Commit[:7]
				}
			}
		case "vcs.modified":
			i.Dirty = s.Value == "true"
		}
	}
	for _, path := range tracked {
		for _, dep := range bi.Deps {
			if dep.Path != path {
				continue
			}
			if dep.Replace != nil {
				dep = dep.Replace
			}
			i.Deps = append(i.Deps, dep.Path+" "+dep.Version)
		}
	}
	return i
}

// String formats the version line printed by 'bootl-analyze version'
func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.Version)
	fmt.Fprintf(&b, " (commit: %s", i.Commit)
	if i.Dirty {
		b.WriteString(", modified")
	}
	if i.Go != "" {
		fmt.Fprintf(&b, ", %s", i.Go)
	}
	b.WriteString(")")
	return b.String()
}
