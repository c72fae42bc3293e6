// Package config provides user configuration management for bootl-analyze.
//
// This package manages a YAML-based configuration file that stores named
// analysis targets (a graph file, its default query and the summary of the
// last run) and application preferences such as the default report format,
// solver worker count and analysis budget. The configuration follows
// OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/bootl-attacks/config.yaml or $HOME/.config/bootl-attacks/config.yaml
//   - macOS: $HOME/.config/bootl-attacks/config.yaml
//   - Windows: %LOCALAPPDATA%\bootl-attacks\config.yaml
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SetTarget("upd78f0511", "graphs/boot.yaml", "queries/checksum.yaml")
//	registry.SetLabel("upd78f0511", 0x1aa8, "verify_range")
//
//	// Name the functions of a loaded graph database in reports and DOT output
//	registry.GetTarget("upd78f0511").ApplyLabels(db)
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
