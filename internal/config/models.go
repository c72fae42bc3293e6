package config

import (
	"fmt"
	"time"

	"github.com/janvdherrewegen/bootl-attacks/internal/analysis"
	"github.com/janvdherrewegen/bootl-attacks/internal/arch"
	"github.com/janvdherrewegen/bootl-attacks/internal/cfg"
	"github.com/janvdherrewegen/bootl-attacks/internal/graphfile"
	"github.com/janvdherrewegen/bootl-attacks/internal/path"
)

// Registry represents the entire user configuration file.
// It stores named analysis targets and application preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Targets     map[string]*Target `yaml:"targets,omitempty"` // Keyed by target name
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Target is a firmware image under analysis: its graph file, the default
// query to run against it and the outcome of the last run.
type Target struct {
	Graphs       string            `yaml:"graphs"`                 // Graph file exported from the disassembler
	Query        string            `yaml:"query,omitempty"`        // Default query file
	Architecture string            `yaml:"architecture,omitempty"` // Overrides the graph file's architecture
	Notes        string            `yaml:"notes,omitempty"`
	Labels       map[string]string `yaml:"labels,omitempty"` // Function names keyed by hex entry address
	LastRun      *RunSummary       `yaml:"last_run,omitempty"`
}

// RunSummary records the headline numbers of an analysis run.
type RunSummary struct {
	Time       time.Time `yaml:"time"`
	Function   string    `yaml:"function"`
	Paths      int       `yaml:"paths"`
	Expansions int       `yaml:"expansions"`
	Feasible   int       `yaml:"feasible"`
}

// Preferences represents application-wide defaults. Values set in a query
// file or on the command line take precedence.
type Preferences struct {
	Architecture string       `yaml:"architecture,omitempty"` // Used when a graph file names none
	Format       string       `yaml:"format"`                 // Report format
	Workers      int          `yaml:"workers"`                // Expansions solved concurrently
	Samples      int          `yaml:"samples"`                // Assignments reported per expansion
	Budget       *path.Budget `yaml:"budget,omitempty"`
	ArchFiles    []string     `yaml:"arch_files,omitempty"` // Extra architecture spec files
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Targets:     make(map[string]*Target),
		Preferences: defaultPreferences(),
	}
}

func defaultPreferences() *Preferences {
	return &Preferences{
		Format:  analysis.FormatDetailed,
		Workers: 4,
		Samples: 1,
	}
}

// GetTarget retrieves a target by name.
// Returns nil if the target doesn't exist in the registry.
func (r *Registry) GetTarget(name string) *Target {
	return r.Targets[name]
}

// EnsureTarget ensures a target entry exists in the registry.
// Returns the target entry (existing or newly created).
func (r *Registry) EnsureTarget(name string) *Target {
	if r.Targets == nil {
		r.Targets = make(map[string]*Target)
	}

	if target, exists := r.Targets[name]; exists {
		return target
	}

	target := &Target{
		Labels: make(map[string]string),
	}
	r.Targets[name] = target
	return target
}

// SetTarget sets the graph and query files of a target.
func (r *Registry) SetTarget(name, graphs, query string) *Target {
	target := r.EnsureTarget(name)
	target.Graphs = graphs
	target.Query = query
	return target
}

// SetLabel names the function at entry in a target.
func (r *Registry) SetLabel(name string, entry uint64, label string) {
	target := r.EnsureTarget(name)
	if target.Labels == nil {
		target.Labels = make(map[string]string)
	}
	target.Labels[fmt.Sprintf("0x%x", entry)] = label
}

// RecordRun stores the summary of report as the target's last run.
func (r *Registry) RecordRun(name string, report *analysis.Report) {
	target := r.EnsureTarget(name)
	target.LastRun = &RunSummary{
		Time:       time.Now(),
		Function:   report.Function,
		Paths:      len(report.Paths),
		Expansions: report.Expansions(),
		Feasible:   report.Feasible(),
	}
}

// RemoveTarget deletes a target. It reports whether the target existed.
func (r *Registry) RemoveTarget(name string) bool {
	if _, ok := r.Targets[name]; !ok {
		return false
	}
	delete(r.Targets, name)
	return true
}

// ApplyLabels names the functions of db after the target's labels. Labels for
// functions db does not contain are skipped. It returns the number of
// functions named.
func (t *Target) ApplyLabels(db *cfg.Database) (int, error) {
	named := 0
	for key, label := range t.Labels {
		entry, err := graphfile.ParseAddress(key)
		if err != nil {
			return named, fmt.Errorf("invalid label address %q: %w", key, err)
		}
		g, err := db.Get(entry)
		if err != nil {
			continue
		}
		g.SetName(label)
		named++
	}
	return named, nil
}

// Apply fills the fields of c that the query left unset.
func (p *Preferences) Apply(c *analysis.Config) {
	if p == nil {
		return
	}
	if c.Workers == 0 {
		c.Workers = p.Workers
	}
	if c.Samples == 0 {
		c.Samples = p.Samples
	}
	if c.Budget == (path.Budget{}) && p.Budget != nil {
		c.Budget = *p.Budget
	}
}

// RegisterArchitectures loads the extra architecture spec files and makes
// them available to arch.Lookup.
func (p *Preferences) RegisterArchitectures() error {
	if p == nil {
		return nil
	}
	for _, file := range p.ArchFiles {
		t, err := arch.LoadSpecFile(file)
		if err != nil {
			return fmt.Errorf("failed to load architecture %s: %w", file, err)
		}
		if err := arch.Register(t); err != nil {
			return fmt.Errorf("failed to register architecture %s: %w", file, err)
		}
	}
	return nil
}
