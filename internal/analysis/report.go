package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/janvdherrewegen/bootl-attacks/internal/constraint"
	"github.com/janvdherrewegen/bootl-attacks/internal/path"
)

// Output formats understood by Render.
const (
	FormatDetailed = "detailed"
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Formats lists the accepted output formats.
var Formats = []string{FormatDetailed, FormatTable, FormatJSON, FormatYAML}

// Report is the result of one analysis query.
type Report struct {
	Function     string       `json:"function" yaml:"function"`
	Name         string       `json:"name,omitempty" yaml:"name,omitempty"`
	Architecture string       `json:"architecture" yaml:"architecture"`
	From         string       `json:"from" yaml:"from"`
	Targets      []string     `json:"targets" yaml:"targets"`
	Bounds       *path.Bounds `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	Paths        []PathReport `json:"paths" yaml:"paths"`
}

// PathReport describes one block-level path.
type PathReport struct {
	Index      int               `json:"index" yaml:"index"`
	Blocks     []string          `json:"blocks" yaml:"blocks"`
	Ticks      path.Bounds       `json:"ticks" yaml:"ticks"`
	Loops      []LoopReport      `json:"loops,omitempty" yaml:"loops,omitempty"`
	Expansions []ExpansionReport `json:"expansions" yaml:"expansions"`
}

// LoopReport describes a loop attached to a path.
type LoopReport struct {
	Head        string      `json:"head" yaml:"head"`
	Blocks      []string    `json:"blocks" yaml:"blocks"`
	Repetitions int         `json:"repetitions" yaml:"repetitions"`
	Ticks       path.Bounds `json:"ticks" yaml:"ticks"`
}

// ExpansionReport describes one instruction path and its equivalence class.
type ExpansionReport struct {
	Index        int                     `json:"index" yaml:"index"`
	Instructions int                     `json:"instructions" yaml:"instructions"`
	Ticks        path.Bounds             `json:"ticks" yaml:"ticks"`
	Constraints  []string                `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Feasible     bool                    `json:"feasible" yaml:"feasible"`
	Solutions    []constraint.Assignment `json:"solutions,omitempty" yaml:"solutions,omitempty"`
	Groups       []map[string]string     `json:"groups,omitempty" yaml:"groups,omitempty"`
	Listing      string                  `json:"-" yaml:"-"`
}

// Feasible returns the number of feasible expansions over all paths.
func (r *Report) Feasible() int {
	n := 0
	for _, p := range r.Paths {
		for _, e := range p.Expansions {
			if e.Feasible {
				n++
			}
		}
	}
	return n
}

// Expansions returns the number of expansions over all paths.
func (r *Report) Expansions() int {
	n := 0
	for _, p := range r.Paths {
		n += len(p.Expansions)
	}
	return n
}

// Render writes r to w in the given format. An empty format selects
// FormatDetailed.
func (r *Report) Render(w io.Writer, format string) error {
	switch format {
	case "", FormatDetailed:
		_, err := io.WriteString(w, r.FormatDetailed())
		return err
	case FormatTable:
		r.renderTable(w)
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want %s)", format, strings.Join(Formats, ", "))
	}
}

// FormatSummary returns the query and its function-level bounds.
func (r *Report) FormatSummary() string {
	var b strings.Builder

	name := r.Function
	if r.Name != "" {
		name = fmt.Sprintf("%s (%s)", r.Name, r.Function)
	}
	b.WriteString("=== Query ===\n")
	b.WriteString(fmt.Sprintf("Function:      %s\n", name))
	b.WriteString(fmt.Sprintf("Architecture:  %s\n", r.Architecture))
	b.WriteString(fmt.Sprintf("From:          %s\n", r.From))
	b.WriteString(fmt.Sprintf("Targets:       %s\n", strings.Join(r.Targets, ", ")))
	if r.Bounds != nil {
		b.WriteString(fmt.Sprintf("Clock bounds:  %s ticks (entry to any terminal)\n", r.Bounds))
	}
	b.WriteString(fmt.Sprintf("Paths:         %d\n", len(r.Paths)))
	b.WriteString(fmt.Sprintf("Expansions:    %d (%d feasible)\n", r.Expansions(), r.Feasible()))

	return b.String()
}

// FormatDetailed lists every path, its loops and every expansion with the
// derived constraints, the instruction listing and the solutions.
func (r *Report) FormatDetailed() string {
	var b strings.Builder

	b.WriteString(r.FormatSummary())
	for _, p := range r.Paths {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("=== Path %d: %s ===\n", p.Index, strings.Join(p.Blocks, " -> ")))
		b.WriteString(fmt.Sprintf("Ticks: %s\n", p.Ticks))
		for _, l := range p.Loops {
			b.WriteString(fmt.Sprintf("Loop:  %s x%d = %s ticks\n", strings.Join(l.Blocks, " -> "), l.Repetitions, l.Ticks))
		}
		for _, e := range p.Expansions {
			b.WriteString(fmt.Sprintf("\n--- Expansion %d: %d instructions, %s ticks ---\n", e.Index, e.Instructions, e.Ticks))
			b.WriteString(e.Listing)
			if len(e.Constraints) > 0 {
				b.WriteString("Constraints:\n")
				for _, c := range e.Constraints {
					b.WriteString("  " + c + "\n")
				}
			}
			if !e.Feasible {
				b.WriteString("Equivalence class: none (path infeasible)\n")
				continue
			}
			for n, s := range e.Solutions {
				b.WriteString(fmt.Sprintf("Equivalence class: %s\n", s))
				if n < len(e.Groups) {
					b.WriteString(fmt.Sprintf("  %s\n", formatGroups(e.Groups[n])))
				}
			}
		}
	}
	return b.String()
}

func (r *Report) renderTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Path", "Blocks", "Path ticks", "Exp", "Exp ticks", "Feasible", "Class"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, p := range r.Paths {
		blocks := strings.Join(p.Blocks, " ")
		if len(p.Expansions) == 0 {
			table.Append([]string{fmt.Sprint(p.Index), blocks, p.Ticks.String(), "-", "-", "-", ""})
			continue
		}
		for _, e := range p.Expansions {
			class := ""
			if len(e.Solutions) > 0 {
				class = e.Solutions[0].String()
				if len(e.Groups) > 0 {
					class = formatGroups(e.Groups[0])
				}
			}
			table.Append([]string{
				fmt.Sprint(p.Index),
				blocks,
				p.Ticks.String(),
				fmt.Sprint(e.Index),
				e.Ticks.String(),
				fmt.Sprint(e.Feasible),
				class,
			})
		}
	}
	table.Render()
}

func formatGroups(groups map[string]string) string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for n, name := range names {
		parts[n] = name + "=" + groups[name]
	}
	return strings.Join(parts, " ")
}
