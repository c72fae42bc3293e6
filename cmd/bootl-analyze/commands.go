package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/janvdherrewegen/bootl-attacks/internal/analysis"
	"github.com/janvdherrewegen/bootl-attacks/internal/arch"
	"github.com/janvdherrewegen/bootl-attacks/internal/cfg"
	"github.com/janvdherrewegen/bootl-attacks/internal/config"
	"github.com/janvdherrewegen/bootl-attacks/internal/constraint"
	"github.com/janvdherrewegen/bootl-attacks/internal/graphfile"
	"github.com/janvdherrewegen/bootl-attacks/internal/logging"
	"github.com/janvdherrewegen/bootl-attacks/internal/path"
	"github.com/janvdherrewegen/bootl-attacks/internal/ui"
)

// Command flags
var (
	archName   string
	format     string
	verbose    bool
	targetName string

	// solve
	samples    int
	workers    int

	// paths
	fromAddr      string
	toAddr        string
	terminal      string
	excludeTarget bool
	loopFlags     []string

	// dot
	dotOutput string
)

// registry holds the user configuration loaded by setup
var registry *config.Registry

func init() {
	// Common flags for all commands (persistent on root)
	rootCmd.PersistentFlags().StringVar(&archName, "arch", "", "Architecture overriding the graph file (see 'archs')")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "", "Report format: "+strings.Join(analysis.Formats, ", "))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log analysis progress to stderr")
	rootCmd.PersistentFlags().StringVarP(&targetName, "target", "t", "", "Registered target: its labels name functions, 'solve' runs its query")
	solveCmd.Flags().IntVar(&samples, "samples", 0, "Assignments reported per expansion (overrides the query)")
	solveCmd.Flags().IntVar(&workers, "workers", 0, "Expansions solved concurrently (overrides the query)")

	pathsCmd.Flags().StringVar(&fromAddr, "from", "", "Address inside the start block (default: function entry)")
	pathsCmd.Flags().StringVar(&toAddr, "to", "", "Address inside the target block (default: terminal blocks)")
	pathsCmd.Flags().StringVar(&terminal, "terminal", "any", "Terminal blocks to target: any, success or error")
	pathsCmd.Flags().BoolVar(&excludeTarget, "exclude-target", false, "Drop the target block from every path")
	pathsCmd.Flags().StringSliceVar(&loopFlags, "loop", nil, "Loop repetitions as head=count (repeatable)")

	dotCmd.Flags().StringVarP(&dotOutput, "output", "o", "", "Write DOT to this file instead of stdout")

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(pathsCmd)
	rootCmd.AddCommand(boundsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(dotCmd)
	rootCmd.AddCommand(archsCmd)
	rootCmd.AddCommand(targetCmd)
}

// setup initializes logging and the user configuration for every command
func setup(cmd *cobra.Command, args []string) error {
	level := ""
	if verbose {
		level = "debug"
	}
	if err := logging.Initialize(level); err != nil {
		// Ignore error, GetLogger will create fallback logger
		_ = err
	}

	reg, err := config.LoadRegistry()
	if err != nil {
		logging.Warn("Ignoring user configuration", zap.Error(err))
		reg = config.NewRegistry()
	}
	registry = reg
	logging.Debug("Loaded user configuration", zap.Int("targets", len(registry.Targets)))

	if err := registry.Preferences.RegisterArchitectures(); err != nil {
		return err
	}
	if format == "" {
		format = registry.Preferences.Format
	}
	return nil
}

// signalContext returns a context cancelled on interrupt
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// loadGraphs loads a graph file, honouring --arch and the preferred
// architecture for files that name none
func loadGraphs(file string) (*cfg.Database, error) {
	var a arch.Architecture
	if archName != "" {
		var err error
		if a, err = arch.Lookup(archName); err != nil {
			return nil, err
		}
	}
	db, err := graphfile.Load(file, a)
	if errors.Is(err, graphfile.ErrNoArchitecture) && registry.Preferences.Architecture != "" {
		if a, err = arch.Lookup(registry.Preferences.Architecture); err != nil {
			return nil, err
		}
		db, err = graphfile.Load(file, a)
	}
	if err != nil {
		return nil, err
	}
	return db, applyLabels(db)
}

// lookupTarget returns the target named by --target, nil when none is given
func lookupTarget() (*config.Target, error) {
	if targetName == "" {
		return nil, nil
	}
	target := registry.GetTarget(targetName)
	if target == nil {
		return nil, fmt.Errorf("unknown target %q (see 'bootl-analyze target list')", targetName)
	}
	return target, nil
}

// applyLabels names the functions of db after the --target labels
func applyLabels(db *cfg.Database) error {
	target, err := lookupTarget()
	if err != nil || target == nil {
		return err
	}
	named, err := target.ApplyLabels(db)
	if err != nil {
		return err
	}
	logging.Debug("Applied target labels", zap.String("target", targetName), zap.Int("functions", named))
	return nil
}

// runAnalysis runs c and writes the report, framed by a header and a result
// box when stderr is a terminal
func runAnalysis(command string, c *analysis.Config, db *cfg.Database) (*analysis.Report, error) {
	fancy := ui.IsTerminal(os.Stderr) && (format == "" || format == analysis.FormatDetailed || format == analysis.FormatTable)
	if fancy {
		fmt.Fprintln(os.Stderr, ui.NewHeader("Path analysis", command,
			ui.Param{Key: "Function", Value: fmt.Sprintf("0x%x", c.Entry())},
			ui.Param{Key: "Graphs", Value: c.Graphs},
			ui.Param{Key: "Variables", Value: fmt.Sprint(len(c.Variables))},
		).Render())
	}

	ctx, cancel := signalContext()
	defer cancel()

	var bar *ui.Progress
	if fancy {
		bar = ui.NewProgress(os.Stderr, "Solving")
		c.OnSolved = bar.Update
	}
	report, err := analysis.Run(ctx, db, c, logging.GetLogger())
	if bar != nil {
		bar.Clear()
	}
	if err != nil {
		if fancy {
			fmt.Fprintln(os.Stderr, ui.RenderFailure("Analysis failed", err, troubleshooting(err)))
		}
		return nil, err
	}
	if err := report.Render(os.Stdout, format); err != nil {
		return nil, err
	}
	if fancy {
		fmt.Fprintln(os.Stderr, ui.NewAnalysisResult(report).Render())
	}
	return report, nil
}

// troubleshooting suggests fixes for the analysis errors users can act on
func troubleshooting(err error) []string {
	var budgetErr *path.BudgetError
	var recErr *path.RecursionError
	var callErr *cfg.UnresolvedCallError
	switch {
	case errors.As(err, &budgetErr):
		return []string{fmt.Sprintf("Raise budget.%s in the query or user configuration", budgetErr.Limit)}
	case errors.As(err, &recErr):
		return []string{"Recursive calls cannot be bounded; cut the cycle in the graph file"}
	case errors.As(err, &callErr):
		return []string{"Export the callee into the graph file", "Or set 'calls' on the call instruction"}
	case errors.Is(err, constraint.ErrBudget):
		return []string{"Raise max_steps in the query", "Or narrow the variable domains"}
	case errors.Is(err, context.Canceled):
		return []string{"Interrupted"}
	}
	return nil
}

// solveCmd implements the 'solve' command
var solveCmd = &cobra.Command{
	Use:   "solve [query.yaml]",
	Short: "Enumerate paths and solve for their inputs",
	Long: `Run a query file: enumerate the selected paths, expand them through
their calls, bound their clock cycles and solve the branch constraints along
every expansion for the declared variables.

With --target the query registered for that target is used when no file is
given, and the run summary is recorded in the user configuration.`,
	Example: `  bootl-analyze solve queries/checksum.yaml
  bootl-analyze solve --target upd78f0511 --samples 10 -f table`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSolve,
}

func runSolve(cmd *cobra.Command, args []string) error {
	target, err := lookupTarget()
	if err != nil {
		return err
	}

	queryFile := ""
	switch {
	case len(args) == 1:
		queryFile = args[0]
	case target != nil && target.Query != "":
		queryFile = target.Query
	default:
		return errors.New("a query file or a target with a query is required")
	}
	cmd.SilenceUsage = true

	c, err := analysis.LoadConfig(queryFile)
	if err != nil {
		return err
	}
	if target != nil {
		if c.Graphs == "" {
			c.Graphs = target.Graphs
		}
		if c.Architecture == "" {
			c.Architecture = target.Architecture
		}
	}
	if archName != "" {
		c.Architecture = archName
	}
	if samples > 0 {
		c.Samples = samples
	}
	if workers > 0 {
		c.Workers = workers
	}
	registry.Preferences.Apply(c)

	db, err := analysis.LoadDatabase(c)
	if err != nil {
		return err
	}
	if err := applyLabels(db); err != nil {
		return err
	}
	report, err := runAnalysis("bootl-analyze solve "+queryFile, c, db)
	if err != nil {
		return err
	}

	if target != nil {
		registry.RecordRun(targetName, report)
		if err := registry.Save(); err != nil {
			logging.Warn("Failed to record run", zap.String("target", targetName), zap.Error(err))
		} else {
			logging.Info("Recorded run", zap.String("target", targetName), zap.Int("feasible", report.Feasible()))
		}
	}
	return nil
}

// pathsCmd implements the 'paths' command
var pathsCmd = &cobra.Command{
	Use:   "paths <graphs.yaml> <function>",
	Short: "List the paths through a function with their cycle bounds",
	Long: `Enumerate the block paths of a function from --from (default: the entry)
to --to (default: its terminal blocks) and report their clock-cycle bounds and
loops. No variables are solved; use 'solve' with a query file for that.`,
	Example: `  bootl-analyze paths graphs/boot.yaml 0x1aa8
  bootl-analyze paths graphs/boot.yaml 1aa8h --to 0x1ab9 --loop 0x1ac0=16`,
	Args: cobra.ExactArgs(2),
	RunE: runPaths,
}

func runPaths(cmd *cobra.Command, args []string) error {
	c := &analysis.Config{Graphs: args[0], Terminal: terminal, ExcludeTarget: excludeTarget}
	var err error
	if c.Function, err = optionalAddress("function", args[1]); err != nil {
		return err
	}
	if c.From, err = optionalAddress("--from", fromAddr); err != nil {
		return err
	}
	if c.To, err = optionalAddress("--to", toAddr); err != nil {
		return err
	}
	for _, l := range loopFlags {
		spec, err := parseLoop(l)
		if err != nil {
			return err
		}
		c.Loops = append(c.Loops, spec)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cmd.SilenceUsage = true
	registry.Preferences.Apply(c)

	db, err := loadGraphs(c.Graphs)
	if err != nil {
		return err
	}
	_, err = runAnalysis("bootl-analyze paths "+strings.Join(args, " "), c, db)
	return err
}

func parseAddress(name, s string) (uint64, error) {
	v, err := graphfile.ParseAddress(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

// optionalAddress parses s, returning nil when it is empty
func optionalAddress(name, s string) (*graphfile.Address, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parseAddress(name, s)
	if err != nil {
		return nil, err
	}
	a := graphfile.Address(v)
	return &a, nil
}

func parseLoop(s string) (analysis.LoopSpec, error) {
	head, count, ok := strings.Cut(s, "=")
	if !ok {
		return analysis.LoopSpec{}, fmt.Errorf("invalid --loop %q (want head=count)", s)
	}
	addr, err := optionalAddress("--loop head", head)
	if err != nil {
		return analysis.LoopSpec{}, err
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return analysis.LoopSpec{}, fmt.Errorf("invalid --loop count %q: %w", count, err)
	}
	return analysis.LoopSpec{Head: addr, Repetitions: n}, nil
}

// boundsCmd implements the 'bounds' command
var boundsCmd = &cobra.Command{
	Use:   "bounds <graphs.yaml> [function...]",
	Short: "Print the clock-cycle bounds of functions",
	Long: `Print the minimum and maximum clock cycles from each function's entry to
any of its terminal blocks, following calls. Without functions every function
in the graph file is listed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBounds,
}

func runBounds(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	db, err := loadGraphs(args[0])
	if err != nil {
		return err
	}

	entries := db.Entries()
	if len(args) > 1 {
		entries = entries[:0:0]
		for _, a := range args[1:] {
			v, err := parseAddress("function", a)
			if err != nil {
				return err
			}
			entries = append(entries, v)
		}
	}

	an := path.NewAnalyzer(db, path.Config{Budget: budget()})
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Function", "Name", "Blocks", "Edges", "Min", "Max", "Note"})
	table.SetAutoWrapText(false)

	var failed int
	for _, entry := range entries {
		g, err := db.Get(entry)
		if err != nil {
			return err
		}
		row := []string{fmt.Sprintf("0x%x", entry), g.Name(), fmt.Sprint(g.Len()), fmt.Sprint(g.Edges())}
		b, err := an.ClockBounds(entry)
		if err != nil {
			failed++
			row = append(row, "-", "-", err.Error())
		} else {
			row = append(row, fmt.Sprint(b.Min), fmt.Sprint(b.Max), "")
		}
		table.Append(row)
	}
	table.Render()

	if failed > 0 {
		return fmt.Errorf("%d of %d functions could not be bounded", failed, len(entries))
	}
	return nil
}

func budget() path.Budget {
	if registry != nil && registry.Preferences != nil && registry.Preferences.Budget != nil {
		return *registry.Preferences.Budget
	}
	return path.Budget{}
}

// checkCmd implements the 'check' command
var checkCmd = &cobra.Command{
	Use:   "check <graphs.yaml>",
	Short: "Validate a graph file",
	Long: `Load a graph file and check that every call resolves to a function in
the file and that the call graph has no cycles.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	db, err := loadGraphs(args[0])
	if err != nil {
		return err
	}

	var blocks, edges, calls int
	for _, g := range db.Graphs() {
		blocks += g.Len()
		edges += g.Edges()
		calls += len(g.Calls())
	}
	fmt.Printf("%s: %d functions, %d blocks, %d edges, %d calls\n", args[0], db.Len(), blocks, edges, calls)

	var errs []error
	if err := db.CheckCalls(); err != nil {
		errs = append(errs, err)
	}
	if cycle := db.CallCycle(); cycle != nil {
		errs = append(errs, &path.RecursionError{Cycle: cycle})
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	fmt.Println("OK")
	return nil
}

// dotCmd implements the 'dot' command
var dotCmd = &cobra.Command{
	Use:   "dot <graphs.yaml> [function]",
	Short: "Export control-flow graphs to Graphviz DOT",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runDot,
}

func runDot(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	db, err := loadGraphs(args[0])
	if err != nil {
		return err
	}

	out := cfg.DatabaseDOT(db)
	if len(args) == 2 {
		entry, err := parseAddress("function", args[1])
		if err != nil {
			return err
		}
		g, err := db.Get(entry)
		if err != nil {
			return err
		}
		out = cfg.DOT(g)
	}

	var w io.Writer = os.Stdout
	if dotOutput != "" {
		f, err := os.Create(dotOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err = io.WriteString(w, out)
	return err
}

// archsCmd implements the 'archs' command
var archsCmd = &cobra.Command{
	Use:   "archs",
	Short: "List the supported architectures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Name", "Source", "Description"})
		table.SetAutoWrapText(false)
		for _, name := range arch.Names() {
			a, err := arch.Lookup(name)
			if err != nil {
				return err
			}
			source, desc := "built in", ""
			if t, ok := a.(*arch.Table); ok {
				source, desc = "spec", t.Spec().Description
			}
			table.Append([]string{name, source, desc})
		}
		table.Render()
		return nil
	},
}

// targetCmd groups the target registry commands
var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage named analysis targets",
}

var (
	targetGraphs string
	targetQuery  string
	targetNotes  string
	targetForce  bool
)

func init() {
	targetAddCmd.Flags().StringVar(&targetGraphs, "graphs", "", "Graph file of the target")
	targetAddCmd.Flags().StringVar(&targetQuery, "query", "", "Default query file")
	targetAddCmd.Flags().StringVar(&targetNotes, "notes", "", "Free-form notes")
	_ = targetAddCmd.MarkFlagRequired("graphs")
	targetInitCmd.Flags().BoolVar(&targetForce, "force", false, "Replace an existing configuration file")

	targetCmd.AddCommand(targetInitCmd, targetAddCmd, targetListCmd, targetRemoveCmd, targetLabelCmd)
}

var targetInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with an example target",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := config.CreateDefaultConfig(targetForce)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configPath)
		return nil
	},
}

var targetAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register or update a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := registry.SetTarget(args[0], targetGraphs, targetQuery)
		t.Architecture = archName
		if targetNotes != "" {
			t.Notes = targetNotes
		}
		return registry.Save()
	},
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered targets",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		names := make([]string, 0, len(registry.Targets))
		for name := range registry.Targets {
			names = append(names, name)
		}
		sort.Strings(names)

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Name", "Graphs", "Query", "Last run"})
		table.SetAutoWrapText(false)
		for _, name := range names {
			t := registry.Targets[name]
			last := "never"
			if t.LastRun != nil {
				last = fmt.Sprintf("%s: %d/%d feasible (%s)", t.LastRun.Function, t.LastRun.Feasible,
					t.LastRun.Expansions, t.LastRun.Time.Format("2006-01-02 15:04"))
			}
			table.Append([]string{name, t.Graphs, t.Query, last})
		}
		table.Render()
	},
}

var targetRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !registry.RemoveTarget(args[0]) {
			return fmt.Errorf("unknown target %q", args[0])
		}
		return registry.Save()
	},
}

var targetLabelCmd = &cobra.Command{
	Use:   "label <name> <function> <label>",
	Short: "Name a function of a target",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if registry.GetTarget(args[0]) == nil {
			return fmt.Errorf("unknown target %q", args[0])
		}
		entry, err := parseAddress("function", args[1])
		if err != nil {
			return err
		}
		registry.SetLabel(args[0], entry, args[2])
		return registry.Save()
	},
}
