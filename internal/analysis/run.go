package analysis

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/janvdherrewegen/bootl-attacks/internal/arch"
	"github.com/janvdherrewegen/bootl-attacks/internal/cfg"
	"github.com/janvdherrewegen/bootl-attacks/internal/constraint"
	"github.com/janvdherrewegen/bootl-attacks/internal/graphfile"
	"github.com/janvdherrewegen/bootl-attacks/internal/logging"
	"github.com/janvdherrewegen/bootl-attacks/internal/path"
)

// job is one expansion waiting to be solved.
type job struct {
	path, index int
	ip          *path.InstructionPath
	out         *ExpansionReport
}

// LoadDatabase loads the graph file named by c, honouring its architecture
// override.
func LoadDatabase(c *Config) (*cfg.Database, error) {
	if c.Graphs == "" {
		return nil, &ConfigError{Field: "graphs", Reason: "required"}
	}
	var a arch.Architecture
	if c.Architecture != "" {
		var err error
		if a, err = arch.Lookup(c.Architecture); err != nil {
			return nil, err
		}
	}
	return graphfile.Load(c.Graphs, a)
}

// Run enumerates the paths selected by c, expands them through their calls and
// solves the symbolic variables along every expansion. Enumeration and
// expansion run sequentially; expansions are solved by c.Workers goroutines.
func Run(ctx context.Context, db *cfg.Database, c *Config, logger *zap.Logger) (*Report, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if c.Function == nil {
		return nil, &ConfigError{Field: "function", Reason: "required"}
	}
	entry := c.Entry()
	g, err := db.Get(entry)
	if err != nil {
		return nil, err
	}

	an := path.NewAnalyzer(db, path.Config{Budget: c.Budget, Logger: logger})
	res, err := an.Paths(entry, c.Query())
	if err != nil {
		return nil, err
	}

	report := &Report{
		Function:     hex(entry),
		Name:         g.Name(),
		Architecture: g.Arch().Name(),
		From:         hex(res.Start.Start()),
	}
	for _, t := range res.Targets {
		report.Targets = append(report.Targets, hex(t.Start()))
	}
	if b, err := an.ClockBounds(entry); err == nil {
		report.Bounds = &b
	} else {
		logger.Warn("Function bounds unavailable", zap.String("function", hex(entry)), zap.Error(err))
	}

	var jobs []job
	for n, p := range res.Paths {
		ticks, err := an.PathTicks(p)
		if err != nil {
			return nil, err
		}
		logging.LogPath(entry, p.Starts(), ticks.Min, ticks.Max)

		pr := PathReport{Index: n, Ticks: ticks}
		for _, b := range p.Blocks {
			pr.Blocks = append(pr.Blocks, hex(b.Start()))
		}
		for _, l := range p.Loops {
			lt, err := an.LoopTicks(l)
			if err != nil {
				return nil, err
			}
			lr := LoopReport{Head: hex(l.Head().Start()), Repetitions: l.Repetitions, Ticks: lt}
			for _, b := range l.Blocks {
				lr.Blocks = append(lr.Blocks, hex(b.Start()))
			}
			pr.Loops = append(pr.Loops, lr)
		}

		exps, err := an.Expand(p)
		if err != nil {
			return nil, err
		}
		pr.Expansions = make([]ExpansionReport, len(exps))
		for i, ip := range exps {
			et, err := ip.Ticks(g.Arch())
			if err != nil {
				return nil, err
			}
			pr.Expansions[i] = ExpansionReport{
				Index:        i,
				Instructions: ip.Len(),
				Ticks:        et,
				Listing:      ip.Format(g.Arch()),
			}
			// pr is copied into the report below; the Expansions backing
			// array is shared, so the pointer stays valid
			jobs = append(jobs, job{path: n, index: i, ip: ip, out: &pr.Expansions[i]})
		}
		report.Paths = append(report.Paths, pr)
	}

	if err := solve(ctx, c, g, jobs, logger); err != nil {
		return nil, err
	}
	return report, nil
}

func solve(ctx context.Context, c *Config, g *cfg.Graph, jobs []job, logger *zap.Logger) error {
	vars := c.SolverVariables()
	extra := c.SolverConstraints()
	samples := c.Samples
	if samples == 0 {
		samples = 1
	}
	workers := c.Workers
	if workers == 0 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		done int
	)
	solved := func() {
		if c.OnSolved == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		c.OnSolved(done, len(jobs))
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for n := range jobs {
		j := jobs[n]
		eg.Go(func() error {
			d := constraint.Deriver{Arch: g.Arch(), Logger: logger}
			p, derived, err := constraint.Build(j.ip, d, vars, extra)
			if err != nil {
				return fmt.Errorf("path %d expansion %d: %w", j.path, j.index, err)
			}
			p.MaxSteps = c.MaxSteps
			for _, der := range derived {
				logging.LogConstraint(der.Branch.Address, der.Expr(), der.Registered)
				j.out.Constraints = append(j.out.Constraints, der.String())
			}

			sols, err := p.Solutions(ctx, samples)
			if err != nil {
				return fmt.Errorf("path %d expansion %d: %w", j.path, j.index, err)
			}
			j.out.Feasible = len(sols) > 0
			for _, s := range sols {
				j.out.Solutions = append(j.out.Solutions, s)
				gv := make(map[string]string, len(c.Groups))
				for _, grp := range c.Groups {
					gv[grp.Name] = fmt.Sprintf("0x%x", grp.GroupValue(s))
				}
				if len(gv) > 0 {
					j.out.Groups = append(j.out.Groups, gv)
				}
			}

			first := ""
			if len(sols) > 0 {
				first = sols[0].String()
			}
			logging.LogSolution(j.path, j.index, j.out.Feasible, first)
			solved()
			return nil
		})
	}
	return eg.Wait()
}

func hex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}
