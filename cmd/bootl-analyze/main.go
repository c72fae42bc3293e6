// Bootl-analyze finds the execution paths through bootloader routines that
// fault injection has to steer, bounds their clock-cycle cost and solves for
// the inputs that select each path.
//
// It works on control-flow graphs exported from a disassembler into the YAML
// graph format (see internal/graphfile):
//
//   - Path enumeration between two blocks, with loops
//   - Clock-cycle bounds per path and per function, following calls
//   - Equivalence classes of symbolic inputs per instruction path
//   - Graph checks and Graphviz export
//
// Usage:
//
//	bootl-analyze [command] [flags]
//
// See 'bootl-analyze --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/janvdherrewegen/bootl-attacks/internal/logging"
	"github.com/janvdherrewegen/bootl-attacks/internal/version"
)

func main() {
	err := rootCmd.Execute()
	if err != nil {
		logging.Error("Command failed", zap.Error(err))
	}
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bootl-analyze",
	Short: "Bootloader fault-injection path analysis",
	Long: `Path and timing analysis of bootloader routines for fault injection.

Given control-flow graphs exported from a disassembler, bootl-analyze:
  - Enumerates the block paths between two points of a function
  - Bounds the clock cycles each path takes, following calls
  - Derives the branch constraints along every instruction path
  - Solves them for the inputs that force execution down that path

Logging is silent unless BOOTL_LOG_LEVEL is set or --verbose is given.`,
	Version: version.Get().Version,
	Example: `  # Solve a query file
  bootl-analyze solve queries/checksum.yaml

  # List the paths from a function entry to its error exits
  bootl-analyze paths graphs/boot.yaml 0x1aa8 --terminal error

  # Cycle bounds of every function in a graph file
  bootl-analyze bounds graphs/boot.yaml`,
	PersistentPreRunE: setup,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bootl-analyze %s\n", version.Get())
		if verbose {
			for _, dep := range version.Get().Deps {
				fmt.Printf("  %s\n", dep)
			}
		}
	},
}
