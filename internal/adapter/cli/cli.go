// Package cli wires the reviewer's collaborators (config, gitengine,
// provider clients, forge clients, orchestrator, reporter, cache,
// tracking) into two cobra subcommands, grounded on the teacher's
// cmd/cr/main.go wiring and on the pack's cobra-based CLI shape
// (shahar-caura-forge's cmd/forge/main.go newRootCmd/newXxxCmd split).
// isOutputTerminal carries over the teacher's
// internal/usecase/review/tty.go IsOutputTerminal helper, generalized
// here to golang.org/x/term directly.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isOutputTerminal reports whether stdout is attached to an interactive
// terminal. The run and doctor commands do not consult it: run always
// writes the JSON-lines log, whatever stdout is attached to.
func isOutputTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// NewRootCommand builds the "reviewer" root command with its two
// subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "reviewer",
		Short:         "AI-assisted pull request review orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to reviewer.yaml (defaults to ./reviewer.yaml)")

	root.AddCommand(newRunCommand())
	root.AddCommand(newDoctorCommand())
	return root
}
