// Command strataggus is the CLI entrypoint for the strataGGus script
// sandbox core: a thin shell around internal/script for local
// smoke-testing and operator use, extending the original engine's
// "-h/--help, -d/--data" contract with a "run" subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "strataggus",
		Short: "strataGGus - just an en[GG]ine for classical 2D RTS games",
		Long: `strataGGus is just an en[GG]ine for classical 2D RTS games.

This binary exercises its embeddable Lua script sandbox core: loading a
mission or modder script under a capability-restricted, memory- and
time-bounded interpreter.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&dataPath, "data", "d", "", "path to game data")

	cmd.AddCommand(newRunCommand(&dataPath))
	return cmd
}
