// Command mailforge is the CLI entrypoint: a cobra root over serve/enqueue/
// status/optimize subcommands, configured via internal/config (viper).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "mailforge",
		Short: "mailforge runs the task queue, search index, and their workers",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (optional; env vars override)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newEnqueueCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newOptimizeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
