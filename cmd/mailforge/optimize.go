package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newOptimizeCmd() *cobra.Command {
	var analyzeOnly bool
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "run one index maintenance pass, or print a health report with --analyze-only",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			if !analyzeOnly {
				if err := a.opt.RunMaintenance(ctx); err != nil {
					return err
				}
			}
			report, err := a.opt.Analyze(ctx)
			if err != nil {
				return err
			}
			buf, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(buf))
			return nil
		},
	}
	cmd.Flags().BoolVar(&analyzeOnly, "analyze-only", false, "skip maintenance passes, just print the cached health report")
	return cmd
}
