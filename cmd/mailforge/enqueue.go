package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itskum47/mailforge/internal/task"
)

func newEnqueueCmd() *cobra.Command {
	var (
		kind        string
		payload     string
		priority    string
		maxAttempts int
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "enqueue a task against the running KV substrate",
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

			id, err := a.sched.Enqueue(context.Background(), task.Kind(kind), []byte(payload), task.EnqueueOptions{
				Priority:    task.Priority(priority),
				MaxAttempts: maxAttempts,
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "task kind, e.g. process_email")
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON payload for the task")
	cmd.Flags().StringVar(&priority, "priority", "normal", "one of high, normal, low")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "override the default max attempts (0 keeps the scheduler default)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}
