package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/houra-app/houra/internal/scheduler"
	"github.com/houra-app/houra/internal/service/agent"
)

// newScheduledCmd runs one autonomous pass and prints the summary. With
// --student only that student is visited; otherwise every active student is.
func newScheduledCmd() *cobra.Command {
	var studentFlag string
	cmd := &cobra.Command{
		Use:   "scheduled",
		Short: "Run one autonomous agent pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close(ctx)
			agentSvc := agent.New(store, newProposer(cfg, logger), logger)

			var out any
			if studentFlag != "" {
				studentID, err := uuid.Parse(studentFlag)
				if err != nil {
					return fmt.Errorf("invalid --student: %w", err)
				}
				out, err = agentSvc.RunAutonomous(ctx, studentID, agent.AutonomousInput{
					Objective: cfg.Scheduler.Objective,
					Model:     cfg.Agent.Model,
				})
				if err != nil {
					return err
				}
			} else {
				sched := scheduler.New(scheduler.Config{
					Enabled:     true,
					Objective:   cfg.Scheduler.Objective,
					Model:       cfg.Agent.Model,
					Concurrency: cfg.Scheduler.Concurrency,
				}, agentSvc, store, logger)
				out, err = sched.Pass(ctx)
				if err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&studentFlag, "student", "", "student id to run for (default: all active students)")
	return cmd
}
