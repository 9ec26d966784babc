package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewSweepCmd runs a single lifecycle sweep and exits when its matches are done.
func NewSweepCmd(configPath *string) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run due matches once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), *configPath, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run every match regardless of its start time")
	return cmd
}

func runSweep(ctx context.Context, configPath string, all bool) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	var notifier fanout
	if b.synchro != nil {
		notifier = append(notifier, b.synchro)
	}
	service := b.service(notifier)

	run := service.RunDueMatches
	if all || cfg.Match.Debug {
		run = service.RunAllMatches
	}
	res, err := run(ctx)
	if err != nil {
		return err
	}
	logger.Info("sweep finished", "candidates", res.Candidates, "claimed", res.Claimed, "completed", res.Completed)
	return nil
}
