package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// newScheduleCmd re-runs the batch grading path on a cron schedule,
// supplementing the original system's nightly "grade pending
// submissions" usage pattern with an explicit, operator-controlled
// recurring mode instead of an external crontab entry.
func newScheduleCmd() *cobra.Command {
	var questionPath, answersDir, outDir, cronExpr string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the batch grading path on a recurring cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withSignalContext()
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			stopMetrics := serveMetrics(cfg.MetricsAddr)
			defer func() { _ = stopMetrics(context.Background()) }()

			c := cron.New()
			_, err = c.AddFunc(cronExpr, func() {
				runID := time.Now().UTC().Format("20060102T150405Z")
				out := ""
				if outDir != "" {
					out = fmt.Sprintf("%s/%s.json", outDir, runID)
				}
				a.log.Infof("schedule: starting run %s", runID)
				if err := runBatch(ctx, a, questionPath, answersDir, out); err != nil {
					a.log.Errorf("schedule: run %s failed: %v", runID, err)
				}
			})
			if err != nil {
				return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
			}

			a.log.Infof("schedule: running %q on %q", cronExpr, answersDir)
			c.Start()
			defer c.Stop()

			<-ctx.Done()
			a.log.Infof("schedule: shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&questionPath, "question", "", "path to a YAML/JSON question+rubric file")
	cmd.Flags().StringVar(&answersDir, "answers-dir", "", "directory of per-student plain-text answer files, re-scanned on every tick")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory to write one timestamped result file per run (stdout is not used in schedule mode)")
	cmd.Flags().StringVar(&cronExpr, "cron", "@daily", "standard 5-field cron expression for the batch re-run")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("answers-dir")

	return cmd
}
