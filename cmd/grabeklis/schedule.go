package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/usecase"
	"github.com/pazars/grabeklis/pkg/metrics"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func newScheduleCmd(a *app) *cobra.Command {
	var withServer bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the crawl on a cron schedule",
		Long: `Run the crawl on a five-field cron expression evaluated in Europe/Riga
time. A tick that fires while the previous crawl is still running is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			if withServer {
				m.WithProcessCollectors()
			}
			runs := usecase.NewRunManager(a.crawlerFactory(m), a.logger)

			c, err := a.newCron(ctx, runs)
			if err != nil {
				return err
			}
			c.Start()
			a.logger.Info("Scheduler started",
				zap.String("schedule", a.cfg.Schedule),
				zap.Time("next", c.Entries()[0].Next),
			)

			if withServer {
				err = a.serve(ctx, m, runs)
			} else {
				<-ctx.Done()
				err = runs.Shutdown(context.WithoutCancel(ctx))
			}
			<-c.Stop().Done()
			a.logger.Info("Scheduler stopped")
			return err
		},
	}
	cmd.Flags().String("schedule", "", "cron expression (SCHEDULE)")
	cmd.Flags().BoolVar(&withServer, "serve", false, "also serve the HTTP API")
	return cmd
}

func (a *app) newCron(ctx context.Context, runs usecase.RunController) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(a.logger.Named("cron")))
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(entity.SiteLocation),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	_, err := c.AddFunc(a.cfg.Schedule, func() {
		stats, err := runs.RunNow(ctx, usecase.RunRequest{})
		switch {
		case errors.Is(err, usecase.ErrRunInProgress):
			a.logger.Warn("Previous crawl still running, tick skipped")
		case err != nil:
			a.logger.Error("Scheduled crawl failed", zap.String("run_id", stats.RunID), zap.Error(err))
		default:
			a.logger.Info("Scheduled crawl finished",
				zap.String("run_id", stats.RunID),
				zap.String("close_reason", stats.CloseReason),
				zap.Int("item_saved_count", stats.ItemSavedCount),
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", a.cfg.Schedule, err)
	}
	return c, nil
}
