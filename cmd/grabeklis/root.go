package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/pkg/config"
	"github.com/pazars/grabeklis/pkg/logger"
)

// flagKeys maps command-line flags onto configuration keys. Flags win over
// the environment when they are set.
var flagKeys = map[string]string{
	"data-dir":     "DATA_DIR",
	"spider":       "SPIDER_NAME",
	"log-level":    "LOG_LEVEL",
	"log-encoding": "LOG_ENCODING",
	"sitemap":      "SITEMAP_URL",
	"dt-from":      "DT_FROM",
	"scrape-days":  "SCRAPE_DAYS",
	"max-items":    "MAX_ITEMS",
	"dry-run":      "DRY_RUN",
	"fetcher":      "FETCHER",
	"policy":       "MERGE_POLICY",
	"port":         "SERVER_PORT",
	"schedule":     "SCHEDULE",
}

// app carries what every command needs once flags are parsed.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadDotenv(); err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = log.With(zap.String("spider", cfg.SpiderName))
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "grabeklis",
		Short:         "Incremental sitemap crawler and article archive",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.String("data-dir", "", "archive root directory (DATA_DIR)")
	pf.String("spider", "", "spider name, the archive lives in <data-dir>/<spider> (SPIDER_NAME)")
	pf.String("log-level", "", "log level (LOG_LEVEL)")
	pf.String("log-encoding", "", "log encoding, json or console (LOG_ENCODING)")

	root.AddCommand(
		newCrawlCmd(a),
		newPageCmd(a),
		newMergeCmd(a),
		newRebuildCmd(a),
		newPruneFailedCmd(a),
		newStatsCmd(a),
		newServeCmd(a),
		newScheduleCmd(a),
	)
	return root
}
