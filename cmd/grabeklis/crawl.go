package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pazars/grabeklis/internal/usecase"
	"github.com/pazars/grabeklis/pkg/metrics"
)

func newCrawlCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl articles published since the archive watermark",
		Long: `Walk the sitemap, fetch every article newer than the archive watermark,
write the run's batches and merge them into the archive.

SIGINT and SIGTERM stop scheduling new pages; what was fetched is still merged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			crawler, release, err := a.crawlerFactory(metrics.New())(ctx, usecase.RunRequest{})
			if err != nil {
				return err
			}
			defer release()

			stats, err := crawler.Run(ctx)
			if stats.RunID != "" {
				renderRunStats(cmd.OutOrStdout(), stats)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.String("sitemap", "", "root sitemap URL (SITEMAP_URL)")
	f.String("dt-from", "", "crawl articles modified after YYYYMMDDHHMMSS instead of the watermark (DT_FROM)")
	f.Int("scrape-days", 0, "crawl articles from midnight N days ago (SCRAPE_DAYS)")
	f.Int("max-items", 0, "stop after N saved articles, 0 for no limit (MAX_ITEMS)")
	f.Bool("dry-run", false, "crawl without writing the run or touching the archive (DRY_RUN)")
	f.String("fetcher", "", "page fetcher, colly or chromedp (FETCHER)")
	return cmd
}
