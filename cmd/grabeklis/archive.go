package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/archive"
)

func newMergeCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "merge [run]",
		Short: "Merge a run directory into the archive",
		Long: `Merge the batches and failures of one run (a YYYYMMDDHHMMSS directory
name or a path) into the archive. With --all every run is merged in order.
Merging a run twice leaves the archive unchanged.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give either a run or --all")
			}
			mgr, release, err := a.archiveManager(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer release()

			var reports []archive.MergeReport
			if all {
				reports, err = mgr.MergeAll(cmd.Context())
			} else {
				var r archive.MergeReport
				r, err = mgr.Merge(cmd.Context(), args[0])
				reports = []archive.MergeReport{r}
			}
			if err != nil {
				return err
			}
			renderMergeReports(cmd.OutOrStdout(), reports)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "merge every run directory")
	cmd.Flags().String("policy", "", "conflict policy, keep_existing or replace (MERGE_POLICY)")
	return cmd
}

func newRebuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild history.json and summary.json from the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, release, err := a.archiveManager(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer release()

			summary, err := mgr.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			renderArchiveSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func newPruneFailedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune-failed",
		Short: "Remove failures whose URL is archived successfully",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, release, err := a.archiveManager(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer release()

			removed, err := mgr.PruneFailed(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("Pruned failure archive", zap.Int("removed", removed))
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d failures\n", removed)
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show archive statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, release, err := a.archiveManager(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer release()

			overview, err := mgr.Overview(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), overview)
			}
			renderOverview(cmd.OutOrStdout(), overview)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")
	return cmd
}
