package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pazars/grabeklis/internal/usecase"
)

func newPageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page <url>",
		Short: "Fetch one article and print the extracted record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := a.extractor()
			if err != nil {
				return err
			}
			pages, _ := a.fetchers()

			result, err := usecase.NewPageUseCase(pages, ex).Scrape(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if result.OK() {
				return writeJSON(cmd.OutOrStdout(), result.Article)
			}
			if err := writeJSON(cmd.OutOrStdout(), result.Failure); err != nil {
				return err
			}
			return fmt.Errorf("extract %s: %s", args[0], result.Failure.Error)
		},
	}
	cmd.Flags().String("fetcher", "", "page fetcher, colly or chromedp (FETCHER)")
	return cmd
}
