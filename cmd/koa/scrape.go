package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/koa/pkg/scraper"
)

var flagNoPDFs bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape every subdomain listed in the domain CSV files into the corpus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		subdomains, err := scraper.ReadDomains(cfg.Scraper.DomainsDir, logger)
		if err != nil {
			return err
		}
		if len(subdomains) == 0 {
			return fmt.Errorf("no subdomains found in %s", cfg.Scraper.DomainsDir)
		}

		color.Blue("\nScraping %d subdomains into %s\n", len(subdomains), cfg.Corpus.Dir)
		bar := getProgressBar(len(subdomains), " Scraping subdomains")

		s := scraper.NewWithConfig(scraper.ScraperConfig{
			OutputDir:  cfg.Corpus.Dir,
			RateLimit:  cfg.Scraper.RateLimit,
			MaxWorkers: cfg.Scraper.MaxWorkers,
			Timeout:    time.Duration(cfg.Scraper.TimeoutSec) * time.Second,
			FetchPDFs:  cfg.FetchPDFs() && !flagNoPDFs,
			OnProgress: func(string) { bar.Add(1) },
			Logger:     logger,
		})

		written, err := s.ScrapeAll(cmd.Context(), subdomains)
		bar.Finish()
		if err != nil {
			return err
		}

		color.Green("\n✓ Wrote %d of %d documents\n", written, len(subdomains))
		return nil
	},
}

func init() {
	scrapeCmd.Flags().BoolVar(&flagNoPDFs, "no-pdfs", false, "skip downloading linked PDFs")
	rootCmd.AddCommand(scrapeCmd)
}
