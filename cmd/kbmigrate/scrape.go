package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knowledgeops/kbmigrate/internal/migration"
)

func newScrapeCmd() *cobra.Command {
	var segmentsFile string
	var skipDownload bool
	var workers int

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Discover, filter and extract site pages, then stage their images",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			segments, err := migration.ReadSegmentsFile(segmentsFile)
			if err != nil {
				return err
			}

			sp, err := a.sharePoint()
			if err != nil {
				return err
			}

			if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
				return fmt.Errorf("creating data dir: %w", err)
			}

			if workers <= 0 {
				workers = a.cfg.Workers
			}

			var transfer *migration.Transfer
			if !skipDownload {
				drives, err := sp.ListDrives(cmd.Context())
				if err != nil {
					return err
				}
				resolver := migration.NewResolver(drives)
				transfer = migration.NewTransfer(sp, nil, resolver, a.cfg.ImagesDir, "", workers, a.log)
			}

			extractor := migration.NewExtractor(sp, a.log)
			pipeline := migration.NewPipeline(sp, extractor, transfer, a.cfg.DataDir, a.cfg.DiscoveryPageSize, workers, a.log)

			res, err := pipeline.Scrape(cmd.Context(), migration.ScrapeOptions{
				Segments:     segments,
				SkipDownload: skipDownload,
			})
			if err != nil {
				return err
			}

			a.log.Infof("Scrape complete: %d discovered, %d to migrate (%d graph, %d scraped, %d failed), %d excluded",
				res.Discovered, res.InScope, res.Primary, res.Fallback, res.Failed, res.Excluded)
			return nil
		},
	}

	cmd.Flags().StringVar(&segmentsFile, "segments-file", "", "File listing trailing URL segments to migrate, one per line")
	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Stop after writing snapshots, do not download images")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent extractions and downloads (default from config)")
	cmd.MarkFlagRequired("segments-file")
	return cmd
}
