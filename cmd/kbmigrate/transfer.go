package main

import (
	"github.com/spf13/cobra"

	"github.com/knowledgeops/kbmigrate/internal/migration"
	"github.com/knowledgeops/kbmigrate/internal/models"
)

func newDownloadCmd() *cobra.Command {
	var inputFile string
	var workers int

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the images of a scraped snapshot to the staging directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			records, err := models.LoadSnapshot(inputFile)
			if err != nil {
				return err
			}

			sp, err := a.sharePoint()
			if err != nil {
				return err
			}
			drives, err := sp.ListDrives(cmd.Context())
			if err != nil {
				return err
			}

			if workers <= 0 {
				workers = a.cfg.Workers
			}
			resolver := migration.NewResolver(drives)
			transfer := migration.NewTransfer(sp, nil, resolver, a.cfg.ImagesDir, "", workers, a.log)
			transfer.SetCheckpoint(snapshotCheckpoint(a, inputFile))

			transfer.DownloadAll(cmd.Context(), records)
			return models.SaveSnapshot(inputFile, records)
		},
	}

	cmd.Flags().StringVar(&inputFile, "input-file", "", "Snapshot JSON produced by scrape")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent downloads (default from config)")
	cmd.MarkFlagRequired("input-file")
	return cmd
}

func newUploadCmd() *cobra.Command {
	var inputFile string
	var workers int

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload staged images as knowledge-base attachments",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			records, err := models.LoadSnapshot(inputFile)
			if err != nil {
				return err
			}

			sn, err := a.serviceNow()
			if err != nil {
				return err
			}

			if workers <= 0 {
				workers = a.cfg.Workers
			}
			transfer := migration.NewTransfer(nil, sn, nil, a.cfg.ImagesDir, a.cfg.ServiceNow.KnowledgeBaseID, workers, a.log)
			transfer.SetCheckpoint(snapshotCheckpoint(a, inputFile))

			transfer.UploadAll(cmd.Context(), records)
			return models.SaveSnapshot(inputFile, records)
		},
	}

	cmd.Flags().StringVar(&inputFile, "input-file", "", "Snapshot JSON with staged images")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent uploads (default from config)")
	cmd.MarkFlagRequired("input-file")
	return cmd
}

// snapshotCheckpoint persists the record set back to path after each mutated
// entity; a failed save is logged and the run keeps going.
func snapshotCheckpoint(a *app, path string) func([]*models.Record) {
	return func(records []*models.Record) {
		if err := models.SaveSnapshot(path, records); err != nil {
			a.log.Warnf("checkpoint save failed: %v", err)
		}
	}
}
