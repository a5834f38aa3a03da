package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/knowledgeops/kbmigrate/internal/models"
	"github.com/knowledgeops/kbmigrate/internal/report"
)

func newReportCmd() *cobra.Command {
	var inputFile string
	var errorsFile string
	var outputFile string
	var serve bool
	var addr string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the migration review report",
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

			var ledger []models.LedgerEntry
			if errorsFile != "" {
				data, err := os.ReadFile(errorsFile)
				if err != nil {
					return fmt.Errorf("reading %s: %w", errorsFile, err)
				}
				if err := json.Unmarshal(data, &ledger); err != nil {
					return fmt.Errorf("parsing %s: %w", errorsFile, err)
				}
			}

			data := report.Build(records, ledger, a.cfg.ServiceNow.BaseURL)
			if err := report.WriteFile(outputFile, data); err != nil {
				return err
			}
			a.log.Infof("Report written to %s (%d articles, %d need review)",
				outputFile, data.Stats.Articles, data.Stats.NeedsReview)

			if !serve {
				return nil
			}

			router := report.NewRouter(report.ServerConfig{
				ReportPath: outputFile,
				DataDir:    a.cfg.DataDir,
				ImagesDir:  a.cfg.ImagesDir,
			})
			a.log.Infof("Serving review report on %s", addr)
			srv := &http.Server{Addr: addr, Handler: router}
			go func() {
				<-cmd.Context().Done()
				srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputFile, "input-file", "", "Migration snapshot JSON")
	cmd.Flags().StringVar(&errorsFile, "errors-file", "", "Error ledger JSON written by scrape")
	cmd.Flags().StringVar(&outputFile, "output", "migration_report.html", "Where to write the report")
	cmd.Flags().BoolVar(&serve, "serve", false, "Serve the report, snapshots and staged images over HTTP")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address for --serve")
	cmd.MarkFlagRequired("input-file")
	return cmd
}
