package main

import (
	"github.com/spf13/cobra"

	"github.com/knowledgeops/kbmigrate/internal/migration"
	"github.com/knowledgeops/kbmigrate/internal/models"
)

func newRewriteCmd() *cobra.Command {
	var inputFile string
	var outputFile string
	var restoreFrom string

	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Rewrite article bodies for the knowledge-base editor",
		Long: `Rewrite replaces image placeholders with attachment img tags, absolutizes
site-relative links, and normalizes the markup. Run it after upload, so the
attachment sys_ids are available. --restore-bodies-from restores bodies by
record id from an earlier snapshot first, for when a later export mangled
them.`,
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

			if restoreFrom != "" {
				restored, err := restoreBodies(records, restoreFrom)
				if err != nil {
					return err
				}
				a.log.Infof("Restored %d bodies from %s", restored, restoreFrom)
			}

			rw := migration.NewRewriter(a.cfg.SharePoint.WebBaseURL)
			rewritten := 0
			for _, rec := range records {
				if rec.Failed() || rec.Body == "" {
					continue
				}
				body, links, err := rw.Rewrite(rec.Body, rec.Assets)
				if err != nil {
					a.log.Warnf("Rewrite failed for %s: %v", rec.Title, err)
					continue
				}
				rec.Body = body
				rec.Links = links
				rewritten++
			}
			a.log.Infof("Rewrote %d of %d articles", rewritten, len(records))

			if outputFile == "" {
				outputFile = inputFile
			}
			return models.SaveSnapshot(outputFile, records)
		},
	}

	cmd.Flags().StringVar(&inputFile, "input-file", "", "Snapshot JSON with uploaded images")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "Where to write the rewritten snapshot (default: in place)")
	cmd.Flags().StringVar(&restoreFrom, "restore-bodies-from", "", "Earlier snapshot to restore article bodies from, by record id")
	cmd.MarkFlagRequired("input-file")
	return cmd
}

// restoreBodies copies Body into records from a previous snapshot, matched by
// record id. Records without a counterpart are left alone.
func restoreBodies(records []*models.Record, path string) (int, error) {
	old, err := models.LoadSnapshot(path)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*models.Record, len(old))
	for _, rec := range old {
		byID[rec.ID] = rec
	}
	restored := 0
	for _, rec := range records {
		if prev, ok := byID[rec.ID]; ok && prev.Body != "" {
			rec.Body = prev.Body
			restored++
		}
	}
	return restored, nil
}
