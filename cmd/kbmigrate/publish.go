package main

import (
	"github.com/spf13/cobra"

	"github.com/knowledgeops/kbmigrate/internal/migration"
	"github.com/knowledgeops/kbmigrate/internal/models"
)

func newCreateCmd() *cobra.Command {
	var inputFile string
	var batchSize int
	var workflowState string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create knowledge articles from rewritten records",
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

			pub, err := newPublisher(a)
			if err != nil {
				return err
			}
			if !dryRun {
				pub.SetCheckpoint(snapshotCheckpoint(a, inputFile))
			}

			pub.CreateAll(cmd.Context(), records, migration.PublishOptions{
				Workers:       firstPositive(batchSize, a.cfg.PublishWorkers),
				WorkflowState: workflowState,
				DryRun:        dryRun,
			})

			if dryRun {
				return nil
			}
			return models.SaveSnapshot(inputFile, records)
		},
	}

	addPublishFlags(cmd, &inputFile, &batchSize, &workflowState, &dryRun)
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var inputFile string
	var batchSize int
	var workflowState string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update existing knowledge articles with rewritten bodies",
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

			pub, err := newPublisher(a)
			if err != nil {
				return err
			}
			if !dryRun {
				pub.SetCheckpoint(snapshotCheckpoint(a, inputFile))
			}

			pub.UpdateAll(cmd.Context(), records, migration.PublishOptions{
				Workers:       firstPositive(batchSize, a.cfg.PublishWorkers),
				WorkflowState: workflowState,
				DryRun:        dryRun,
			})

			if dryRun {
				return nil
			}
			return models.SaveSnapshot(inputFile, records)
		},
	}

	addPublishFlags(cmd, &inputFile, &batchSize, &workflowState, &dryRun)
	return cmd
}

func newPublisher(a *app) (*migration.Publisher, error) {
	sn, err := a.serviceNow()
	if err != nil {
		return nil, err
	}
	c := a.cfg.ServiceNow
	return migration.NewPublisher(sn, c.Author, c.Editor, c.KnowledgeBaseID, c.CategoryID, a.log), nil
}

func addPublishFlags(cmd *cobra.Command, inputFile *string, batchSize *int, workflowState *string, dryRun *bool) {
	cmd.Flags().StringVar(inputFile, "input-file", "", "Rewritten snapshot JSON")
	cmd.Flags().IntVar(batchSize, "batch-size", 0, "Concurrent requests (default from config)")
	cmd.Flags().StringVar(workflowState, "workflow-state", "draft", "Workflow state for the articles")
	cmd.Flags().BoolVar(dryRun, "dry-run", false, "Log intended calls without making any")
	cmd.MarkFlagRequired("input-file")
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
