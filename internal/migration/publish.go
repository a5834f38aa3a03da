package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/knowledgeops/kbmigrate/internal/logger"
	"github.com/knowledgeops/kbmigrate/internal/models"
	"github.com/knowledgeops/kbmigrate/internal/platform"
)

const (
	publishRetries    = 3
	publishRetryDelay = 2 * time.Second
)

// Fields the table API is expected to echo back on a successful update.
var updateResultFields = []string{"sys_id", "number", "workflow_state", "short_description"}

// PublishOptions tunes a publishing run.
type PublishOptions struct {
	Workers       int    // concurrent requests, default 10
	WorkflowState string // default "draft"
	DryRun        bool   // log the intended calls, make none
}

func (o PublishOptions) withDefaults() PublishOptions {
	if o.Workers < 1 {
		o.Workers = 10
	}
	if o.WorkflowState == "" {
		o.WorkflowState = "draft"
	}
	return o
}

// PublishStats summarizes one publishing run.
type PublishStats struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
}

// Publisher creates and updates knowledge articles from rewritten records.
// Failures are recorded per record; one bad article never stops the batch.
type Publisher struct {
	sn              *platform.ServiceNow
	author          string
	editor          string
	knowledgeBaseID string
	categoryID      string
	log             logger.Logger

	sleep func(time.Duration) // swapped out in tests

	mu         sync.Mutex
	checkpoint func([]*models.Record)
}

// NewPublisher builds a Publisher bound to one knowledge base and category.
func NewPublisher(sn *platform.ServiceNow, author, editor, knowledgeBaseID, categoryID string, log logger.Logger) *Publisher {
	return &Publisher{
		sn:              sn,
		author:          author,
		editor:          editor,
		knowledgeBaseID: knowledgeBaseID,
		categoryID:      categoryID,
		log:             log,
		sleep:           time.Sleep,
	}
}

// SetCheckpoint installs the persistence callback invoked after each record.
func (p *Publisher) SetCheckpoint(fn func([]*models.Record)) { p.checkpoint = fn }

// CreateAll creates one article per record that does not already have one.
// Records without a body fail validation before any call is made.
func (p *Publisher) CreateAll(ctx context.Context, records []*models.Record, opts PublishOptions) PublishStats {
	opts = opts.withDefaults()
	p.log.Infof("Creating %d articles with %d workers...", len(records), opts.Workers)

	stats := p.runPool(records, opts.Workers, func(rec *models.Record) string {
		return p.createOne(ctx, rec, records, opts)
	})

	p.log.Infof("Create summary: %d processed, %d created, %d skipped, %d failed",
		stats.Processed, stats.Succeeded, stats.Skipped, stats.Failed)
	return stats
}

func (p *Publisher) createOne(ctx context.Context, rec *models.Record, records []*models.Record, opts PublishOptions) string {
	if rec.Failed() {
		return "skip"
	}
	if rec.TargetID != "" {
		p.log.Debugf("Article already exists, skipping: %s (sys_id %s)", rec.Title, rec.TargetID)
		return "skip"
	}
	if rec.Body == "" {
		verr := &ValidationError{Field: "innerHtml", Detail: "article has no body"}
		p.setResult(records, func() { rec.PublishError = verr.Error() })
		p.log.Warnf("Skipping %s: %v", rec.Title, verr)
		return "fail"
	}

	payload := map[string]interface{}{
		"sys_updated_by":      p.author,
		"sys_created_by":      p.editor,
		"workflow_state":      opts.WorkflowState,
		"text":                rec.Body,
		"active":              "true",
		"topic":               "General",
		"short_description":   rec.Title,
		"sys_class_name":      "kb_knowledge",
		"valid_to":            "2100-01-01",
		"display_attachments": "false",
		"kb_knowledge_base":   p.knowledgeBaseID,
		"kb_category":         p.categoryID,
	}

	if opts.DryRun {
		p.log.Infof("[dry run] would create article %q (workflow_state %s)", rec.Title, opts.WorkflowState)
		return "ok"
	}

	var sysID string
	err := p.withRetry(func() error {
		var cerr error
		sysID, cerr = p.sn.CreateArticle(ctx, payload)
		return cerr
	})
	if err != nil {
		p.setResult(records, func() { rec.PublishError = err.Error() })
		p.log.Warnf("Create failed for %s: %v", rec.Title, err)
		return "fail"
	}

	p.setResult(records, func() {
		rec.TargetID = sysID
		rec.PublishError = ""
	})
	p.log.Infof("Created article %q (sys_id %s)", rec.Title, sysID)
	return "ok"
}

// UpdateAll patches the body and workflow state of already-created articles.
// A record without a sys_id or body fails validation before any call.
func (p *Publisher) UpdateAll(ctx context.Context, records []*models.Record, opts PublishOptions) PublishStats {
	opts = opts.withDefaults()
	p.log.Infof("Updating %d articles with %d workers...", len(records), opts.Workers)

	stats := p.runPool(records, opts.Workers, func(rec *models.Record) string {
		return p.updateOne(ctx, rec, records, opts)
	})

	p.log.Infof("Update summary: %d processed, %d updated, %d skipped, %d failed",
		stats.Processed, stats.Succeeded, stats.Skipped, stats.Failed)
	return stats
}

func (p *Publisher) updateOne(ctx context.Context, rec *models.Record, records []*models.Record, opts PublishOptions) string {
	if rec.Failed() {
		return "skip"
	}
	if verr := validateForUpdate(rec); verr != nil {
		p.setResult(records, func() {
			rec.UpdateOK = false
			rec.PublishError = verr.Error()
		})
		p.log.Warnf("Skipping %s: %v", rec.Title, verr)
		return "fail"
	}

	payload := map[string]interface{}{
		"workflow_state":      opts.WorkflowState,
		"text":                rec.Body,
		"active":              "true",
		"display_attachments": "false",
	}

	if opts.DryRun {
		p.log.Infof("[dry run] would update article %q (sys_id %s)", rec.Title, rec.TargetID)
		return "ok"
	}

	var result map[string]interface{}
	err := p.withRetry(func() error {
		var uerr error
		result, uerr = p.sn.UpdateArticle(ctx, rec.TargetID, payload)
		return uerr
	})
	if err != nil {
		p.setResult(records, func() {
			rec.UpdateOK = false
			rec.PublishError = err.Error()
		})
		p.log.Warnf("Update failed for %s: %v", rec.Title, err)
		return "fail"
	}

	if missing := missingResultFields(result); len(missing) > 0 {
		p.setResult(records, func() {
			rec.UpdateOK = false
			rec.PublishError = fmt.Sprintf("article updated, but response missing fields: %v", missing)
		})
		p.log.Warnf("Update response for %s missing fields: %v", rec.Title, missing)
		return "fail"
	}

	p.setResult(records, func() {
		rec.UpdateOK = true
		rec.PublishError = ""
	})
	p.log.Infof("Updated article %q (sys_id %s)", rec.Title, rec.TargetID)
	return "ok"
}

func validateForUpdate(rec *models.Record) *ValidationError {
	if rec.TargetID == "" {
		return &ValidationError{Field: "sys_id", Detail: "article was never created"}
	}
	if rec.Body == "" {
		return &ValidationError{Field: "innerHtml", Detail: "article has no body"}
	}
	return nil
}

func missingResultFields(result map[string]interface{}) []string {
	var missing []string
	for _, f := range updateResultFields {
		if _, ok := result[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// withRetry re-runs fn after rate limiting or a server-side failure, with a
// linearly growing delay. The transport below already absorbs connection
// errors and Retry-After waits; this layer is the batch-level safety net.
func (p *Publisher) withRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= publishRetries; attempt++ {
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
		if attempt < publishRetries {
			p.sleep(publishRetryDelay * time.Duration(attempt))
		}
	}
	return err
}

func isTransient(err error) bool {
	var terr *platform.TransportError
	if !errors.As(err, &terr) {
		return false
	}
	return terr.Status == 429 || terr.Status >= 500 || terr.Status == 0
}

func (p *Publisher) runPool(records []*models.Record, workers int, fn func(*models.Record) string) PublishStats {
	ch := make(chan *models.Record)
	var wg sync.WaitGroup
	var stats PublishStats
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range ch {
				outcome := fn(rec)
				p.mu.Lock()
				stats.Processed++
				switch outcome {
				case "ok":
					stats.Succeeded++
				case "skip":
					stats.Skipped++
				default:
					stats.Failed++
				}
				p.mu.Unlock()
			}
		}()
	}
	for _, rec := range records {
		ch <- rec
	}
	close(ch)
	wg.Wait()
	return stats
}

// setResult applies a record mutation and checkpoints under one lock.
func (p *Publisher) setResult(records []*models.Record, mutate func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mutate()
	if p.checkpoint != nil {
		p.checkpoint(records)
	}
}
