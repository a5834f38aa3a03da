package migration

import (
	"context"
	"sync"
	"time"

	"github.com/knowledgeops/kbmigrate/internal/logger"
	"github.com/knowledgeops/kbmigrate/internal/models"
	"github.com/knowledgeops/kbmigrate/internal/platform"
)

// ScrapeOptions tunes one scrape run.
type ScrapeOptions struct {
	Segments     []string // allow-list of trailing URL segments to migrate
	SkipDownload bool     // stop after the snapshots are written
}

// ScrapeResult reports where the run's snapshots landed and how extraction went.
type ScrapeResult struct {
	MigratePath string
	ExcludePath string
	ErrorsPath  string

	Discovered int
	InScope    int
	Excluded   int
	Primary    int
	Fallback   int
	Failed     int
}

// Pipeline drives a full scrape: discover pages, split them against the
// allow-list, extract bodies and image descriptors in parallel, persist the
// snapshots, then stage the images of clean records.
type Pipeline struct {
	sp        *platform.SharePoint
	extractor *Extractor
	transfer  *Transfer
	dataDir   string
	pageSize  int
	workers   int
	log       logger.Logger

	now func() time.Time
}

// NewPipeline wires a Pipeline. transfer may be nil when downloads are never
// wanted. workers below 1 falls back to 5.
func NewPipeline(sp *platform.SharePoint, extractor *Extractor, transfer *Transfer, dataDir string, pageSize, workers int, log logger.Logger) *Pipeline {
	if workers < 1 {
		workers = 5
	}
	return &Pipeline{
		sp:        sp,
		extractor: extractor,
		transfer:  transfer,
		dataDir:   dataDir,
		pageSize:  pageSize,
		workers:   workers,
		log:       log,
		now:       time.Now,
	}
}

// Scrape runs the discovery half of the migration end to end. A mid-pagination
// discovery failure is logged and the run continues with the partial page set;
// per-page extraction failures land on the records, never abort the run.
func (p *Pipeline) Scrape(ctx context.Context, opts ScrapeOptions) (*ScrapeResult, error) {
	pages, err := p.sp.ListPages(ctx, p.pageSize)
	if err != nil {
		p.log.Warnf("Discovery incomplete, continuing with %d pages: %v", len(pages), err)
	}
	p.log.Infof("Discovered %d pages", len(pages))

	inScope, excluded := Partition(pages, opts.Segments)
	p.log.Infof("Partitioned: %d to migrate, %d to exclude", len(inScope), len(excluded))

	migrate := p.extractAll(ctx, inScope, true)
	skipped := p.extractAll(ctx, excluded, false)

	res := &ScrapeResult{
		Discovered: len(pages),
		InScope:    len(migrate),
		Excluded:   len(skipped),
	}
	for _, rec := range migrate {
		switch rec.Outcome {
		case models.OutcomePrimary:
			res.Primary++
		case models.OutcomeFallback:
			res.Fallback++
		case models.OutcomeFailed:
			res.Failed++
		}
	}
	p.log.Infof("Extraction methods: %d graph, %d page scrape, %d failed",
		res.Primary, res.Fallback, res.Failed)

	res.MigratePath, res.ExcludePath, res.ErrorsPath = models.SnapshotPaths(p.dataDir, p.now())
	if err := models.SaveSnapshot(res.MigratePath, migrate); err != nil {
		return nil, err
	}
	if err := models.SaveSnapshot(res.ExcludePath, skipped); err != nil {
		return nil, err
	}
	ledger := models.ErrorLedger(append(append([]*models.Record{}, migrate...), skipped...))
	if err := models.SaveLedger(res.ErrorsPath, ledger); err != nil {
		return nil, err
	}
	p.log.Infof("Snapshots written: %s, %s, %s", res.MigratePath, res.ExcludePath, res.ErrorsPath)

	if opts.SkipDownload || p.transfer == nil {
		return res, nil
	}

	p.transfer.SetCheckpoint(func(records []*models.Record) {
		if err := models.SaveSnapshot(res.MigratePath, records); err != nil {
			p.log.Warnf("checkpoint save failed: %v", err)
		}
	})
	p.transfer.DownloadAll(ctx, migrate)
	if err := models.SaveSnapshot(res.MigratePath, migrate); err != nil {
		return nil, err
	}
	return res, nil
}

// extractAll runs the extractor over the pages on a bounded worker pool,
// preserving discovery order in the result.
func (p *Pipeline) extractAll(ctx context.Context, pages []platform.ListItem, includeImages bool) []*models.Record {
	records := make([]*models.Record, len(pages))
	ch := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range ch {
				records[idx] = p.extractor.Extract(ctx, pages[idx], includeImages)
			}
		}()
	}
	for i := range pages {
		ch <- i
	}
	close(ch)
	wg.Wait()
	return records
}
