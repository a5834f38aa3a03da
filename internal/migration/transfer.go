package migration

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/knowledgeops/kbmigrate/internal/logger"
	"github.com/knowledgeops/kbmigrate/internal/models"
	"github.com/knowledgeops/kbmigrate/internal/platform"
)

// TransferStats summarizes one transfer direction over a record set.
type TransferStats struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
}

// Transfer moves assets: from the SharePoint drive to the local staging
// directory, and from there to ServiceNow attachments. Both directions run on a
// bounded worker pool, are per-asset idempotent, and never abort siblings.
type Transfer struct {
	sp         *platform.SharePoint
	sn         *platform.ServiceNow
	resolver   *Resolver
	imagesDir  string
	tableSysID string
	workers    int
	log        logger.Logger

	// checkpoint, when set, persists the record set after every mutated
	// asset so an interrupted run resumes where it stopped.
	checkpoint func([]*models.Record)

	mu sync.Mutex // guards asset mutation + checkpoint
}

// NewTransfer builds a Transfer. workers below 1 falls back to 5.
func NewTransfer(sp *platform.SharePoint, sn *platform.ServiceNow, resolver *Resolver, imagesDir, tableSysID string, workers int, log logger.Logger) *Transfer {
	if workers < 1 {
		workers = 5
	}
	return &Transfer{
		sp:         sp,
		sn:         sn,
		resolver:   resolver,
		imagesDir:  imagesDir,
		tableSysID: tableSysID,
		workers:    workers,
		log:        log,
	}
}

// SetCheckpoint installs the persistence callback invoked after each asset.
func (t *Transfer) SetCheckpoint(fn func([]*models.Record)) { t.checkpoint = fn }

type assetJob struct {
	rec   *models.Record
	asset *models.Asset
}

func collectJobs(records []*models.Record) []assetJob {
	var jobs []assetJob
	for _, rec := range records {
		if rec.Failed() {
			continue
		}
		for i := range rec.Assets {
			jobs = append(jobs, assetJob{rec: rec, asset: &rec.Assets[i]})
		}
	}
	return jobs
}

func (t *Transfer) runPool(jobs []assetJob, fn func(assetJob)) {
	ch := make(chan assetJob)
	var wg sync.WaitGroup
	for i := 0; i < t.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range ch {
				fn(job)
			}
		}()
	}
	for _, job := range jobs {
		ch <- job
	}
	close(ch)
	wg.Wait()
}

// stagedName is the local file name for a reference: the final path segment
// of its decoded normal form.
func stagedName(ref string) string {
	return path.Base(NormalizeRef(ref))
}

// DownloadAll stages every asset of every non-failed record locally.
// An asset whose staged file already exists is skipped without any network
// traffic, which is what makes re-runs cheap.
func (t *Transfer) DownloadAll(ctx context.Context, records []*models.Record) TransferStats {
	jobs := collectJobs(records)
	t.log.Infof("Downloading %d images with %d workers...", len(jobs), t.workers)

	var stats TransferStats
	t.runPool(jobs, func(job assetJob) {
		outcome := t.downloadOne(ctx, job, records)
		t.mu.Lock()
		stats.Processed++
		switch outcome {
		case "ok":
			stats.Succeeded++
		case "skip":
			stats.Skipped++
		default:
			stats.Failed++
		}
		t.mu.Unlock()
	})

	t.log.Infof("Download summary: %d processed, %d downloaded, %d already staged, %d failed",
		stats.Processed, stats.Succeeded, stats.Skipped, stats.Failed)
	return stats
}

func (t *Transfer) downloadOne(ctx context.Context, job assetJob, records []*models.Record) string {
	asset := job.asset
	if asset.SourceRef == "" {
		return "skip"
	}

	filename := stagedName(asset.SourceRef)
	relPath := filepath.ToSlash(filepath.Join(t.imagesDir, job.rec.ID, filename))

	if _, err := os.Stat(relPath); err == nil {
		t.setAssetResult(records, func() {
			asset.StagedPath = relPath
			asset.DownloadError = ""
		})
		t.log.Debugf("Already staged, skipping: %s", relPath)
		return "skip"
	}

	driveID, filePath, err := t.resolver.Resolve(asset.SourceRef)
	if err != nil {
		t.setAssetResult(records, func() { asset.DownloadError = err.Error() })
		t.log.Warnf("Resolve failed: %v", err)
		return "fail"
	}

	downloadURL, err := t.sp.DriveItemDownloadURL(ctx, driveID, filePath)
	if err != nil {
		t.setAssetResult(records, func() { asset.DownloadError = fmt.Sprintf("requesting download URL: %v", err) })
		t.log.Warnf("No download URL for %s: %v", asset.SourceRef, err)
		return "fail"
	}

	if err := t.streamToFile(ctx, downloadURL, relPath); err != nil {
		t.setAssetResult(records, func() { asset.DownloadError = err.Error() })
		t.log.Warnf("Download failed for %s: %v", asset.SourceRef, err)
		return "fail"
	}

	t.setAssetResult(records, func() {
		asset.StagedPath = relPath
		asset.DownloadError = ""
	})
	t.log.Infof("Downloaded %s", relPath)
	return "ok"
}

func (t *Transfer) streamToFile(ctx context.Context, downloadURL, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if err := t.sp.DownloadTo(ctx, downloadURL, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	return os.Rename(tmp, dest)
}

// UploadAll submits every staged asset to the target attachment API. Assets
// that already carry a target sys_id are skipped (resume); assets without a
// staged file fail with an explicit error and the run continues.
func (t *Transfer) UploadAll(ctx context.Context, records []*models.Record) TransferStats {
	jobs := collectJobs(records)
	t.log.Infof("Uploading %d images with %d workers...", len(jobs), t.workers)

	var stats TransferStats
	t.runPool(jobs, func(job assetJob) {
		outcome := t.uploadOne(ctx, job, records)
		t.mu.Lock()
		stats.Processed++
		switch outcome {
		case "ok":
			stats.Succeeded++
		case "skip":
			stats.Skipped++
		default:
			stats.Failed++
		}
		t.mu.Unlock()
	})

	t.log.Infof("Upload summary: %d processed, %d uploaded, %d already uploaded, %d failed",
		stats.Processed, stats.Succeeded, stats.Skipped, stats.Failed)
	return stats
}

func (t *Transfer) uploadOne(ctx context.Context, job assetJob, records []*models.Record) string {
	asset := job.asset
	if asset.Uploaded() {
		t.log.Debugf("Already uploaded, skipping: %s (sys_id %s)", asset.StagedPath, asset.TargetID)
		return "skip"
	}
	if asset.StagedPath == "" {
		t.setAssetResult(records, func() { asset.UploadError = "missing download_path" })
		return "fail"
	}
	if _, err := os.Stat(asset.StagedPath); err != nil {
		t.setAssetResult(records, func() { asset.UploadError = "file not found: " + asset.StagedPath })
		t.log.Warnf("Staged file missing: %s", asset.StagedPath)
		return "fail"
	}

	sysID, err := t.sn.UploadAttachment(ctx, asset.StagedPath, t.tableSysID)
	if err != nil {
		t.setAssetResult(records, func() { asset.UploadError = err.Error() })
		t.log.Warnf("Upload failed for %s: %v", asset.StagedPath, err)
		return "fail"
	}

	t.setAssetResult(records, func() {
		asset.TargetID = sysID
		asset.UploadError = ""
	})
	t.log.Infof("Uploaded %s (sys_id %s)", asset.StagedPath, sysID)
	return "ok"
}

// setAssetResult applies a mutation and checkpoints the snapshot under one
// lock, so the persisted JSON never sees a half-written asset.
func (t *Transfer) setAssetResult(records []*models.Record, mutate func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mutate()
	if t.checkpoint != nil {
		t.checkpoint(records)
	}
}
