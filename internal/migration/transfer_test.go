package migration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/knowledgeops/kbmigrate/internal/logger"
	"github.com/knowledgeops/kbmigrate/internal/models"
	"github.com/knowledgeops/kbmigrate/internal/platform"
)

func recordWithAsset(recID string, asset models.Asset) *models.Record {
	asset.RecordID = recID
	return &models.Record{
		ID:      recID,
		Title:   "T " + recID,
		Outcome: models.OutcomePrimary,
		Assets:  []models.Asset{asset},
	}
}

func TestTransfer_Download_Streams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/drives/d-assets/root:/"):
			fmt.Fprintf(w, `{"@microsoft.graph.downloadUrl":"%s/blob/pic.png"}`, "http://"+r.Host)
		case strings.HasPrefix(r.URL.Path, "/blob/"):
			w.Write([]byte("IMAGEBYTES"))
		default:
			t.Errorf("unexpected request %q", r.URL.Path)
		}
	}))
	defer ts.Close()

	c := platform.NewClient(ts.URL, nil, 5*time.Second, 1, logger.Nop())
	sp := platform.NewSharePoint(c, "site-1", logger.Nop())
	resolver := NewResolver([]models.Drive{
		{ID: "d-assets", Name: "Site Assets", WebURL: "https://x/sites/kb/SiteAssets"},
	})
	imagesDir := filepath.Join(t.TempDir(), "images")
	tr := NewTransfer(sp, nil, resolver, imagesDir, "", 2, logger.Nop())

	rec := recordWithAsset("page-1", models.Asset{ID: "u1", SourceRef: "/sites/kb/SiteAssets/pic.png"})
	stats := tr.DownloadAll(context.Background(), []*models.Record{rec})

	if stats.Succeeded != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	a := rec.Assets[0]
	if a.StagedPath == "" || a.DownloadError != "" {
		t.Fatalf("asset = %+v", a)
	}
	data, err := os.ReadFile(a.StagedPath)
	if err != nil {
		t.Fatalf("staged file unreadable: %v", err)
	}
	if string(data) != "IMAGEBYTES" {
		t.Errorf("staged content = %q", data)
	}
}

func TestTransfer_Download_SkipsStagedFile(t *testing.T) {
	imagesDir := filepath.Join(t.TempDir(), "images")
	staged := filepath.Join(imagesDir, "page-1", "pic.png")
	if err := os.MkdirAll(filepath.Dir(staged), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(staged, []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}

	// No servers, no drives: any network or resolver touch would fail.
	tr := NewTransfer(nil, nil, NewResolver(nil), imagesDir, "", 1, logger.Nop())
	rec := recordWithAsset("page-1", models.Asset{ID: "u1", SourceRef: "/sites/kb/SiteAssets/pic.png"})

	stats := tr.DownloadAll(context.Background(), []*models.Record{rec})
	if stats.Skipped != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if rec.Assets[0].StagedPath == "" {
		t.Error("StagedPath should point at the existing file")
	}
}

func TestTransfer_Download_ResolveErrorRecorded(t *testing.T) {
	tr := NewTransfer(nil, nil, NewResolver(nil), t.TempDir(), "", 1, logger.Nop())
	rec := recordWithAsset("page-1", models.Asset{ID: "u1", SourceRef: "/sites/kb/Unknown/pic.png"})

	stats := tr.DownloadAll(context.Background(), []*models.Record{rec})
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if rec.Assets[0].DownloadError == "" {
		t.Error("DownloadError should carry the resolution failure")
	}
}

func TestTransfer_Download_SkipsFailedRecords(t *testing.T) {
	tr := NewTransfer(nil, nil, NewResolver(nil), t.TempDir(), "", 1, logger.Nop())
	rec := recordWithAsset("page-1", models.Asset{ID: "u1", SourceRef: "/sites/kb/SiteAssets/pic.png"})
	rec.Outcome = models.OutcomeFailed

	stats := tr.DownloadAll(context.Background(), []*models.Record{rec})
	if stats.Processed != 0 {
		t.Errorf("failed records must not be processed, stats = %+v", stats)
	}
}

func TestTransfer_Upload(t *testing.T) {
	uploads := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads++
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart: %v", err)
		}
		if got := r.FormValue("table_sys_id"); got != "kb-base-1" {
			t.Errorf("table_sys_id = %q", got)
		}
		fmt.Fprintf(w, `{"result":{"sys_id":"att-%d"}}`, uploads)
	}))
	defer ts.Close()

	c := platform.NewClient(ts.URL, nil, 5*time.Second, 1, logger.Nop())
	sn := platform.NewServiceNow(c, "api/now/table", logger.Nop())

	dir := t.TempDir()
	staged := filepath.Join(dir, "pic.png")
	if err := os.WriteFile(staged, []byte("PNG"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewTransfer(nil, sn, nil, dir, "kb-base-1", 2, logger.Nop())
	checkpoints := 0
	tr.SetCheckpoint(func([]*models.Record) { checkpoints++ })

	rec := recordWithAsset("page-1", models.Asset{ID: "u1", SourceRef: "/x", StagedPath: staged})
	stats := tr.UploadAll(context.Background(), []*models.Record{rec})

	if stats.Succeeded != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if rec.Assets[0].TargetID != "att-1" {
		t.Errorf("TargetID = %q", rec.Assets[0].TargetID)
	}
	if checkpoints == 0 {
		t.Error("checkpoint should run after the upload")
	}
}

func TestTransfer_Upload_SkipsUploaded(t *testing.T) {
	tr := NewTransfer(nil, nil, nil, t.TempDir(), "kb-base-1", 1, logger.Nop())
	rec := recordWithAsset("page-1", models.Asset{ID: "u1", StagedPath: "x.png", TargetID: "att-9"})

	stats := tr.UploadAll(context.Background(), []*models.Record{rec})
	if stats.Skipped != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if rec.Assets[0].TargetID != "att-9" {
		t.Error("existing TargetID must be preserved")
	}
}

func TestTransfer_Upload_MissingStagedPath(t *testing.T) {
	tr := NewTransfer(nil, nil, nil, t.TempDir(), "kb-base-1", 1, logger.Nop())
	rec := recordWithAsset("page-1", models.Asset{ID: "u1"})

	stats := tr.UploadAll(context.Background(), []*models.Record{rec})
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if rec.Assets[0].UploadError != "missing download_path" {
		t.Errorf("UploadError = %q", rec.Assets[0].UploadError)
	}
}

func TestTransfer_Upload_FileGone(t *testing.T) {
	tr := NewTransfer(nil, nil, nil, t.TempDir(), "kb-base-1", 1, logger.Nop())
	rec := recordWithAsset("page-1", models.Asset{ID: "u1", StagedPath: "gone/pic.png"})

	stats := tr.UploadAll(context.Background(), []*models.Record{rec})
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !strings.Contains(rec.Assets[0].UploadError, "file not found") {
		t.Errorf("UploadError = %q", rec.Assets[0].UploadError)
	}
}
