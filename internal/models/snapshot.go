package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LedgerEntry is one row in the flat error ledger written next to a snapshot.
type LedgerEntry struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	WebURL  string `json:"webUrl"`
	Error   string `json:"error"`
	Outcome string `json:"processing_method"`
}

// LoadSnapshot reads a JSON snapshot of records from disk.
func LoadSnapshot(path string) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}

// SaveSnapshot writes all records to path. Every record is carried forward,
// whether or not the current stage touched it, so a partially failed run still
// produces a complete resume point. The write goes through a temp file so a
// crash mid-write cannot truncate the previous snapshot.
func SaveSnapshot(path string, records []*Record) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// SaveLedger writes the flat error ledger to path.
func SaveLedger(path string, entries []LedgerEntry) error {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding error ledger: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ErrorLedger collects every record-level and asset-level failure.
func ErrorLedger(records []*Record) []LedgerEntry {
	var entries []LedgerEntry
	for _, r := range records {
		if r.ProcessingError != "" {
			entries = append(entries, LedgerEntry{
				ID:      r.ID,
				Title:   r.Title,
				WebURL:  r.WebURL,
				Error:   r.ProcessingError,
				Outcome: r.Outcome,
			})
		}
		for _, a := range r.Assets {
			if a.DownloadError != "" || a.UploadError != "" {
				msg := a.DownloadError
				if msg == "" {
					msg = a.UploadError
				}
				entries = append(entries, LedgerEntry{
					ID:      r.ID,
					Title:   r.Title,
					WebURL:  a.SourceRef,
					Error:   msg,
					Outcome: r.Outcome,
				})
			}
		}
	}
	return entries
}

// SnapshotPaths returns the three timestamped file names a scrape run writes:
// in-scope records, excluded records, and the error ledger.
func SnapshotPaths(dir string, now time.Time) (migrate, exclude, errors string) {
	stamp := now.Format("20060102_150405")
	migrate = filepath.Join(dir, stamp+"_pages_to_migrate.json")
	exclude = filepath.Join(dir, stamp+"_pages_to_exclude.json")
	errors = filepath.Join(dir, stamp+"_processing_errors.json")
	return migrate, exclude, errors
}
