// Package storage persists subscriptions as one JSON file per record,
// keyed by the subscription's identity hash. Writes are scoped to a single
// subscription's file; there is no cross-file transaction. A partially
// written file from a crash is treated as corrupt and skipped on load.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subrank/internal/endpoint"
	"subrank/internal/logger"
)

// Record is the on-disk representation of one subscription.
type Record struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	URL               string             `json:"url"`
	Enabled           bool               `json:"enabled"`
	Priority          int                `json:"priority"`
	Tags              []string           `json:"tags"`
	AutoUpdate        bool               `json:"auto_update"`
	UpdateInterval    int64              `json:"update_interval"` // seconds
	LastUpdateTime    int64              `json:"last_update_time"`
	LastFetchSuccess  bool               `json:"last_fetch_success"`
	LastErrorMessage  string             `json:"last_error_message"`
	TotalUpdates      int                `json:"total_updates"`
	SuccessfulUpdates int                `json:"successful_updates"`
	FailedUpdates     int                `json:"failed_updates"`
	Configs           []*endpoint.Record `json:"configs"`
}

// Dir is a storage directory of subscription records.
type Dir struct {
	path string
}

// Open ensures the directory exists and returns a handle to it.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

func (d *Dir) file(id string) string {
	return filepath.Join(d.path, id+".json")
}

// Save writes one record to its own file, via temp-file-and-rename so a
// reader never observes a half-written record under normal operation.
func (d *Dir) Save(rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record has no id")
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode subscription %s: %w", rec.ID, err)
	}

	tmp := d.file(rec.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, d.file(rec.ID)); err != nil {
		return fmt.Errorf("failed to commit %s: %w", d.file(rec.ID), err)
	}
	return nil
}

// Delete removes a record's file. A missing file is not an error.
func (d *Dir) Delete(id string) error {
	err := os.Remove(d.file(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadAll reads every record in the directory. Loading is best-effort per
// record: a corrupt file is logged and skipped, never aborting the rest.
func (d *Dir) LoadAll() ([]*Record, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage dir %s: %w", d.path, err)
	}

	var records []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(d.path, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Log.Errorf("Failed to read subscription file %s: %v", path, err)
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			logger.Log.Errorf("Skipping corrupt subscription file %s: %v", path, err)
			continue
		}
		if rec.ID == "" || rec.URL == "" {
			logger.Log.Errorf("Skipping subscription file %s: missing id or url", path)
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}
