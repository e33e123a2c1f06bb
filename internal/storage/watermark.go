package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WatermarkStore persists the epoch of the last fully processed window.
// Read once at orchestrator startup, written once per successful cycle.
// No concurrent writers are expected; writes go through a temp file and
// an atomic rename.
type WatermarkStore struct {
	path string
}

// NewWatermarkStore creates a watermark store backed by the given file.
func NewWatermarkStore(path string) *WatermarkStore {
	return &WatermarkStore{path: path}
}

// Load returns the persisted epoch, or ok=false when no valid watermark
// exists yet.
func (w *WatermarkStore) Load() (epoch int64, ok bool) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return 0, false
	}
	epoch, err = strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return epoch, true
}

// Save overwrites the watermark atomically.
func (w *WatermarkStore) Save(epoch int64) error {
	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".watermark-*")
	if err != nil {
		return fmt.Errorf("failed to create watermark temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.WriteString(strconv.FormatInt(epoch, 10))
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write watermark: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close watermark temp file: %w", closeErr)
	}

	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace watermark file: %w", err)
	}
	return nil
}
