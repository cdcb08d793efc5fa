package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/provenance-labs/provd/pkg/models"
)

// loadQueue reads the pending delivery queue. A missing file is an empty
// queue; a corrupt file is surfaced so the operator can intervene.
func loadQueue(path string) ([]*models.WebhookItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read webhook queue: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var items []*models.WebhookItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("webhook queue file is corrupt: %w", err)
	}
	return items, nil
}

// saveQueue writes the full queue snapshot atomically: temp file in the
// same directory, then rename. A crash mid-write leaves the previous
// snapshot intact.
func saveQueue(path string, items []*models.WebhookItem) error {
	if items == nil {
		items = []*models.WebhookItem{}
	}
	// Compact encoding keeps Payload bytes identical across snapshot and
	// reload so delivery signatures stay stable.
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode webhook queue: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".webhook_queue_*")
	if err != nil {
		return fmt.Errorf("failed to create queue temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write queue temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close queue temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}

// appendDeadLetter appends one JSONL entry to the dead-letter log.
func appendDeadLetter(path string, entry *models.DeadLetterEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create dead-letter directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open dead-letter log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode dead-letter entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append dead-letter entry: %w", err)
	}
	return nil
}
