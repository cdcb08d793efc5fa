package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// usageState is the persisted monthly request budget. It survives restarts
// so the monthly cap cannot be escaped by bouncing the process.
type usageState struct {
	MonthKey        string `json:"month_key"`
	RequestsUsed    int    `json:"requests_used"`
	KillSwitchArmed bool   `json:"kill_switch_armed"`
}

// loadUsage reads the usage file. A missing file yields a zero state.
func loadUsage(path string) (usageState, error) {
	var state usageState
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return state, nil
		}
		return state, fmt.Errorf("failed to read scheduler usage file: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("scheduler usage file is corrupt: %w", err)
	}
	return state, nil
}

// saveUsage writes the usage state atomically via temp file and rename.
func saveUsage(path string, state usageState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scheduler usage: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create usage directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".scheduler_usage_*")
	if err != nil {
		return fmt.Errorf("failed to create usage temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write usage temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close usage temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace usage file: %w", err)
	}
	return nil
}
