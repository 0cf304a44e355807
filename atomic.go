package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteJSON marshals data with indentation and writes it through
// AtomicWriteFile. Emitted model files are read by downstream tooling, so
// a crash must never leave a half-written document behind.
func AtomicWriteJSON(path string, data any) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	payload = append(payload, '\n')
	return AtomicWriteFile(path, payload)
}

// AtomicWriteFile writes data to path via a temp file and rename. Parent
// directories are created as needed. For .json paths the payload is
// checked to be well-formed before anything touches the disk.
func AtomicWriteFile(path string, data []byte) error {
	if filepath.Ext(path) == ".json" {
		var probe json.RawMessage
		if err := json.Unmarshal(data, &probe); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Temp file lives next to the target so the rename stays on one
	// filesystem.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
