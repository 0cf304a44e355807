package main

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Emitter persists resolution results. The pipeline itself never touches
// the filesystem; emission is the caller's choice.
type Emitter interface {
	Emit(result *ResolutionResult) error
}

// JSONEmitter writes one JSON document per test case under a directory
type JSONEmitter struct {
	dir string
}

// NewJSONEmitter creates an emitter writing into dir
func NewJSONEmitter(dir string) *JSONEmitter {
	return &JSONEmitter{dir: dir}
}

// Emit writes the result as <case-id>.json, atomically
func (e *JSONEmitter) Emit(result *ResolutionResult) error {
	name := safeFileName(result.TestCase.ID)
	if name == "" {
		name = result.ID
	}
	path := filepath.Join(e.dir, name+".json")
	if err := AtomicWriteJSON(path, result); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// unsafeFileChars matches anything outside the portable filename set
var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// safeFileName turns a test case ID into a filesystem-safe base name
func safeFileName(id string) string {
	name := unsafeFileChars.ReplaceAllString(strings.TrimSpace(id), "_")
	return strings.Trim(name, "._")
}

// discardEmitter drops results, used when no output directory is wanted
type discardEmitter struct{}

func (discardEmitter) Emit(*ResolutionResult) error { return nil }
