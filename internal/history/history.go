// Package history persists the prompt history as a single JSON array on
// disk. Entries are append-only and 1-indexed for user-facing replay.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrIndexOutOfRange is returned when a replay index does not address an
// existing entry.
var ErrIndexOutOfRange = errors.New("history: index out of range")

// Entry records one completed generation. Immutable once created.
type Entry struct {
	Prompt      string `json:"prompt"`
	OutputFile  string `json:"output_file"`
	Duration    int    `json:"duration"`
	AspectRatio string `json:"aspect_ratio"`
}

// Store reads and writes the history file at a fixed path.
type Store struct {
	path string
}

// NewStore creates a Store bound to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the full history. A missing file is an empty history; a file
// that exists but cannot be parsed is an error, never silently discarded.
func (s *Store) Load() ([]Entry, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 - path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read %s: %w", s.path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("history: parse %s: %w", s.path, err)
	}

	return entries, nil
}

// Save rewrites the backing file with the full entry sequence.
// Note a crash mid-save can leave a truncated file; the format is a single
// JSON array, so partial saves surface as a parse error on the next load.
func (s *Store) Save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}

	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("history: write %s: %w", s.path, err)
	}

	return nil
}

// Display prints the history as 1-indexed "n: prompt" lines.
func Display(w io.Writer, entries []Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history found.")
		return
	}
	for i, e := range entries {
		fmt.Fprintf(w, "%d: %s\n", i+1, e.Prompt)
	}
}

// Replay returns the prompt of the 1-indexed entry for reuse.
func Replay(entries []Entry, index int) (string, error) {
	if index < 1 || index > len(entries) {
		return "", fmt.Errorf("%w: %d (history has %d entries)", ErrIndexOutOfRange, index, len(entries))
	}
	return entries[index-1].Prompt, nil
}
