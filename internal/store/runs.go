package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// EnsureRunDir creates the run output directory, parents included.
func EnsureRunDir(path string) (string, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("creating run dir %s: %w", path, err)
	}
	return path, nil
}

// WriteJSON writes a value as indented JSON.
func WriteJSON(path string, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, append(encoded, '\n'), 0644)
}

// WriteText writes a string artifact such as the HTML digest.
func WriteText(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

// WriteJSONL writes one compact JSON object per line.
func WriteJSONL(path string, records []map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}
