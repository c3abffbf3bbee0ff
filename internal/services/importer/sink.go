package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gee2dhis2/internal/api"
)

// DHIS2Writer commits data value sets to a DHIS2 server
type DHIS2Writer struct {
	client *api.Client
}

// NewDHIS2Writer creates a committing writer backed by the given client
func NewDHIS2Writer(client *api.Client) *DHIS2Writer {
	return &DHIS2Writer{client: client}
}

// Save posts the set and returns the server's import counts
func (w *DHIS2Writer) Save(ctx context.Context, set DataValueSet) (SaveResponse, error) {
	count, err := w.client.PostDataValueSet(ctx, set)
	if err != nil {
		return SaveResponse{}, err
	}
	return SaveResponse{ImportCount: count}, nil
}

// FileExportWriter writes data value sets to local JSON files instead of
// committing them. Used for dry runs.
type FileExportWriter struct {
	dir string
	now func() time.Time
}

// NewFileExportWriter creates a dry-run writer targeting dir
func NewFileExportWriter(dir string) *FileExportWriter {
	return &FileExportWriter{dir: dir, now: time.Now}
}

// Save writes the set to a timestamped file and returns its path
func (w *FileExportWriter) Save(_ context.Context, set DataValueSet) (SaveResponse, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return SaveResponse{}, fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("datavalues-%s.json", w.now().UTC().Format("20060102-150405")))
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return SaveResponse{}, fmt.Errorf("failed to encode data value set: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return SaveResponse{}, fmt.Errorf("failed to write export file: %w", err)
	}

	return SaveResponse{FilePath: path}, nil
}
