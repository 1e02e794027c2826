package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sdejongh/tfm/pkg/models"
)

const documentVersion = 1

// document is the persisted form of the history
type document struct {
	// Version for history file format compatibility
	Version int `json:"version"`

	// Cursor counts the executed records; the rest are redoable
	Cursor int `json:"cursor"`

	Records []models.OperationRecord `json:"records"`
}

func newDocument() *document {
	return &document{Version: documentVersion, Records: []models.OperationRecord{}}
}

// fileStore reads and writes the history document
type fileStore struct {
	path string
}

// load returns the stored document, an empty one if the file does not
// exist, or an error wrapping ErrHistoryCorrupted if it cannot be trusted
func (s *fileStore) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newDocument(), nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrHistoryCorrupted, err)
	}

	if doc.Version > documentVersion {
		return nil, fmt.Errorf("history file version %d is newer than supported version %d", doc.Version, documentVersion)
	}
	if doc.Version < 1 || doc.Cursor < 0 || doc.Cursor > len(doc.Records) {
		return nil, fmt.Errorf("%w: version %d, cursor %d with %d records", models.ErrHistoryCorrupted, doc.Version, doc.Cursor, len(doc.Records))
	}
	for i, rec := range doc.Records {
		if rec.ID == "" || !rec.Kind.Valid() {
			return nil, fmt.Errorf("%w: record %d is malformed", models.ErrHistoryCorrupted, i)
		}
	}

	if doc.Records == nil {
		doc.Records = []models.OperationRecord{}
	}
	return &doc, nil
}

// save writes the document atomically through a temp file
func (s *fileStore) save(doc *document) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	doc.Version = documentVersion
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write history file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize history file: %w", err)
	}

	return nil
}

// preserveCorrupt moves an unreadable history file aside and returns the
// new name
func (s *fileStore) preserveCorrupt(now time.Time) (string, error) {
	backup := fmt.Sprintf("%s.corrupt-%d", s.path, now.Unix())
	if err := os.Rename(s.path, backup); err != nil {
		return "", fmt.Errorf("failed to preserve corrupted history: %w", err)
	}
	return backup, nil
}
