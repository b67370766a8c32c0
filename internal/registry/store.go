package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Version is the registry document schema version.
const Version = "1.0.0"

// Dir is the per-project metadata directory.
const Dir = ".flowforge"

// FileName is the registry document file name inside Dir.
const FileName = "registry.json"

// Document is the on-disk registry layout. ShippingStats is opaque to the
// core and preserved byte-for-byte across rewrites.
type Document struct {
	Version       string              `json:"version"`
	Features      map[string]*Feature `json:"features"`
	MergeQueue    []MergeQueueItem    `json:"merge_queue"`
	ShippingStats json.RawMessage     `json:"shipping_stats,omitempty"`
}

// NewDocument returns an empty versioned document.
func NewDocument() *Document {
	return &Document{
		Version:    Version,
		Features:   make(map[string]*Feature),
		MergeQueue: []MergeQueueItem{},
	}
}

// ParseDocument decodes a registry document, tolerating unknown fields.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if doc.Features == nil {
		doc.Features = make(map[string]*Feature)
	}
	if doc.MergeQueue == nil {
		doc.MergeQueue = []MergeQueueItem{}
	}
	if doc.Version == "" {
		doc.Version = Version
	}
	// Backfill ids for features keyed but not self-identified.
	for id, f := range doc.Features {
		if f.ID == "" {
			f.ID = id
		}
	}
	return &doc, nil
}

// MarshalDocument encodes a document for storage.
func MarshalDocument(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// Store reads and writes the registry document for one project root.
type Store struct {
	path string
}

// NewStore creates a store for <projectRoot>/.flowforge/registry.json.
func NewStore(projectRoot string) *Store {
	return &Store{path: filepath.Join(projectRoot, Dir, FileName)}
}

// Path returns the registry file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the document, returning an empty one when the file is absent.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return ParseDocument(data)
}

// Save rewrites the document. The write goes through a temp file and
// rename so a crash never leaves a truncated registry.
func (s *Store) Save(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	data, err := MarshalDocument(doc)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}
