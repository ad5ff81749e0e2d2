package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const manifestFilename = "manifest.json"

// SegmentMeta captures immutable segment level information.
type SegmentMeta struct {
	ID      string `json:"id"`
	Records int    `json:"records"`
}

// Manifest tracks the ordered set of immutable segments.
type Manifest struct {
	Segments []SegmentMeta `json:"segments"`

	path string
	mu   sync.Mutex
}

// LoadManifest reads the manifest file or initializes an empty one when absent.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFilename)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			m := &Manifest{path: path}
			if err := m.persist(); err != nil {
				return nil, err
			}
			return m, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(content, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	manifest.path = path
	return &manifest, nil
}

// AddSegment appends a new immutable segment entry and persists the manifest.
// Segment ids embed a creation timestamp, so lexical order is replay order.
func (m *Manifest) AddSegment(meta SegmentMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Segments = append(m.Segments, meta)
	sort.Slice(m.Segments, func(i, j int) bool {
		return m.Segments[i].ID < m.Segments[j].ID
	})
	return m.persist()
}

// ReplaceSegments swaps every existing segment for the supplied merged segment
// and returns the entries that were removed so callers can delete their files.
func (m *Manifest) ReplaceSegments(merged SegmentMeta) ([]SegmentMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.Segments
	m.Segments = []SegmentMeta{merged}
	if err := m.persist(); err != nil {
		return nil, err
	}
	return removed, nil
}

// TotalRecords sums the record counts across all segments.
func (m *Manifest) TotalRecords() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, seg := range m.Segments {
		total += seg.Records
	}
	return total
}

func (m *Manifest) persist() error {
	content, err := json.MarshalIndent(struct {
		Segments []SegmentMeta `json:"segments"`
	}{Segments: m.Segments}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(m.path, content, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
