// Package storage persists the scripture index as an ordered sequence of
// immutable document-record segments plus a manifest. Replaying segments in
// manifest order reconstructs the document set; the last record for a given
// id wins, and delete records act as tombstones.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Op enumerates the mutation kinds a segment record can carry.
type Op string

const (
	OpIndex  Op = "index"
	OpDelete Op = "delete"
)

// DocRecord is a single append-only mutation event inside a segment.
type DocRecord struct {
	Op       Op              `json:"op"`
	ID       string          `json:"id"`
	Document json.RawMessage `json:"document,omitempty"`
}

// IndexStorage glues the manifest and the segment files together around a
// single directory layout.
type IndexStorage struct {
	dir      string
	manifest *Manifest
	seq      int
}

// Open ensures the storage directory exists and loads the manifest.
func Open(dir string) (*IndexStorage, error) {
	segmentsDir := filepath.Join(dir, "segments")
	if err := os.MkdirAll(segmentsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create segments dir: %w", err)
	}

	manifest, err := LoadManifest(segmentsDir)
	if err != nil {
		return nil, err
	}

	return &IndexStorage{dir: segmentsDir, manifest: manifest}, nil
}

// Manifest exposes the loaded manifest for inspection.
func (s *IndexStorage) Manifest() *Manifest {
	return s.manifest
}

// AppendSegment materializes the records as a new immutable segment and
// registers it in the manifest.
func (s *IndexStorage) AppendSegment(records []DocRecord) (SegmentMeta, error) {
	s.seq++
	meta := SegmentMeta{
		ID:      fmt.Sprintf("seg-%d-%d", time.Now().UnixNano(), s.seq),
		Records: len(records),
	}

	if err := writeSegment(s.dir, meta.ID, records); err != nil {
		return SegmentMeta{}, err
	}
	if err := s.manifest.AddSegment(meta); err != nil {
		return SegmentMeta{}, err
	}
	return meta, nil
}

// Replay loads every segment in manifest order and returns the concatenated
// record stream.
func (s *IndexStorage) Replay() ([]DocRecord, error) {
	var records []DocRecord
	for _, seg := range s.manifest.Segments {
		segRecords, err := readSegment(s.dir, seg.ID)
		if err != nil {
			return nil, err
		}
		records = append(records, segRecords...)
	}
	return records, nil
}

// Compact replaces all existing segments with a single segment containing the
// supplied records. Used after tombstones and overwrites accumulate.
func (s *IndexStorage) Compact(records []DocRecord) error {
	s.seq++
	meta := SegmentMeta{
		ID:      fmt.Sprintf("merge-%d-%d", time.Now().UnixNano(), s.seq),
		Records: len(records),
	}

	if err := writeSegment(s.dir, meta.ID, records); err != nil {
		return err
	}

	removed, err := s.manifest.ReplaceSegments(meta)
	if err != nil {
		return err
	}
	for _, old := range removed {
		_ = os.Remove(segmentPath(s.dir, old.ID))
	}
	return nil
}

// RemoveAll clears the segment directory and resets the manifest. Destructive.
func (s *IndexStorage) RemoveAll() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("cleanup segments: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("recreate segments dir: %w", err)
	}

	manifest, err := LoadManifest(s.dir)
	if err != nil {
		return err
	}
	s.manifest = manifest
	return nil
}

func segmentPath(dir, id string) string {
	return filepath.Join(dir, id+".seg")
}

func writeSegment(dir, id string, records []DocRecord) error {
	content, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode segment: %w", err)
	}
	if err := os.WriteFile(segmentPath(dir, id), content, 0o644); err != nil {
		return fmt.Errorf("write segment %s: %w", id, err)
	}
	return nil
}

func readSegment(dir, id string) ([]DocRecord, error) {
	content, err := os.ReadFile(segmentPath(dir, id))
	if err != nil {
		return nil, fmt.Errorf("read segment %s: %w", id, err)
	}
	var records []DocRecord
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, fmt.Errorf("decode segment %s: %w", id, err)
	}
	return records, nil
}
