package objectstore

import (
	"context"
	"fmt"
	"os"
)

// SegmentWriter accumulates a recording segment's bytes to a spill file on
// local disk as frames arrive, then uploads the whole object on Finalize.
// S3-compatible stores have no native append; buffering to disk avoids
// holding a multi-minute segment entirely in memory.
type SegmentWriter struct {
	store *Store
	key   string
	file  *os.File
	size  int64
}

// OpenForAppend starts a new segment that will be uploaded to key once
// Finalize is called. dir is the local scratch directory for the spill
// file (the recording controller passes its scratch directory).
func (s *Store) OpenForAppend(dir, key string) (*SegmentWriter, error) {
	return NewSegmentWriter(s, dir, key)
}

// NewSegmentWriter creates a spill file under dir and returns a writer
// that will upload to key on Finalize.
func NewSegmentWriter(store *Store, dir, key string) (*SegmentWriter, error) {
	f, err := os.CreateTemp(dir, "segment-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("objectstore: create spill file: %w", err)
	}
	return &SegmentWriter{store: store, key: key, file: f}, nil
}

// Write appends a chunk to the spill file.
func (w *SegmentWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Size reports the bytes written so far.
func (w *SegmentWriter) Size() int64 { return w.size }

// Finalize uploads the spill file's contents to the bucket and removes
// the local copy, regardless of upload outcome.
func (w *SegmentWriter) Finalize(ctx context.Context, contentType string) error {
	defer os.Remove(w.file.Name())
	defer w.file.Close()

	if _, err := w.file.Seek(0, 0); err != nil {
		return fmt.Errorf("objectstore: seek spill file: %w", err)
	}
	if err := w.store.PutStream(ctx, w.key, w.file, w.size, contentType); err != nil {
		return err
	}
	return nil
}

// Abort discards the spill file without uploading. The recording
// controller calls it when a frame write fails or when the recording row
// cannot be created.
func (w *SegmentWriter) Abort() error {
	defer os.Remove(w.file.Name())
	return w.file.Close()
}
