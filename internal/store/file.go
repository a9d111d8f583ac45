package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/descriptor"
	"github.com/example/face-verify/internal/imageprocessor"
	"github.com/example/face-verify/internal/metrics"
)

const (
	// DescriptorFile holds the reference descriptor as a JSON array of numbers.
	DescriptorFile = "descriptor.json"
	// CropFile holds the PNG crop of the enrolled face for operators.
	CropFile = "reference.png"
)

// FileStore keeps the reference in a directory on local disk. Files are
// replaced with a write to a temporary file followed by a rename.
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store directory is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger.Named("file_store")}, nil
}

// DescriptorPath returns the path of the descriptor file.
func (s *FileStore) DescriptorPath() string {
	return filepath.Join(s.dir, DescriptorFile)
}

// CropPath returns the path of the reference crop.
func (s *FileStore) CropPath() string {
	return filepath.Join(s.dir, CropFile)
}

// Save writes the descriptor, then tries to write the crop. Only a failure
// to write the descriptor is returned. A crop left over from an earlier
// enrollment is removed when the new one has none or it cannot be written.
func (s *FileStore) Save(ctx context.Context, ref *Reference) error {
	if err := checkReference(ref); err != nil {
		return err
	}
	data, err := json.Marshal([]float32(ref.Descriptor))
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := renameio.WriteFile(s.DescriptorPath(), data, 0o600); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	if ref.Crop == nil || !s.saveCrop(ref) {
		s.removeCrop()
	}
	s.logger.Info("reference descriptor saved", zap.Int("length", len(ref.Descriptor)))
	return nil
}

func (s *FileStore) saveCrop(ref *Reference) bool {
	png, err := imageprocessor.EncodePNG(ref.Crop)
	if err == nil {
		err = renameio.WriteFile(s.CropPath(), png, 0o600)
	}
	if err != nil {
		metrics.BestEffortFailuresTotal.WithLabelValues("crop").Inc()
		s.logger.Warn("failed to save reference crop", zap.Error(err), zap.String("path", s.CropPath()))
		return false
	}
	return true
}

// removeCrop must be called with mu held.
func (s *FileStore) removeCrop() {
	err := os.Remove(s.CropPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		metrics.BestEffortFailuresTotal.WithLabelValues("crop").Inc()
		s.logger.Warn("failed to remove stale reference crop", zap.Error(err), zap.String("path", s.CropPath()))
	}
}

// Load reads the descriptor. The enrollment time is the file's modification time.
func (s *FileStore) Load(ctx context.Context) (*Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.DescriptorPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	var values []float32
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("decode descriptor: %w", descriptor.ErrEmpty)
	}

	ref := &Reference{Descriptor: values}
	if info, err := os.Stat(s.DescriptorPath()); err == nil {
		ref.EnrolledAt = info.ModTime().UTC()
	}
	return ref, nil
}
