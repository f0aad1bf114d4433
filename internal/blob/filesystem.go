package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/strixun/edgecore/internal/apperr"
)

// FilesystemBackend stores blob bytes and their metadata as sibling files
// under a base directory, the production stand-in for the original's R2
// binding when no object-storage service is configured.
type FilesystemBackend struct {
	baseDir string
}

// NewFilesystemBackend creates a FilesystemBackend rooted at baseDir,
// creating it if necessary.
func NewFilesystemBackend(baseDir string) (*FilesystemBackend, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating blob base dir: %w", err)
	}
	return &FilesystemBackend{baseDir: baseDir}, nil
}

func (b *FilesystemBackend) dataPath(r2Key string) string {
	return filepath.Join(b.baseDir, r2Key+".bin")
}

func (b *FilesystemBackend) metaPath(r2Key string) string {
	return filepath.Join(b.baseDir, r2Key+".meta.json")
}

func (b *FilesystemBackend) Put(_ context.Context, r2Key string, data []byte, meta Metadata) error {
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling blob metadata: %w", err)
	}
	if err := os.WriteFile(b.dataPath(r2Key), data, 0o600); err != nil {
		return fmt.Errorf("writing blob data: %w", err)
	}
	if err := os.WriteFile(b.metaPath(r2Key), metaBytes, 0o600); err != nil {
		return fmt.Errorf("writing blob metadata: %w", err)
	}
	return nil
}

func (b *FilesystemBackend) Get(_ context.Context, r2Key string) ([]byte, Metadata, bool, error) {
	data, err := os.ReadFile(b.dataPath(r2Key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, Metadata{}, false, nil
	}
	if err != nil {
		return nil, Metadata{}, false, fmt.Errorf("reading blob data: %w", err)
	}

	metaBytes, err := os.ReadFile(b.metaPath(r2Key))
	if err != nil {
		return nil, Metadata{}, false, fmt.Errorf("reading blob metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, Metadata{}, false, fmt.Errorf("unmarshaling blob metadata: %w", err)
	}
	return data, meta, true, nil
}

func (b *FilesystemBackend) Delete(_ context.Context, r2Key string) error {
	if err := os.Remove(b.dataPath(r2Key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.New(apperr.KindNotFound, "object not found")
		}
		return fmt.Errorf("deleting blob data: %w", err)
	}
	_ = os.Remove(b.metaPath(r2Key))
	return nil
}
