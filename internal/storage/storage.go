// Package storage provides atomic local writes for downloaded artifacts and
// the Publisher port for pushing finished artifacts to remote storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
)

// PartSuffix is appended to the final path to form the sidecar file used
// during an atomic write.
const PartSuffix = ".part"

// Publisher publishes a finished artifact to remote storage and returns its
// public URL.
type Publisher interface {
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)
}

// WriteAtomic writes data to path through a sidecar file that is renamed into
// place only after the write completes. On any failure the sidecar is removed
// and the final path is left untouched, so a partially-written artifact is
// never observable under its final name.
func WriteAtomic(path string, data []byte) error {
	part := path + PartSuffix

	f, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return fmt.Errorf("create sidecar file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(part)
		return fmt.Errorf("write sidecar file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("close sidecar file: %w", err)
	}

	if err := os.Rename(part, path); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("rename sidecar file: %w", err)
	}

	return nil
}
