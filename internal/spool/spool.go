// Package spool materializes attachments on disk for the lifetime of a single
// delivery.
package spool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/contactrelay/contactrelay/internal/model"
)

// Batch is a set of staged attachment files living in one private directory.
type Batch struct {
	Dir   string
	Paths []string
}

// Stage writes each attachment to <root>/<uuid>/<filename>. On failure nothing
// is left behind.
func Stage(root string, attachments []model.Attachment) (*Batch, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create spool root: %w", err)
	}

	dir := filepath.Join(root, uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	b := &Batch{Dir: dir, Paths: make([]string, 0, len(attachments))}
	for _, att := range attachments {
		name := filepath.Base(att.Filename)
		if name == "." || name == string(filepath.Separator) || name == "" {
			b.Release()
			return nil, fmt.Errorf("invalid attachment filename %q", att.Filename)
		}

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, att.Content, 0o600); err != nil {
			b.Release()
			return nil, fmt.Errorf("failed to stage %s: %w", name, err)
		}
		b.Paths = append(b.Paths, path)
	}

	return b, nil
}

// Release removes every staged file and the batch directory. Calling it more
// than once is safe.
func (b *Batch) Release() error {
	if b == nil || b.Dir == "" {
		return nil
	}

	var errs []error
	for _, p := range b.Paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(b.Dir); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		b.Paths = nil
	}
	return errors.Join(errs...)
}
