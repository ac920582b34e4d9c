// Package local implements eventstream.FileStore on the local filesystem,
// one file per key under a root directory: a key such as
// "<session>/events/000000000042" is the file at that relative path,
// with no file extension added.
package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentrt/agentrt/errs"
)

// Store is a directory-rooted FileStore. Writes are durable by the time
// Put returns (a temporary file is written, Synced, and renamed into
// place), matching the
// "durable before returning" requirement on EventStream.Append.
type Store struct {
	root string
}

// New creates (if absent) root and returns a Store backed by it.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errs.NewStorageError("create file store root", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes data to the file for key, creating parent directories and
// fsyncing before return.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errs.NewStorageError("mkdir for "+key, err)
	}
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errs.NewStorageError("create "+key, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errs.NewStorageError("write "+key, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errs.NewStorageError("fsync "+key, err)
	}
	if err := f.Close(); err != nil {
		return errs.NewStorageError("close "+key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return errs.NewStorageError("rename into place "+key, err)
	}
	return nil
}

// Get reads the file for key, returning errs.NotFound if it does not exist.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.NewNotFound(key)
		}
		return nil, errs.NewStorageError("read "+key, err)
	}
	return data, nil
}

// List walks root for every file whose key (root-relative, slash-joined
// path) has the given prefix.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.Walk(s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errs.NewStorageError("list "+prefix, err)
	}
	return keys, nil
}
