package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// StoreConfig configures the content directory store.
type StoreConfig struct {
	Dir      string // flat content directory, created if absent
	MaxBytes int64  // max size of one stored file (default: 100MB)
	Index    *Index // optional
	Logger   *slog.Logger
}

// Meta describes a file being saved; it only feeds the index.
type Meta struct {
	Kind     string
	MimeType string
	Channel  string
	ChatID   string
	SenderID string
}

// Store persists media blobs under generated names in a single directory.
// Files are never modified after they are written.
type Store struct {
	dir      string
	maxBytes int64
	index    *Index
	logger   *slog.Logger
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("content directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create content directory: %w", err)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 100 * 1024 * 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:      cfg.Dir,
		maxBytes: maxBytes,
		index:    cfg.Index,
		logger:   logger,
	}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Index() *Index { return s.index }

// Path resolves name inside the content directory. Directory components are
// discarded, so "../../etc/passwd" resolves to "<dir>/passwd".
func (s *Store) Path(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + filepath.ToSlash(name)))
	if base == "/" || base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, base), nil
}

// Save writes data as a new file. It fails if the name already exists.
func (s *Store) Save(ctx context.Context, name string, data []byte, meta Meta) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrTooLarge, len(data), s.maxBytes)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close file: %w", err)
	}

	name = filepath.Base(path)
	if s.index != nil {
		entry := Entry{
			Name:      name,
			Kind:      meta.Kind,
			MimeType:  meta.MimeType,
			Size:      int64(len(data)),
			Channel:   meta.Channel,
			ChatID:    meta.ChatID,
			SenderID:  meta.SenderID,
			CreatedAt: time.Now(),
		}
		if err := s.index.Record(ctx, entry); err != nil {
			s.logger.Warn("failed to record media in index", "name", name, "err", err)
		}
	}

	s.logger.Info("media stored", "name", name, "size", len(data), "kind", meta.Kind)
	return name, nil
}

// Read returns the contents of a stored file.
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Open returns a handle on a stored regular file for streaming.
func (s *Store) Open(name string) (*os.File, fs.FileInfo, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	return f, info, nil
}

// List returns the names of all entries in the content directory, in
// directory order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list content directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// WriteArtifact replaces name with data through a temp file and rename, so
// readers see either the previous or the new contents.
func (s *Store) WriteArtifact(name string, data []byte) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
