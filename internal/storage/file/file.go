// Package file implements storage.KV on top of a local directory. Every key
// is stored as its own gzip-compressed file so a crash mid-write leaves the
// previous value intact.
package file

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/storefront/internal/storage"
)

const suffix = ".json.gz"

var _ storage.KV = (*Store)(nil)

// ErrInvalidKey is returned for keys that would escape the storage directory.
var ErrInvalidKey = errors.New("invalid storage key")

// Store keeps one compressed file per key under dir.
type Store struct {
	dir string
}

// New creates dir if needed and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create storage dir %s", dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	return filepath.Join(s.dir, key+suffix), nil
}

// Get implements storage.KV.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrapf(err, "open %s", p)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", p)
	}
	defer func() { _ = gz.Close() }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", p)
	}
	return data, nil
}

// Set implements storage.KV. The value is written to a temporary file in the
// same directory and renamed over the previous one.
func (s *Store) Set(ctx context.Context, key string, value []byte) (rerr error) {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() {
		if rerr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	gz := pgzip.NewWriter(tmp)
	if _, err := gz.Write(value); err != nil {
		return errors.Wrapf(err, "compress %s", key)
	}
	if err := gz.Close(); err != nil {
		return errors.Wrapf(err, "flush %s", key)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", key)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return errors.Wrapf(err, "rename into %s", p)
	}
	return nil
}

// Remove implements storage.KV.
func (s *Store) Remove(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "remove %s", p)
	}
	return nil
}

// Ping implements storage.KV by checking the directory is still accessible.
func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return errors.Wrap(err, "stat storage dir")
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", s.dir)
	}
	return nil
}
