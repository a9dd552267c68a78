package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores artifacts in a directory that is served under publicPrefix.
type Local struct {
	root         string
	publicPrefix string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
// publicPrefix is the URL path the directory is mounted at, e.g. "/public".
func NewLocal(dir, publicPrefix string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs, publicPrefix: publicPrefix}, nil
}

// Root returns the absolute directory artifacts are written to.
func (l *Local) Root() string { return l.root }

func (l *Local) resolve(name string) string {
	return filepath.Join(l.root, name)
}

// Save writes data to a temp file in the root and renames it into place, so
// readers never observe a partially written artifact.
func (l *Local) Save(_ context.Context, name string, data []byte) (string, error) {
	const op = "storage.save"
	if err := checkName(op, name); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(l.root, ".tmp-*")
	if err != nil {
		return "", storageErr(op, name, err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", storageErr(op, name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", storageErr(op, name, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return "", storageErr(op, name, err)
	}
	if err := os.Rename(tmp, l.resolve(name)); err != nil {
		os.Remove(tmp)
		return "", storageErr(op, name, err)
	}
	return joinURL(l.publicPrefix, name), nil
}

func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	const op = "storage.open"
	if err := checkName(op, name); err != nil {
		return nil, err
	}
	f, err := os.Open(l.resolve(name))
	if err != nil {
		return nil, storageErr(op, name, err)
	}
	return f, nil
}

func (l *Local) Delete(_ context.Context, name string) error {
	const op = "storage.delete"
	if err := checkName(op, name); err != nil {
		return err
	}
	err := os.Remove(l.resolve(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return storageErr(op, name, err)
}

func (l *Local) Exists(_ context.Context, name string) (bool, error) {
	const op = "storage.exists"
	if err := checkName(op, name); err != nil {
		return false, err
	}
	_, err := os.Stat(l.resolve(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, storageErr(op, name, err)
}

var _ ArtifactStore = (*Local)(nil)
