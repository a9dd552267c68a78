// Package storage persists finished podcast artifacts and hands back the
// path the presentation layer serves them from.
//
// Names are flat file names ("<uuid>.mp3"); nested paths are rejected so a
// caller can never write outside the store root.
package storage

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"

	"podcastgen/internal/types"
)

// ArtifactStore is implemented by Local and S3Store.
// Implementations must be safe for concurrent use.
type ArtifactStore interface {
	// Save writes data under name and returns its public path or URL.
	Save(ctx context.Context, name string, data []byte) (string, error)

	// Open returns the stored bytes. A missing artifact yields an error
	// wrapping os.ErrNotExist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the artifact. Missing artifacts are not an error.
	Delete(ctx context.Context, name string) error

	// Exists reports whether the artifact is present.
	Exists(ctx context.Context, name string) (bool, error)
}

func checkName(op, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return types.InvalidInput(op, "invalid artifact name %q", name)
	}
	return nil
}

func storageErr(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &types.Error{Kind: types.KindStorageFailed, Op: op, Message: name, Err: err}
}

func contentType(name string) string {
	if strings.EqualFold(path.Ext(name), types.ArtifactExt) {
		return "audio/mpeg"
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// joinURL joins a base URL or path prefix with name using a single slash.
func joinURL(base, name string) string {
	if base == "" {
		return name
	}
	return strings.TrimRight(base, "/") + "/" + name
}
