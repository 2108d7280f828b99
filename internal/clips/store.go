package clips

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/glizzus/terminus/internal/audio"
	"github.com/glizzus/terminus/internal/datalayer"
	"golang.org/x/sync/singleflight"
)

// ObjectKey is the blob storage key of an asset file.
func ObjectKey(file string) string {
	return path.Join("clips", filepath.ToSlash(file))
}

// DirStore resolves clips to files under a local directory.
type DirStore struct {
	dir     string
	catalog *Catalog
}

var _ audio.ClipResolver = (*DirStore)(nil)

func NewDirStore(dir string, catalog *Catalog) *DirStore {
	return &DirStore{dir: dir, catalog: catalog}
}

func (s *DirStore) ResolveClip(ctx context.Context, clipID string) (string, error) {
	clip, ok := s.catalog.Clip(clipID)
	if !ok {
		return "", fmt.Errorf("%w: %s", audio.ErrClipNotFound, clipID)
	}

	p := filepath.Join(s.dir, clip.File)
	if !isFile(p) {
		return "", fmt.Errorf("%w: %s has no file at %s", audio.ErrClipNotFound, clipID, p)
	}
	return p, nil
}

// MinioStore resolves clips from blob storage, keeping a local copy for the
// transcoder.
type MinioStore struct {
	objects  datalayer.BlobStorage
	cacheDir string
	catalog  *Catalog

	downloads singleflight.Group
}

var _ audio.ClipResolver = (*MinioStore)(nil)

func NewMinioStore(objects datalayer.BlobStorage, cacheDir string, catalog *Catalog) *MinioStore {
	return &MinioStore{
		objects:  objects,
		cacheDir: cacheDir,
		catalog:  catalog,
	}
}

// ResolveClip returns the cached file for clipID, downloading it first if
// needed. Concurrent calls for the same clip share one download.
func (s *MinioStore) ResolveClip(ctx context.Context, clipID string) (string, error) {
	clip, ok := s.catalog.Clip(clipID)
	if !ok {
		return "", fmt.Errorf("%w: %s", audio.ErrClipNotFound, clipID)
	}

	local := filepath.Join(s.cacheDir, clip.File)
	if isFile(local) {
		return local, nil
	}

	key := ObjectKey(clip.File)
	_, err, _ := s.downloads.Do(key, func() (any, error) {
		if isFile(local) {
			return nil, nil
		}
		if _, err := s.objects.Stat(ctx, key); err != nil {
			if errors.Is(err, datalayer.ErrObjectNotFound) {
				return nil, fmt.Errorf("%w: %s: %w", audio.ErrClipNotFound, clipID, err)
			}
			return nil, fmt.Errorf("failed to stat %s: %w", key, err)
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		if err := s.objects.Download(ctx, key, local); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", key, err)
		}
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
