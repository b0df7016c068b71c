// Package cache is a durable, queryable store of downloaded deb
// packages and their dependency graphs, backed by sqlite plus on-disk
// .deb blobs. It is safe to populate from many processes sharing one
// cache directory.
package cache

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/djcass44/aptfetch/internal/fsutil"
	"github.com/djcass44/aptfetch/pkg/arch"
	"github.com/djcass44/aptfetch/pkg/deb"
	"github.com/djcass44/aptfetch/pkg/version"
)

const indexFile = "index.db"

// Cache is the persistent package cache. Blobs live under
// <folder>/<version-epoch>/<package>.deb, the index in
// <folder>/index.db.
type Cache struct {
	folder  string
	backend *backend
}

// New opens the cache at folder, defaulting to the shared cache
// location. The first process to open a fresh directory creates the
// schema and reconciles any .deb files already on disk; concurrent
// openers skip initialization without blocking.
func New(ctx context.Context, folder string) (*Cache, error) {
	if folder == "" {
		var err error
		folder, err = fsutil.CacheFolder("cache")
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, err
	}

	b, err := newBackend(filepath.Join(folder, indexFile), newCodec())
	if err != nil {
		return nil, err
	}
	c := &Cache{folder: folder, backend: b}
	if err := b.create(ctx, c.scanExistingFiles); err != nil {
		return nil, err
	}
	return c, nil
}

// Folder is the cache directory.
func (c *Cache) Folder() string {
	return c.folder
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.backend.close()
}

// Clear deletes and recreates the on-disk store.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.backend.close(); err != nil {
		return err
	}
	if err := os.RemoveAll(c.folder); err != nil {
		return err
	}
	if err := os.MkdirAll(c.folder, 0755); err != nil {
		return err
	}
	b, err := newBackend(filepath.Join(c.folder, indexFile), newCodec())
	if err != nil {
		return err
	}
	c.backend = b
	return b.create(ctx, nil)
}

// scanExistingFiles reconciles .deb files already in the cache
// directory with the fresh index. Files that are not valid debs are
// deleted; files that conflict with an already registered package
// (same identity or same path) are redundant and deleted too. The
// scan runs inside the initialization transaction, so inserts use
// savepoints.
func (c *Cache) scanExistingFiles(ctx context.Context) {
	log := logr.FromContextOrDiscard(ctx).WithValues("folder", c.folder)

	_ = filepath.WalkDir(c.folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".deb") {
			return nil
		}
		p, err := deb.NewDebFile(path).ToPackage(ctx)
		if err != nil {
			log.V(1).Info("deleting invalid cache file", "file", path, "err", err)
			_ = os.Remove(path)
			return nil
		}
		ok, err := c.backend.add(ctx, p, txnSavepoint)
		if err != nil {
			log.Error(err, "failed to register cache file", "file", path)
			return nil
		}
		if !ok {
			log.V(1).Info("deleting redundant cache file", "file", path)
			_ = os.Remove(path)
		}
		return nil
	})
}

// Add registers a downloaded package with the cache, placing its deb
// under a version-epoch-named subfolder to avoid filename collisions
// across epochs. Returns the cache-managed file path, or an empty
// string when the package cannot be added (no version, no local
// file). When the identity is already present the package's existing
// local file is returned unchanged.
func (c *Cache) Add(ctx context.Context, p *deb.Package, doMove bool) string {
	log := logr.FromContextOrDiscard(ctx).WithValues("pkg", p.String())
	log.V(1).Info("adding package to cache")

	if p.Version.Empty() {
		log.V(1).Info("package has no version, not caching")
		return ""
	}
	if p.LocalFile == "" {
		log.V(1).Info("package has no local file, not caching")
		return ""
	}
	if _, err := os.Stat(p.LocalFile); err != nil {
		log.V(1).Info("local file of package does not exist, not caching", "file", p.LocalFile)
		return ""
	}

	dstFolder := filepath.Join(c.folder, strconv.Itoa(p.Version.Epoch()))
	dstFile := filepath.Join(dstFolder, filepath.Base(p.LocalFile))

	oldLocal := p.LocalFile
	p.LocalFile = dstFile
	ok, err := c.backend.add(ctx, p, txnOwn)
	if err != nil {
		log.Error(err, "failed to insert package")
		p.LocalFile = oldLocal
		return ""
	}
	if !ok {
		log.V(1).Info("package already cached")
		p.LocalFile = oldLocal
		return oldLocal
	}

	if oldLocal != dstFile {
		if _, err := os.Stat(dstFile); err == nil {
			log.V(1).Info("not overwriting existing deb", "file", dstFile)
		} else {
			if err := os.MkdirAll(dstFolder, 0755); err != nil {
				log.Error(err, "failed to create epoch folder", "folder", dstFolder)
				return ""
			}
			if doMove {
				err = fsutil.MoveFile(oldLocal, dstFile)
			} else {
				err = fsutil.CopyFile(oldLocal, dstFile)
			}
			if err != nil {
				log.Error(err, "failed to place deb in cache", "file", dstFile)
				return ""
			}
		}
	}
	return p.LocalFile
}

// Get returns the best cached package for the given identity, or nil
// on a miss. When a version is given without a relation,
// larger-or-equal is assumed.
func (c *Cache) Get(ctx context.Context, a arch.Arch, name string, v version.Version, rel version.Relation) (*deb.Package, error) {
	logr.FromContextOrDiscard(ctx).V(2).Info("cache lookup", "name", name, "version", v.String(), "arch", a)
	return c.backend.get(ctx, a, name, v, rel)
}

// Size is the number of packages in the cache.
func (c *Cache) Size(ctx context.Context) (int, error) {
	return c.backend.size(ctx)
}
