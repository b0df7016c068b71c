package deb

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"chainguard.dev/apko/pkg/apk/fs"
	"github.com/go-logr/logr"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/djcass44/aptfetch/pkg/archiveutil"
)

var controlArchives = []string{
	"/control.tar",
	"/control.tar.xz",
	"/control.tar.gz",
	"/control.tar.zst",
}

// DebFile reads package metadata out of a local .deb file.
type DebFile struct {
	path string
}

func NewDebFile(path string) *DebFile {
	return &DebFile{path: path}
}

// ToPackage introspects the deb's control.tar* stanza and returns the
// package it describes, with LocalFile pointing at the deb. Returns
// ErrInvalidFile for corrupt or non-deb input.
func (d *DebFile) ToPackage(ctx context.Context) (*Package, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("file", d.path)

	f, err := os.Open(d.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tmpFs := fs.NewMemFS()
	if err := archiveutil.Unar(ctx, f, tmpFs); err != nil {
		log.V(2).Info("failed to unpack deb container", "err", err)
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, d.path)
	}

	for _, name := range controlArchives {
		data, err := tmpFs.Open(name)
		if err != nil {
			continue
		}
		content, err := readControlStanza(name, data)
		_ = data.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFile, d.path)
		}
		pkgs := ParsePackages(ctx, content)
		if len(pkgs) == 0 || pkgs[0].Name == "" {
			return nil, fmt.Errorf("%w: empty control stanza in %s", ErrInvalidFile, d.path)
		}
		p := pkgs[0]
		p.Repo = "local_deb"
		p.LocalFile = d.path
		return p, nil
	}
	return nil, fmt.Errorf("%w: no control archive in %s", ErrInvalidFile, d.path)
}

// readControlStanza scans the control tarball for the ./control file.
func readControlStanza(name string, r io.Reader) (string, error) {
	dec, err := decompressByExt(name, r)
	if err != nil {
		return "", err
	}

	tr := tar.NewReader(dec)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if path.Clean(strings.TrimPrefix(header.Name, "./")) != "control" {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return "", err
		}
		return string(content), nil
	}
	return "", fmt.Errorf("no control file in %s", name)
}

// decompressByExt wraps a reader with the decompressor matching the
// archive extension.
func decompressByExt(name string, r io.Reader) (io.Reader, error) {
	switch path.Ext(name) {
	case ".xz":
		return xz.NewReader(r)
	case ".gz":
		return gzip.NewReader(r)
	case ".zst":
		return zstd.NewReader(r)
	case ".tar":
		return r, nil
	}
	return nil, fmt.Errorf("unknown archive compression: %s", name)
}

// untarByExt expands a (possibly compressed) tar stream into path.
func untarByExt(ctx context.Context, name string, r io.Reader, location string) error {
	switch path.Ext(name) {
	case ".xz":
		return archiveutil.XZuntar(ctx, r, location)
	case ".gz":
		return archiveutil.Guntar(ctx, r, location)
	case ".zst":
		return archiveutil.Zuntar(ctx, r, location)
	case ".tar":
		return archiveutil.Untar(ctx, r, location)
	}
	return fmt.Errorf("unknown archive compression: %s", name)
}
