package deb

import (
	"context"
	"fmt"
	"os"

	"chainguard.dev/apko/pkg/apk/fs"
	"github.com/go-logr/logr"

	"github.com/djcass44/aptfetch/pkg/archiveutil"
)

// the data archive variants a deb container may carry, in the order we
// probe for them
var dataArchives = []string{
	"/data.tar",
	"/data.tar.xz",
	"/data.tar.gz",
	"/data.tar.zst",
}

// Extract unpacks the package's data archive into location, creating a
// temporary directory when location is empty. The deb container is
// staged into an in-memory filesystem using the equivalent of 'ar -x',
// then the data.tar (or a compressed variant) is expanded on disk.
// Returns the directory the content was extracted to.
func (p *Package) Extract(ctx context.Context, location string) (string, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("pkg", p.Name)

	if p.LocalFile == "" {
		return "", ErrMissingLocalFile
	}
	f, err := os.Open(p.LocalFile)
	if err != nil {
		log.V(1).Info("deb file does not exist", "file", p.LocalFile)
		return "", fmt.Errorf("%w: %s", ErrMissingLocalFile, p.LocalFile)
	}
	defer f.Close()

	if location == "" {
		location, err = os.MkdirTemp("", fmt.Sprintf("%s-*", p.Name))
		if err != nil {
			return "", err
		}
	}

	tmpFs := fs.NewMemFS()
	if err := archiveutil.Unar(ctx, f, tmpFs); err != nil {
		log.V(1).Info("failed to unpack deb container", "err", err)
		return "", fmt.Errorf("%w: %s", ErrInvalidFile, p.LocalFile)
	}

	for _, name := range dataArchives {
		data, err := tmpFs.Open(name)
		if err != nil {
			continue
		}
		log.V(1).Info("unpacking data archive", "name", name, "location", location)
		err = untarByExt(ctx, name, data, location)
		_ = data.Close()
		if err != nil {
			return "", err
		}
		return location, nil
	}

	log.V(1).Info("no data archive found in deb")
	return "", fmt.Errorf("%w: no data archive in %s", ErrInvalidFile, p.LocalFile)
}
