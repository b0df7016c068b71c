package downloader

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-getter"
)

type Downloader struct {
	dir string
}

func NewDownloader(dir string) (*Downloader, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Downloader{dir: dir}, nil
}

// Download fetches src into the download directory and returns the
// resulting path. The file is staged under a temporary name and
// renamed into place once complete, so other processes sharing the
// directory never observe a partial file.
func (d *Downloader) Download(ctx context.Context, src string) (string, error) {
	log := logr.FromContextOrDiscard(ctx)
	log.Info("downloading file", "src", src)

	uri, err := url.Parse(src)
	if err != nil {
		log.Error(err, "failed to parse url")
		return "", err
	}

	dst := filepath.Join(d.dir, filepath.Base(uri.Path))
	staging := filepath.Join(d.dir, uuid.NewString()+".part")
	log.V(1).Info("preparing to download file", "dst", dst)

	client := &getter.Client{
		Ctx:             ctx,
		Src:             src,
		Dst:             staging,
		Mode:            getter.ClientModeFile,
		DisableSymlinks: true,
	}
	if err := client.Get(); err != nil {
		log.Error(err, "failed to download file")
		_ = os.Remove(staging)
		return "", err
	}
	// we need to chmod the files so that the root group
	// can access them as if they were the owner
	if err := os.Chmod(staging, 0664); err != nil {
		log.Error(err, "failed to update file permissions", "file", staging)
		_ = os.Remove(staging)
		return "", err
	}
	if err := os.Rename(staging, dst); err != nil {
		log.Error(err, "failed to publish downloaded file", "file", dst)
		_ = os.Remove(staging)
		return "", err
	}

	return dst, nil
}
