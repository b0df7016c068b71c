package archiveutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chainguard.dev/apko/pkg/apk/fs"
	"github.com/blakesmith/ar"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func TestUnar(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	var buf bytes.Buffer
	w := ar.NewWriter(&buf)
	require.NoError(t, w.WriteGlobalHeader())
	body := []byte("2.0\n")
	require.NoError(t, w.WriteHeader(&ar.Header{Name: "debian-binary", Mode: 0644, Size: int64(len(body)), ModTime: time.Now()}))
	_, err := w.Write(body)
	require.NoError(t, err)

	rootfs := fs.NewMemFS()
	require.NoError(t, Unar(ctx, &buf, rootfs))

	f, err := rootfs.Open("/debian-binary")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.EqualValues(t, "2.0\n", string(data))

	t.Run("garbage input", func(t *testing.T) {
		assert.Error(t, Unar(ctx, bytes.NewReader([]byte("not an archive")), fs.NewMemFS()))
	})
}

func writeTar(t *testing.T, tw *tar.Writer) {
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "./etc", Typeflag: tar.TypeDir, Mode: 0755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "./etc/hostname", Typeflag: tar.TypeReg, Mode: 0644, Size: 5}))
	_, err := tw.Write([]byte("test\n"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "./etc/alias", Typeflag: tar.TypeSymlink, Linkname: "hostname", Mode: 0777}))
	require.NoError(t, tw.Close())
}

func TestUntar(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	writeTar(t, tw)

	out := t.TempDir()
	require.NoError(t, Untar(ctx, &buf, out))

	assert.DirExists(t, filepath.Join(out, "etc"))
	assert.FileExists(t, filepath.Join(out, "etc", "hostname"))

	link, err := os.Readlink(filepath.Join(out, "etc", "alias"))
	require.NoError(t, err)
	assert.EqualValues(t, "hostname", link)
}

func TestGuntar(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(t, tar.NewWriter(gz))
	require.NoError(t, gz.Close())

	out := t.TempDir()
	require.NoError(t, Guntar(ctx, &buf, out))
	assert.FileExists(t, filepath.Join(out, "etc", "hostname"))
}

func TestXZuntar(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	var buf bytes.Buffer
	xzw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	writeTar(t, tar.NewWriter(xzw))
	require.NoError(t, xzw.Close())

	out := t.TempDir()
	require.NoError(t, XZuntar(ctx, &buf, out))
	assert.FileExists(t, filepath.Join(out, "etc", "hostname"))
}
