package deb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djcass44/aptfetch/pkg/arch"
	"github.com/djcass44/aptfetch/pkg/version"
)

const busyboxControl = `Package: busybox
Version: 1:1.30.1-7
Architecture: amd64
Depends: libc6 (>= 2.11)
Description: Tiny utilities for small and embedded systems
`

// tarGz builds a gzip-compressed tarball holding the given files.
func tarGz(t *testing.T, files map[string]string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// writeDeb assembles a minimal but well-formed deb container.
func writeDeb(t *testing.T, path, control string, data map[string]string) {
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := ar.NewWriter(f)
	require.NoError(t, w.WriteGlobalHeader())
	for _, entry := range []struct {
		name string
		body []byte
	}{
		{"debian-binary", []byte("2.0\n")},
		{"control.tar.gz", tarGz(t, map[string]string{"./control": control})},
		{"data.tar.gz", tarGz(t, data)},
	} {
		require.NoError(t, w.WriteHeader(&ar.Header{
			Name:    entry.name,
			Mode:    0644,
			Size:    int64(len(entry.body)),
			ModTime: time.Now(),
		}))
		_, err := w.Write(entry.body)
		require.NoError(t, err)
	}
}

func TestParsePackages(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	index := busyboxControl + "\nPackage: gcc-12-base\nVersion: 12.2.0-14\nArchitecture: all\n"
	pkgs := ParsePackages(ctx, index)
	require.Len(t, pkgs, 2)

	busybox := pkgs[0]
	assert.EqualValues(t, "busybox", busybox.Name)
	assert.EqualValues(t, arch.AMD64, busybox.Arch)
	assert.True(t, busybox.Version.Equal(version.New("1:1.30.1-7")))
	require.Len(t, busybox.Depends, 1)
	require.Len(t, busybox.Depends[0], 1)
	assert.EqualValues(t, "libc6", busybox.Depends[0][0].Name)
	assert.EqualValues(t, version.Larger, busybox.Depends[0][0].VersionRelation)

	assert.EqualValues(t, arch.All, pkgs[1].Arch)
	assert.Empty(t, pkgs[1].Depends)
}

func TestFromFilename(t *testing.T) {
	t.Run("well formed name", func(t *testing.T) {
		p, err := FromFilename("/tmp/does-not-exist/busybox_1.30.1-7_amd64.deb")
		require.NoError(t, err)
		assert.EqualValues(t, "busybox", p.Name)
		assert.EqualValues(t, arch.AMD64, p.Arch)
		assert.EqualValues(t, "local_deb", p.Repo)
		// the file does not exist, so no local file is recorded
		assert.Empty(t, p.LocalFile)
	})
	t.Run("existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "foo_1.0_all.deb")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		p, err := FromFilename(path)
		require.NoError(t, err)
		assert.EqualValues(t, path, p.LocalFile)
	})
	t.Run("not a deb", func(t *testing.T) {
		_, err := FromFilename("foo_1.0_all.rpm")
		assert.ErrorIs(t, err, ErrInvalidFile)
	})
	t.Run("wrong segment count", func(t *testing.T) {
		_, err := FromFilename("foo_1.0.deb")
		assert.ErrorIs(t, err, ErrInvalidFile)
	})
}

func TestPackage_Compare(t *testing.T) {
	a := &Package{Name: "foo", Version: version.New("1.0")}
	b := &Package{Name: "foo", Version: version.New("1.1")}
	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Zero(t, a.Compare(a))

	// name dominates the version
	z := &Package{Name: "zsh", Version: version.New("0.1")}
	assert.Negative(t, a.Compare(z))

	t.Run("missing version sorts lowest", func(t *testing.T) {
		unversioned := &Package{Name: "foo"}
		assert.Negative(t, unversioned.Compare(a))
		assert.Positive(t, a.Compare(unversioned))
	})
	t.Run("on-disk file beats a bare version", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "foo.deb")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		local := &Package{Name: "foo", LocalFile: path}
		assert.Positive(t, local.Compare(a))
	})
}

func TestPackage_GetDepends(t *testing.T) {
	p := &Package{Name: "foo"}
	p.SetRelation(version.Depends, [][]version.VersionDepends{{{Name: "a"}}})
	p.SetRelation(version.PreDepends, [][]version.VersionDepends{{{Name: "b"}}})
	p.SetRelation(version.Suggests, [][]version.VersionDepends{{{Name: "c"}}})

	depends := p.GetDepends()
	require.Len(t, depends, 2)
	assert.EqualValues(t, "a", depends[0][0].Name)
	assert.EqualValues(t, "b", depends[1][0].Name)

	assert.Len(t, p.Relations(), 3)
}

func TestDebFile_ToPackage(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	path := filepath.Join(t.TempDir(), "busybox_1%3a1.30.1-7_amd64.deb")
	writeDeb(t, path, busyboxControl, map[string]string{"./usr/bin/busybox": "#!"})

	p, err := NewDebFile(path).ToPackage(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, "busybox", p.Name)
	assert.True(t, p.Version.Equal(version.New("1:1.30.1-7")))
	assert.EqualValues(t, "local_deb", p.Repo)
	assert.EqualValues(t, path, p.LocalFile)
	require.Len(t, p.Depends, 1)

	t.Run("not a deb", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.deb")
		require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0644))
		_, err := NewDebFile(bad).ToPackage(ctx)
		assert.ErrorIs(t, err, ErrInvalidFile)
	})
}

func TestPackage_Extract(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	path := filepath.Join(t.TempDir(), "hello_1.0_amd64.deb")
	writeDeb(t, path, "Package: hello\nVersion: 1.0\nArchitecture: amd64\n", map[string]string{
		"./usr/bin/hello":              "#!/bin/sh\necho hello\n",
		"./usr/share/doc/hello/README": "hi\n",
	})

	p, err := FromFilename(path)
	require.NoError(t, err)

	out := t.TempDir()
	location, err := p.Extract(ctx, out)
	require.NoError(t, err)
	assert.EqualValues(t, out, location)
	assert.FileExists(t, filepath.Join(out, "usr", "bin", "hello"))
	assert.FileExists(t, filepath.Join(out, "usr", "share", "doc", "hello", "README"))

	t.Run("temporary directory", func(t *testing.T) {
		location, err := p.Extract(ctx, "")
		require.NoError(t, err)
		defer os.RemoveAll(location)
		assert.FileExists(t, filepath.Join(location, "usr", "bin", "hello"))
	})
	t.Run("no local file", func(t *testing.T) {
		q := &Package{Name: "hello"}
		_, err := q.Extract(ctx, "")
		assert.ErrorIs(t, err, ErrMissingLocalFile)
	})
}
