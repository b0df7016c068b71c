package repo

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djcass44/aptfetch/pkg/arch"
)

func TestApt_FindPackage(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	ts := newDebServer(t)
	defer ts.Close()

	apt, err := NewApt(NewDebRepo(ts.URL, "bookworm", nil, arch.AMD64), "", "", t.TempDir())
	require.NoError(t, err)

	pkgs, err := apt.FindPackage(ctx, "libc6")
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.EqualValues(t, "libc6", pkgs[0].Name)

	t.Run("unknown package", func(t *testing.T) {
		pkgs, err := apt.FindPackage(ctx, "no-such-package")
		require.NoError(t, err)
		assert.Empty(t, pkgs)
	})
}

func TestFromConfig(t *testing.T) {
	t.Run("distribution repository", func(t *testing.T) {
		apt, err := FromConfig(Config{AptRepo: "http://deb.debian.org/debian", Distro: "bookworm"}, arch.AMD64)
		require.NoError(t, err)
		_, ok := apt.Repo().(*DebRepo)
		assert.True(t, ok)
	})
	t.Run("flat repository", func(t *testing.T) {
		apt, err := FromConfig(Config{AptRepo: "http://example.org", Directory: "debs"}, arch.AMD64)
		require.NoError(t, err)
		_, ok := apt.Repo().(*FlatRepo)
		assert.True(t, ok)
	})
	t.Run("missing url", func(t *testing.T) {
		_, err := FromConfig(Config{Distro: "bookworm"}, arch.AMD64)
		assert.ErrorIs(t, err, ErrNoRepo)
	})
	t.Run("missing shape", func(t *testing.T) {
		_, err := FromConfig(Config{AptRepo: "http://example.org"}, arch.AMD64)
		assert.ErrorIs(t, err, ErrNoRepo)
	})
}

func TestApt_SourcesEntry(t *testing.T) {
	r := NewDebRepo("http://deb.debian.org/debian", "bookworm", nil, arch.AMD64)

	t.Run("untrusted without keyring", func(t *testing.T) {
		apt, err := NewApt(r, "", "", t.TempDir())
		require.NoError(t, err)
		assert.EqualValues(t, "deb [trusted=yes] http://deb.debian.org/debian bookworm main", apt.SourcesEntry())
	})
	t.Run("signed with keyring", func(t *testing.T) {
		apt, err := NewApt(r, "", "/etc/apt/keyrings/debian.gpg", t.TempDir())
		require.NoError(t, err)
		assert.EqualValues(t, "deb [signed-by=/etc/apt/keyrings/debian.gpg] http://deb.debian.org/debian bookworm main", apt.SourcesEntry())
	})
}

func TestApt_UbuntuDefaultKeyring(t *testing.T) {
	apt, err := NewApt(NewDebRepo("http://archive.ubuntu.com/ubuntu", "noble", nil, arch.AMD64), "", "", t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, apt.KeyGPG)
}

func TestApt_GetKeyFiles(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	// an armored block with known body bytes
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, "PGP PUBLIC KEY BLOCK", nil)
	require.NoError(t, err)
	_, err = w.Write([]byte("key material"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	keyPath := filepath.Join(t.TempDir(), "archive.key")
	require.NoError(t, os.WriteFile(keyPath, buf.Bytes(), 0644))

	apt, err := NewApt(NewDebRepo("http://example.org", "stable", nil, arch.AMD64), "file://"+keyPath, "", t.TempDir())
	require.NoError(t, err)

	outDir := t.TempDir()
	pub, gpg, err := apt.GetKeyFiles(ctx, outDir)
	require.NoError(t, err)
	assert.FileExists(t, pub)
	require.FileExists(t, gpg)

	dearmored, err := os.ReadFile(gpg)
	require.NoError(t, err)
	assert.EqualValues(t, "key material", string(dearmored))

	t.Run("no key configured", func(t *testing.T) {
		apt, err := NewApt(NewDebRepo("http://example.org", "stable", nil, arch.AMD64), "", "", t.TempDir())
		require.NoError(t, err)
		pub, gpg, err := apt.GetKeyFiles(ctx, outDir)
		require.NoError(t, err)
		assert.Empty(t, pub)
		assert.Empty(t, gpg)
	})
}
