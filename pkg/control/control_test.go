package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const packagesIndex = `Package: busybox
Version: 1:1.30.1-7
Architecture: amd64
Depends: libc6 (>= 2.11)
Description: Tiny utilities for small and embedded systems
 BusyBox combines tiny versions of many common UNIX utilities into
 a single small executable.

Package: gcc-12-base
Version: 12.2.0-14
Architecture: amd64
`

func TestParseStanzas(t *testing.T) {
	t.Run("multi stanza", func(t *testing.T) {
		stanzas := ParseStanzas(packagesIndex, true)
		require.Len(t, stanzas, 2)

		assert.EqualValues(t, "busybox", stanzas[0]["package"])
		assert.EqualValues(t, "1:1.30.1-7", stanzas[0]["version"])
		assert.EqualValues(t, "gcc-12-base", stanzas[1]["package"])
	})
	t.Run("continuation lines are folded", func(t *testing.T) {
		stanzas := ParseStanzas(packagesIndex, true)
		require.NotEmpty(t, stanzas)
		assert.Contains(t, stanzas[0]["description"], "\nBusyBox combines")
	})
	t.Run("keys are lowercased", func(t *testing.T) {
		stanzas := ParseStanzas("Package: foo\nMulti-Arch: same\n", true)
		require.Len(t, stanzas, 1)
		assert.EqualValues(t, "same", stanzas[0]["multi-arch"])
	})
	t.Run("empty content", func(t *testing.T) {
		assert.Empty(t, ParseStanzas("", true))
	})
}

const inRelease = `-----BEGIN PGP SIGNED MESSAGE-----
Hash: SHA512

Origin: Debian
Suite: stable
Codename: bookworm
Components: main contrib non-free
SHA256:
 aaaa 1234 main/binary-amd64/Packages.gz
 bbbb 5678 main/binary-amd64/Packages.xz
MD5Sum:
 cccc 1234 main/binary-amd64/Packages.gz
-----BEGIN PGP SIGNATURE-----

iQIzBAEBCgAdFiEE...
-----END PGP SIGNATURE-----
`

func TestParseRelease(t *testing.T) {
	info := ParseRelease(inRelease)

	assert.EqualValues(t, "bookworm", info.Field("codename"))
	assert.EqualValues(t, []string{"main", "contrib", "non-free"}, info.Components())

	sha256 := info.Hashes()["sha256"]
	require.Len(t, sha256, 2)
	assert.EqualValues(t, FileHash{Hash: "aaaa", Size: 1234, Filename: "main/binary-amd64/Packages.gz"}, sha256[0])

	require.Len(t, info.Hashes()["md5sum"], 1)

	// the signature block must not leak into the fields
	assert.Empty(t, info.Field("iqizbaebcgadfiee..."))
}
