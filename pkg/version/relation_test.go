package version

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djcass44/aptfetch/pkg/arch"
)

func TestRelation_Matches(t *testing.T) {
	var cases = []struct {
		rel       Relation
		candidate string
		required  string
		ok        bool
	}{
		{StrictSmaller, "1.0", "1.1", true},
		{StrictSmaller, "1.1", "1.1", false},
		{Smaller, "1.1", "1.1", true},
		{Exact, "1.1", "1.1", true},
		{Exact, "1.1", "1.2", false},
		{Larger, "1.1", "1.1", true},
		{StrictLarger, "1.2", "1.1", true},
		{StrictLarger, "1.1", "1.1", false},
	}

	for _, tt := range cases {
		t.Run(string(tt.rel), func(t *testing.T) {
			assert.EqualValues(t, tt.ok, tt.rel.Matches(New(tt.candidate), New(tt.required)))
		})
	}
}

func TestParseDepends(t *testing.T) {
	ctx := context.TODO()

	t.Run("alternatives", func(t *testing.T) {
		vds := ParseDepends(ctx, "a (>= 1.2) | b (<< 2.0)", arch.AMD64, Depends)
		require.Len(t, vds, 2)

		assert.EqualValues(t, "a", vds[0].Name)
		assert.EqualValues(t, arch.AMD64, vds[0].Arch)
		assert.EqualValues(t, Larger, vds[0].VersionRelation)
		assert.True(t, vds[0].Version.Equal(New("1.2")))
		assert.EqualValues(t, Depends, vds[0].PackageRelation)

		assert.EqualValues(t, "b", vds[1].Name)
		assert.EqualValues(t, StrictSmaller, vds[1].VersionRelation)
		assert.True(t, vds[1].Version.Equal(New("2.0")))
	})
	t.Run("architecture qualifier", func(t *testing.T) {
		vds := ParseDepends(ctx, "libc6:arm64", arch.AMD64, PreDepends)
		require.Len(t, vds, 1)
		assert.EqualValues(t, arch.ARM64, vds[0].Arch)
		assert.True(t, vds[0].Version.Empty())
	})
	t.Run("unversioned", func(t *testing.T) {
		vds := ParseDepends(ctx, "gcc-12-base", arch.Any, Depends)
		require.Len(t, vds, 1)
		assert.EqualValues(t, "gcc-12-base", vds[0].Name)
		assert.EqualValues(t, Relation(""), vds[0].VersionRelation)
	})
	t.Run("malformed alternatives are logged and skipped", func(t *testing.T) {
		var logged []string
		log := funcr.New(func(prefix, args string) {
			logged = append(logged, args)
		}, funcr.Options{Verbosity: 10})

		vds := ParseDepends(logr.NewContext(ctx, log), "a (>= 1.2) | (broken", arch.AMD64, Depends)
		require.Len(t, vds, 1)
		assert.EqualValues(t, "a", vds[0].Name)

		require.Len(t, logged, 1)
		assert.Contains(t, logged[0], "(broken")
	})
	t.Run("nothing parsed", func(t *testing.T) {
		assert.Nil(t, ParseDepends(ctx, "", arch.AMD64, Depends))
	})
}

func TestVersionDepends_String(t *testing.T) {
	vd := VersionDepends{
		Name:            "foo",
		Arch:            arch.AMD64,
		PackageRelation: Depends,
		VersionRelation: Larger,
		Version:         New("1.2"),
	}
	assert.EqualValues(t, "foo:amd64 (>= 1.2)", vd.String())
}
