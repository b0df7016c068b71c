package deb

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/djcass44/aptfetch/pkg/arch"
	"github.com/djcass44/aptfetch/pkg/control"
	"github.com/djcass44/aptfetch/pkg/version"
)

// relationFields lists the seven relation fields of a Packages stanza.
var relationFields = []version.PackageRelation{
	version.Depends,
	version.PreDepends,
	version.Recommends,
	version.Suggests,
	version.Enhances,
	version.Breaks,
	version.Conflicts,
}

// ParsePackages parses the content of a Packages index into a list of
// packages. Repo is left empty and must be stamped by the caller.
func ParsePackages(ctx context.Context, content string) []*Package {
	var out []*Package
	for _, stanza := range control.ParseStanzas(content, true) {
		a := arch.FromString(stanza["architecture"])
		p := &Package{
			Name:    stanza["package"],
			Arch:    a,
			Version: version.New(stanza["version"]),
			FileURL: stanza["filename"],
		}
		for _, rel := range relationFields {
			value, ok := stanza[string(rel)]
			if !ok {
				continue
			}
			p.SetRelation(rel, parseRelation(ctx, p.Name, value, rel, a))
		}
		out = append(out, p)
	}
	return out
}

// parseRelation splits a relation field into AND-groups and parses each
// group's OR-alternatives. Malformed groups are logged and skipped.
func parseRelation(ctx context.Context, name, value string, rel version.PackageRelation, a arch.Arch) [][]version.VersionDepends {
	log := logr.FromContextOrDiscard(ctx)
	var groups [][]version.VersionDepends
	for _, clause := range strings.Split(value, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		group := version.ParseDepends(ctx, clause, a, rel)
		if group == nil {
			log.V(1).Info("skipping invalid package relation", "pkg", name, "relation", rel, "clause", clause)
			continue
		}
		groups = append(groups, group)
	}
	return groups
}

// FromFilename creates a package from a local deb file named
// name_version_arch.deb. LocalFile is only set when the file exists on
// disk.
func FromFilename(path string) (*Package, error) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".deb") {
		return nil, ErrInvalidFile
	}
	parts := strings.Split(strings.TrimSuffix(base, ".deb"), "_")
	if len(parts) != 3 {
		return nil, ErrInvalidFile
	}

	p := &Package{
		Name:    strings.TrimSpace(parts[0]),
		Version: version.New(strings.TrimSpace(parts[1])),
		Arch:    arch.FromString(strings.TrimSpace(parts[2])),
		Repo:    "local_deb",
	}
	if _, err := os.Stat(path); err == nil {
		p.LocalFile = path
	}
	return p, nil
}
