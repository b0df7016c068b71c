// Package deb models Debian binary packages and their dependency
// relations, and unpacks .deb containers.
package deb

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/djcass44/aptfetch/pkg/arch"
	"github.com/djcass44/aptfetch/pkg/version"
)

var (
	// ErrInvalidFile marks a corrupt or non-deb binary input.
	ErrInvalidFile = errors.New("not a valid deb file")
	// ErrMissingLocalFile marks a package without a local file on disk.
	ErrMissingLocalFile = errors.New("package has no local file")
)

// Package is one binary deb package, either parsed from a Packages
// index stanza or introspected from a local .deb file.
type Package struct {
	Name      string
	Arch      arch.Arch
	Repo      string
	Version   version.Version
	FileURL   string
	LocalFile string

	PreDepends [][]version.VersionDepends
	Depends    [][]version.VersionDepends
	Breaks     [][]version.VersionDepends
	Conflicts  [][]version.VersionDepends
	Recommends [][]version.VersionDepends
	Suggests   [][]version.VersionDepends
	Enhances   [][]version.VersionDepends
}

func (p *Package) String() string {
	return fmt.Sprintf("%s:%s (%s)", p.Name, p.Arch, p.Version)
}

// SetRelation replaces the relation list named by rel.
func (p *Package) SetRelation(rel version.PackageRelation, groups [][]version.VersionDepends) {
	switch rel {
	case version.PreDepends:
		p.PreDepends = groups
	case version.Depends:
		p.Depends = groups
	case version.Breaks:
		p.Breaks = groups
	case version.Conflicts:
		p.Conflicts = groups
	case version.Recommends:
		p.Recommends = groups
	case version.Suggests:
		p.Suggests = groups
	case version.Enhances:
		p.Enhances = groups
	}
}

// AddRelation appends one AND-group to the relation list its
// alternatives belong to. Used when hydrating a package from the
// persistent cache.
func (p *Package) AddRelation(group []version.VersionDepends) {
	if len(group) == 0 {
		return
	}
	switch group[0].PackageRelation {
	case version.PreDepends:
		p.PreDepends = append(p.PreDepends, group)
	case version.Depends:
		p.Depends = append(p.Depends, group)
	case version.Breaks:
		p.Breaks = append(p.Breaks, group)
	case version.Conflicts:
		p.Conflicts = append(p.Conflicts, group)
	case version.Recommends:
		p.Recommends = append(p.Recommends, group)
	case version.Suggests:
		p.Suggests = append(p.Suggests, group)
	case version.Enhances:
		p.Enhances = append(p.Enhances, group)
	}
}

// Relations returns all relation AND-groups of the package in a fixed
// order. Each group is a non-empty list of OR-alternatives carrying
// their PackageRelation, so the original field can be recovered.
func (p *Package) Relations() [][]version.VersionDepends {
	var out [][]version.VersionDepends
	for _, groups := range [][][]version.VersionDepends{
		p.PreDepends, p.Depends, p.Breaks, p.Conflicts,
		p.Recommends, p.Suggests, p.Enhances,
	} {
		out = append(out, groups...)
	}
	return out
}

// GetDepends returns the AND-groups that must be satisfied to install
// the package (Depends plus Pre-Depends).
func (p *Package) GetDepends() [][]version.VersionDepends {
	out := make([][]version.VersionDepends, 0, len(p.Depends)+len(p.PreDepends))
	out = append(out, p.Depends...)
	return append(out, p.PreDepends...)
}

// Compare orders packages by name, then by version. A missing version
// sorts lowest, unless the package has an existing local file, which
// sorts highest: of otherwise equal candidates we prefer what is
// already on disk.
func (p *Package) Compare(o *Package) int {
	if p.Name != o.Name {
		return strings.Compare(p.Name, o.Name)
	}
	if p.Version.Empty() || o.Version.Empty() {
		pr, or := p.rank(), o.rank()
		switch {
		case pr < or:
			return -1
		case pr > or:
			return 1
		}
		return 0
	}
	return p.Version.Compare(o.Version)
}

func (p *Package) rank() int {
	if !p.Version.Empty() {
		return 1
	}
	if p.LocalFile != "" {
		if _, err := os.Stat(p.LocalFile); err == nil {
			return 2
		}
	}
	return 0
}

// Filter reports whether the package satisfies a version constraint.
// Used identically by the persistent cache query and the resolver's
// best-candidate filter.
func Filter(p *Package, v version.Version, r version.Relation) bool {
	if p.Version.Empty() {
		return false
	}
	return r.Matches(p.Version, v)
}
