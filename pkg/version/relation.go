package version

import (
	"context"
	"regexp"
	"strings"

	"github.com/go-logr/logr"

	"github.com/djcass44/aptfetch/pkg/arch"
)

// PackageRelation names the control-file field a dependency atom came
// from.
type PackageRelation string

const (
	PreDepends PackageRelation = "pre-depends"
	Depends    PackageRelation = "depends"
	Breaks     PackageRelation = "breaks"
	Conflicts  PackageRelation = "conflicts"
	Recommends PackageRelation = "recommends"
	Suggests   PackageRelation = "suggests"
	Enhances   PackageRelation = "enhances"
)

// Relation is a Debian version comparator as used in dependency
// expressions, e.g. "foo (>= 1.2)".
type Relation string

const (
	StrictSmaller Relation = "<<"
	Smaller       Relation = "<="
	Exact         Relation = "="
	Larger        Relation = ">="
	StrictLarger  Relation = ">>"
)

// Matches applies the comparator to a candidate version, given the
// required version of a dependency expression.
func (r Relation) Matches(candidate, required Version) bool {
	switch r {
	case StrictSmaller:
		return candidate.Compare(required) < 0
	case Smaller:
		return candidate.Compare(required) <= 0
	case Exact:
		return candidate.Compare(required) == 0
	case Larger:
		return candidate.Compare(required) >= 0
	case StrictLarger:
		return candidate.Compare(required) > 0
	}
	return false
}

// VersionDepends is one atom of a dependency expression: a package
// name, optionally architecture-qualified and version-constrained.
type VersionDepends struct {
	Name            string
	Arch            arch.Arch
	PackageRelation PackageRelation
	VersionRelation Relation
	Version         Version
}

func (vd VersionDepends) String() string {
	s := vd.Name
	if vd.Arch != "" {
		s += ":" + vd.Arch.String()
	}
	if !vd.Version.Empty() {
		s += " (" + string(vd.VersionRelation) + " " + vd.Version.String() + ")"
	}
	return s
}

// https://www.debian.org/doc/debian-policy/ch-relationships.html
var regexpDepends = regexp.MustCompile(`^([a-zA-Z0-9][a-zA-Z0-9+.~-]*)(?::([a-zA-Z0-9]+))?\s*(?:\(\s*(<<|<=|=|>=|>>)\s*([^)\s]+)\s*\))?$`)

// ParseDepends parses one OR-group of a dependency expression, e.g.
// "a (>= 1.2) | b". Alternatives without an architecture qualifier
// inherit fallback; an ":any"/":all" suffix maps to the wildcard
// architecture. Malformed alternatives are logged and skipped; a nil
// result means nothing could be parsed.
func ParseDepends(ctx context.Context, text string, fallback arch.Arch, rel PackageRelation) []VersionDepends {
	log := logr.FromContextOrDiscard(ctx)

	var out []VersionDepends
	for _, alt := range strings.Split(text, "|") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		m := regexpDepends.FindStringSubmatch(alt)
		if m == nil {
			log.V(1).Info("skipping malformed dependency alternative", "alternative", alt, "expression", text)
			continue
		}
		vd := VersionDepends{
			Name:            m[1],
			Arch:            fallback,
			PackageRelation: rel,
		}
		if m[2] != "" {
			vd.Arch = arch.FromString(m[2])
		}
		if m[3] != "" {
			vd.VersionRelation = Relation(m[3])
			vd.Version = New(m[4])
		}
		out = append(out, vd)
	}
	return out
}
