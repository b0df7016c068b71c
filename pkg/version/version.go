package version

import (
	"strconv"
	"strings"
)

// Version is a Debian package version of the shape
// "epoch:upstream-revision", where epoch and revision are optional.
//
// https://www.debian.org/doc/debian-policy/ch-controlfields.html#version
type Version struct {
	raw      string
	epoch    int
	upstream string
	revision string
}

// New parses a version string. The zero Version (empty string) is used
// for "no version".
func New(s string) Version {
	v := Version{raw: s}

	rest := s
	if i := strings.Index(rest, ":"); i >= 0 {
		if epoch, err := strconv.Atoi(rest[:i]); err == nil {
			v.epoch = epoch
			rest = rest[i+1:]
		}
	}
	// the revision is everything after the last hyphen. Hyphens in
	// the upstream version are only allowed when a revision exists,
	// so splitting on the last one is safe either way.
	if i := strings.LastIndex(rest, "-"); i >= 0 {
		v.revision = rest[i+1:]
		rest = rest[:i]
	}
	v.upstream = rest
	return v
}

func (v Version) String() string {
	return v.raw
}

// Empty reports whether this is the zero "no version" value.
func (v Version) Empty() bool {
	return v.raw == ""
}

// Epoch returns the version epoch, defaulting to 0 when absent.
func (v Version) Epoch() int {
	return v.epoch
}

// Compare returns -1, 0 or 1 if v sorts before, equal to or after o.
func (v Version) Compare(o Version) int {
	if v.epoch != o.epoch {
		if v.epoch < o.epoch {
			return -1
		}
		return 1
	}
	if c := compareFragment(v.upstream, o.upstream); c != 0 {
		return c
	}
	return compareFragment(v.revision, o.revision)
}

func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// charOrder ranks a byte within a non-digit run: the tilde sorts before
// everything including the end of the string, letters sort before all
// other characters.
func charOrder(c byte) int {
	switch {
	case c == '~':
		return -1
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		return int(c)
	default:
		return int(c) + 256
	}
}

// compareFragment compares an upstream version or revision by splitting
// it into alternating non-digit and digit runs. Non-digit runs compare
// character by character via charOrder, digit runs compare numerically.
func compareFragment(a, b string) int {
	for len(a) > 0 || len(b) > 0 {
		for (len(a) > 0 && !isDigit(a[0])) || (len(b) > 0 && !isDigit(b[0])) {
			ac, bc := 0, 0
			if len(a) > 0 && !isDigit(a[0]) {
				ac = charOrder(a[0])
			}
			if len(b) > 0 && !isDigit(b[0]) {
				bc = charOrder(b[0])
			}
			if ac != bc {
				if ac < bc {
					return -1
				}
				return 1
			}
			if len(a) > 0 && !isDigit(a[0]) {
				a = a[1:]
			}
			if len(b) > 0 && !isDigit(b[0]) {
				b = b[1:]
			}
		}
		var an, bn string
		an, a = takeDigits(a)
		bn, b = takeDigits(b)
		if c := compareNumeric(an, bn); c != 0 {
			return c
		}
	}
	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func takeDigits(s string) (run, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// compareNumeric compares two digit runs of arbitrary length.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
