package arch

// Arch is a Debian CPU architecture.
type Arch string

const (
	// Undefined is used when a stanza carries no Architecture field.
	Undefined Arch = "undefined"
	AMD64     Arch = "amd64"
	ARM64     Arch = "arm64"
	ARMHF     Arch = "armhf"
	// Any and All are the Debian wildcard architectures. Any marks an
	// arch-independent dependency (name:any), All marks an
	// arch-independent package.
	Any Arch = "any"
	All Arch = "all"
)

// FromString maps a Debian architecture string onto an Arch.
// Unknown values map to Undefined.
func FromString(s string) Arch {
	switch s {
	case "amd64":
		return AMD64
	case "arm64":
		return ARM64
	case "armhf":
		return ARMHF
	case "any":
		return Any
	case "all":
		return All
	}
	return Undefined
}

func (a Arch) String() string {
	if a == "" {
		return string(Undefined)
	}
	return string(a)
}

// Wildcard reports whether the architecture matches every concrete
// architecture.
func (a Arch) Wildcard() bool {
	return a == Any || a == All
}

// Matches reports whether two architectures are compatible. Either side
// being a wildcard matches everything.
func (a Arch) Matches(other Arch) bool {
	return a == other || a.Wildcard() || other.Wildcard()
}
