package control

import (
	"strconv"
	"strings"
)

// checksumKeys are the checksum-table fields a Release file may carry.
var checksumKeys = []string{"md5sum", "sha1", "sha256", "sha512"}

// FileHash is one entry of a Release checksum table.
type FileHash struct {
	Hash     string
	Size     int64
	Filename string
}

// ReleaseInfo is a parsed Release or InRelease file.
type ReleaseInfo struct {
	fields Stanza
	hashes map[string][]FileHash
}

// ParseRelease parses Release/InRelease content, extracting the
// checksum tables keyed by hash algorithm.
func ParseRelease(content string) *ReleaseInfo {
	info := &ReleaseInfo{
		fields: Stanza{},
		hashes: map[string][]FileHash{},
	}
	stanzas := ParseStanzas(content, false)
	if len(stanzas) > 0 {
		info.fields = stanzas[0]
	}

	for _, key := range checksumKeys {
		value, ok := info.fields[key]
		if !ok {
			continue
		}
		for _, line := range strings.Split(value, "\n") {
			parts := strings.Fields(line)
			if len(parts) != 3 {
				continue
			}
			size, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				continue
			}
			info.hashes[key] = append(info.hashes[key], FileHash{
				Hash:     parts[0],
				Size:     size,
				Filename: parts[2],
			})
		}
	}
	return info
}

// Components returns the whitespace-split Components field.
func (r *ReleaseInfo) Components() []string {
	return strings.Fields(r.fields["components"])
}

// Field returns a raw Release field by its lowercase key.
func (r *ReleaseInfo) Field(key string) string {
	return r.fields[key]
}

// Hashes returns the checksum tables keyed by hash algorithm.
func (r *ReleaseInfo) Hashes() map[string][]FileHash {
	return r.hashes
}
