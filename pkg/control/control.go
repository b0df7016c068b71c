// Package control parses RFC822-like Debian control files (Packages,
// Release/InRelease).
//
// https://www.debian.org/doc/debian-policy/ch-controlfields.html#syntax-of-control-files
package control

import (
	"strings"
)

const (
	pgpMessageHeader   = "-----BEGIN PGP SIGNED MESSAGE-----"
	pgpSignatureHeader = "-----BEGIN PGP SIGNATURE-----"
)

// Stanza is one paragraph of a control file. Field keys are not case
// sensitive and are stored lowercase.
type Stanza map[string]string

// ParseStanzas tokenizes control-file content into stanzas. A blank
// line ends the current stanza; when multiStanza is false all fields
// land in a single stanza. A PGP clearsign header line is skipped, a
// PGP signature header ends parsing. Continuation lines (indented with
// a space or tab) are appended to the previous field with a newline.
func ParseStanzas(content string, multiStanza bool) []Stanza {
	var stanzas []Stanza
	var cur Stanza
	var curKey string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == pgpMessageHeader {
			continue
		}
		if line == pgpSignatureHeader {
			break
		}

		if strings.TrimSpace(line) == "" {
			curKey = ""
			if multiStanza {
				cur = nil
			}
			continue
		}
		if cur == nil {
			cur = Stanza{}
			stanzas = append(stanzas, cur)
			curKey = ""
		}

		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && curKey != "" {
			cur[curKey] += "\n" + strings.TrimSpace(line)
			continue
		}
		if key, value, ok := strings.Cut(line, ":"); ok {
			curKey = strings.ToLower(strings.TrimSpace(key))
			cur[curKey] = strings.TrimSpace(value)
		}
	}
	return stanzas
}
