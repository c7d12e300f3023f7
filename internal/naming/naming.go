// Package naming derives ids and file system names for workspaces and sessions.
package naming

import (
	"crypto/sha1"
	"fmt"
	"strings"
)

// defaultLength defines the hex length of hashes (bits ~ length * 4).
const defaultLength = 6

// ShortHash returns the hex SHA1 prefix of length n (clamped to digest size).
func ShortHash(s string, n int) string {
	sum := sha1.Sum([]byte(s))
	h := fmt.Sprintf("%x", sum)
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}

// ProjectDirName returns the directory name of a workspace project:
//
//	<engine>-<slug(name)>-<hash(company:workspace)>
//
// The hash keeps names unique across companies using the same workspace name.
func ProjectDirName(engine, companyID, workspaceID, name string) string {
	slug := Slugify(name)
	if slug == "" {
		slug = "workspace"
	}
	return fmt.Sprintf("%s-%s-%s", engine, slug, ShortHash(companyID+":"+workspaceID, defaultLength))
}

// Slugify lowercases s and replaces runs of characters outside [a-z0-9] with a
// single hyphen. The result is at most 32 characters.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "-")
	}
	return out
}
