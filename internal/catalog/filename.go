package catalog

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const maxNameLen = 255

// Extension returns the lowercased trailing extension of name without the
// dot, or "" when there is none.
func Extension(name string) string {
	name = baseName(name)
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// ParseExtensions normalises a configured extension list into a lookup set.
// Entries may carry a leading dot and any case.
func ParseExtensions(list []string) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, e := range list {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out[e] = true
		}
	}
	return out
}

// SanitizeFilename reduces name to a safe flat file name: the last path
// element only, spaces turned into underscores, everything outside
// [A-Za-z0-9._-] dropped and leading dots removed. The result may be empty.
func SanitizeFilename(name string) string {
	name = baseName(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	out = strings.TrimRight(out, ".")

	if len(out) > maxNameLen {
		ext := filepath.Ext(out)
		out = out[:maxNameLen-len(ext)] + ext
	}
	return out
}

// storedName picks the name a new upload is stored under, before collision
// handling. ext must already be validated against original.
func storedName(original, ext string) string {
	base := baseName(original)
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	stem := SanitizeFilename(base)
	stem = strings.Trim(stem, "._")
	if stem == "" {
		stem = uuid.NewString()
	}
	if len(stem)+len(ext)+1 > maxNameLen {
		stem = stem[:maxNameLen-len(ext)-1]
	}
	return stem + "." + ext
}

// withSuffix turns "notes.txt" into "notes_2.txt".
func withSuffix(name string, n int) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(n) + ext
}

func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.ReplaceAll(name, "\x00", "")
}
