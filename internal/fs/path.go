package fs

import (
	gopath "path"
	"strings"
)

// Separator is the path separator, identical to the key separator used to
// emulate hierarchy in the flat store.
const Separator = "/"

// legacyFolderSuffix marks empty-directory objects written by older S3
// filesystem clients. Listings skip them for cross-compatibility.
const legacyFolderSuffix = "_$folder$"

// pathToKey turns a path into a store key. Relative paths resolve against
// the working directory; the filesystem root maps to the empty key.
func (f *FileSystem) pathToKey(p string) string {
	if !strings.HasPrefix(p, Separator) {
		p = gopath.Join(f.workingDir, p)
	}
	p = gopath.Clean(p)
	if p == Separator || p == "" {
		return ""
	}
	return strings.TrimPrefix(p, Separator)
}

// keyToPath is the inverse mapping; the empty key is the root.
func keyToPath(key string) string {
	return Separator + key
}

// dirKey normalizes a key to its directory form with a trailing separator.
// The root key stays empty.
func dirKey(key string) string {
	if key == "" || strings.HasSuffix(key, Separator) {
		return key
	}
	return key + Separator
}

// parentPath computes the parent of a cleaned absolute path. The parent of
// the root is the root itself.
func parentPath(p string) string {
	return gopath.Dir(gopath.Clean(p))
}

// isRoot reports whether the path denotes the filesystem root.
func isRoot(p string) bool {
	return gopath.Clean(p) == Separator
}

// baseName returns the last element of a path.
func baseName(p string) string {
	return gopath.Base(gopath.Clean(p))
}
