// Package fileid derives the stable document source key for files ingested from disk.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const prefix = "file:"

// SourceKey returns a stable source key for the given path. The path is made
// absolute and cleaned first, so the same file always yields the same key.
func SourceKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(hash[:])
}

// IsSourceKey reports whether source was produced by SourceKey.
func IsSourceKey(source string) bool {
	return strings.HasPrefix(source, prefix) && len(source) == len(prefix)+sha256.Size*2
}
