package stage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Fingerprint hashes the given parts into a short hex digest suitable for
// InputHash implementations.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))

	return hex.EncodeToString(sum[:16])
}

// FileStamp summarizes a file's identity by size and modification time.
// Cheap enough to run on every invocation; content hashing is deliberately
// avoided for multi-gigabyte intermediates.
func FileStamp(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat input: %w", err)
	}

	return fmt.Sprintf("%s:%d:%d", path, info.Size(), info.ModTime().UnixNano()), nil
}
