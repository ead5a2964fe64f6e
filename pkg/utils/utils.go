package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
)

// ComputeSHA256 computes the SHA256 hash of data
func ComputeSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ComputeSHA256FromReader computes SHA256 hash from an io.Reader
func ComputeSHA256FromReader(reader io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, reader); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// DigestEqual compares two hex digests ignoring case and an optional
// "sha256:" prefix.
func DigestEqual(a, b string) bool {
	return strings.EqualFold(trimDigestPrefix(a), trimDigestPrefix(b))
}

func trimDigestPrefix(d string) string {
	d = strings.TrimSpace(d)
	if len(d) > 7 && strings.EqualFold(d[:7], "sha256:") {
		return d[7:]
	}
	return d
}

// IsHexDigest reports whether s looks like a hex encoded SHA256 digest
func IsHexDigest(s string) bool {
	s = trimDigestPrefix(s)
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// SanitizeFilename reduces a client supplied name to a single safe path
// element. It returns an empty string when nothing usable is left.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)

	switch name {
	case "", ".", "..", "/":
		return ""
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

// FormatBytes formats byte size in human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	suffixes := []string{"KB", "MB", "GB", "TB", "PB", "EB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}
