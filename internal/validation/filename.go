package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Extensions accepted for bulletin files served over the API.
var allowedBulletinExtensions = map[string]bool{
	".mp3": true,
	".m4a": true,
	".wav": true,
	".ogg": true,
}

// BulletinFilename validates a filename received from a client before it is
// resolved inside the output directory. It rejects anything that could escape
// the directory or smuggle control characters into a header.
func BulletinFilename(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}
	if len(name) > 255 {
		return "", fmt.Errorf("filename too long")
	}
	if strings.ContainsAny(name, "\x00\r\n") {
		return "", fmt.Errorf("filename contains control characters")
	}
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("filename contains traversal sequence")
	}
	// A bare filename must not carry any directory component.
	if filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("filename must not contain path separators")
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !allowedBulletinExtensions[ext] {
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}

	return name, nil
}

// SanitizeSourceName converts a source display name into a safe filename stem
// for the per-run download directory.
func SanitizeSourceName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "source"
	}
	return b.String()
}
