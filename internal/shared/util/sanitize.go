package util

import (
	"errors"
	"strings"
)

const maxFileNameLen = 255

// SanitizeFileName removes path separators, control characters, and rejects
// traversal patterns. Uploaded transcript names end up in job records and
// log lines, so they must be safe to echo back.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return "", errors.New("invalid file name")
	}
	if len(s) > maxFileNameLen {
		return "", errors.New("file name too long")
	}
	return s, nil
}
