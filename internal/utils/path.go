package utils

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[1:])
}

// SafeFileName maps every rune that is not a letter, digit, dot, dash or
// underscore to '_' so the result can be used as a single path element.
func SafeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || r == '.' || r == '-' {
			return r
		}
		return '_'
	}, name)
}
