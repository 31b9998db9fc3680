package storage

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	InputPrefix  = "inputs/"
	OutputPrefix = "outputs/"
)

// BaseName returns the NFC-normalised final element of a key, path or URL
// path, accepting either slash style.
func BaseName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(strings.TrimRight(name, "/"))
	if base == "." || base == "/" || base == "" || base == ".." {
		return "", fmt.Errorf("%w: no file name in %q", ErrInvalidKey, name)
	}
	return norm.NFC.String(base), nil
}

// OutputKey is where the classified raster for source is stored.
func OutputKey(source string) (string, error) {
	base, err := BaseName(source)
	if err != nil {
		return "", err
	}
	return OutputPrefix + "classified_" + base, nil
}

// InputKey is where an uploaded raster named filename is stored.
func InputKey(filename string) (string, error) {
	base, err := BaseName(filename)
	if err != nil {
		return "", err
	}
	return InputPrefix + base, nil
}

// CleanKey rejects keys that are empty, absolute or escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.ReplaceAll(key, "\\", "/"), "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
