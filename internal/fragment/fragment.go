package fragment

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Fragment is one chapter as loaded from disk. Data is the decoded JSON
// object; only FragmentValidator and the composer interpret it.
type Fragment struct {
	Source string
	Data   map[string]any
}

// ChapterID returns the chapterId field, or "unknown" when absent.
func (f Fragment) ChapterID() string {
	if id, ok := f.Data["chapterId"].(string); ok && strings.TrimSpace(id) != "" {
		return id
	}
	return "unknown"
}

// Decoder converts raw fragment bytes into a Fragment.
type Decoder interface {
	Decode(r io.Reader, filename string) (Fragment, error)
}

// SupportedExtensions lists fragment file extensions.
var SupportedExtensions = map[string]bool{
	".json":     true,
	".yaml":     true,
	".yml":      true,
	".md":       true,
	".markdown": true,
}

// ForFile returns the decoder for a filename.
func ForFile(filename string) (Decoder, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return &JSONDecoder{}, nil
	case ".yaml", ".yml":
		return &YAMLDecoder{}, nil
	case ".md", ".markdown":
		return &MarkdownDecoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported fragment extension: %s", ext)
	}
}

// IsSupportedExtension checks if a fragment file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}
