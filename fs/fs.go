// Package fs loads image attachments from the local filesystem.
package fs

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/ragchat"
	"github.com/gabriel-vasile/mimetype"
)

// MaxImageSize is the largest file LoadImages accepts.
const MaxImageSize = 20 << 20

// LoadImages reads every regular file matching the patterns and returns it
// as an image attachment. Patterns support ** for recursive matching. Files
// are returned in sorted order, each at most once. A pattern that matches
// nothing, a file that is not an image or a file larger than MaxImageSize
// is a validation error.
func LoadImages(patterns ...string) ([]ragchat.Image, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, ragchat.ErrValidation)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("fs: glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q: %w", pattern, ragchat.ErrValidation)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)

	images := make([]ragchat.Image, 0, len(paths))
	for _, p := range paths {
		img, err := LoadImage(p)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// LoadImage reads a single image file and detects its MIME type from its
// content.
func LoadImage(path string) (ragchat.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ragchat.Image{}, fmt.Errorf("fs: %w", err)
	}
	if info.Size() > MaxImageSize {
		return ragchat.Image{}, fmt.Errorf("%s is %d bytes, limit is %d: %w", path, info.Size(), MaxImageSize, ragchat.ErrValidation)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ragchat.Image{}, fmt.Errorf("fs: %w", err)
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return ragchat.Image{}, fmt.Errorf("%s is %s, not an image: %w", path, mime.String(), ragchat.ErrValidation)
	}
	return ragchat.Image{MimeType: mime.String(), Data: data}, nil
}
