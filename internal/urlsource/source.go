package urlsource

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

// Sentinel errors for link file lookups.
var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrUnknownCategory = errors.New("category has no link file")
)

// categoryPattern accepts sitemap slug tokens only. Category names reach
// this package straight from URL path parameters, so anything that could
// escape the links directory is rejected.
var categoryPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Source reads saved link files for runs.
type Source struct {
	dir string
}

// NewSource returns a Source over the links directory.
func NewSource(dir string) *Source {
	return &Source{dir: dir}
}

// Links returns the saved URLs for category, newest first. limit <= 0 means
// no cap. A category without a link file yields ErrUnknownCategory.
func (s *Source) Links(category string, limit int) ([]string, error) {
	if !categoryPattern.MatchString(category) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	data, err := os.ReadFile(linkFilePath(s.dir, category))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
		}
		return nil, fmt.Errorf("read link file for %q: %w", category, err)
	}

	var links []Link
	if err := json.Unmarshal(data, &links); err != nil {
		return nil, fmt.Errorf("decode link file for %q: %w", category, err)
	}
	urls := make([]string, 0, len(links))
	for _, link := range links {
		if link.URL == "" {
			continue
		}
		urls = append(urls, link.URL)
	}
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	return urls, nil
}

// Categories lists every category with a saved link file.
func (s *Source) Categories() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list links dir %s: %w", s.dir, err)
	}
	var categories []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		categories = append(categories, name[:len(name)-len(".json")])
	}
	return categories, nil
}

func linkFilePath(dir, category string) string {
	return filepath.Join(dir, category+".json")
}
