// Package urlsource maintains the per-category product URL lists derived
// from the site sitemap.
package urlsource

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/fsutil"
)

// ErrNoProductURLs is returned when a sitemap walk finishes without finding
// a single product page.
var ErrNoProductURLs = errors.New("no product urls in sitemap")

// Link is one product page reference from the sitemap.
type Link struct {
	URL          string `json:"url"`
	LastModified string `json:"last_modified,omitempty"`
}

// Getter downloads one document.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Config controls the sitemap walk.
type Config struct {
	SitemapURL string
	LinksDir   string
	// MaxDepth bounds nested sitemap recursion.
	MaxDepth int
}

// Updater walks the sitemap tree and rewrites the category link files.
type Updater struct {
	client Getter
	cfg    Config
	logger *zap.Logger
}

// NewUpdater builds an Updater on top of a document getter.
func NewUpdater(client Getter, cfg Config, logger *zap.Logger) *Updater {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{client: client, cfg: cfg, logger: logger}
}

// Update downloads the sitemap tree, collects product URLs, and replaces
// every category link file. It returns per-category URL counts. Nested
// sitemap failures are skipped with a warning; only the root sitemap is
// load-bearing.
func (u *Updater) Update(ctx context.Context) (map[string]int, error) {
	visited := make(map[string]struct{})
	var links []Link
	if err := u.walk(ctx, u.cfg.SitemapURL, 0, visited, &links); err != nil {
		return nil, err
	}
	links = dedupe(links)
	if len(links) == 0 {
		return nil, ErrNoProductURLs
	}

	grouped := make(map[string][]Link)
	for _, link := range links {
		category := Category(link.URL)
		if category == "" {
			continue
		}
		grouped[category] = append(grouped[category], link)
	}

	counts := make(map[string]int, len(grouped))
	for category, categoryLinks := range grouped {
		// Newest first so capped runs see fresh pages. Lastmod values are
		// ISO dates, ordered lexicographically; missing dates sink to the
		// end.
		sort.SliceStable(categoryLinks, func(i, j int) bool {
			return categoryLinks[i].LastModified > categoryLinks[j].LastModified
		})
		if err := writeLinks(u.cfg.LinksDir, category, categoryLinks); err != nil {
			return nil, err
		}
		counts[category] = len(categoryLinks)
	}
	u.logger.Info("link files updated",
		zap.Int("urls", len(links)),
		zap.Int("categories", len(counts)))
	return counts, nil
}

func (u *Updater) walk(ctx context.Context, sitemapURL string, depth int, visited map[string]struct{}, out *[]Link) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sitemap walk canceled: %w", err)
	}
	if depth > u.cfg.MaxDepth {
		u.logger.Warn("sitemap nesting too deep, skipping", zap.String("url", sitemapURL))
		return nil
	}
	if _, seen := visited[sitemapURL]; seen {
		return nil
	}
	visited[sitemapURL] = struct{}{}

	data, err := u.client.Get(ctx, sitemapURL)
	if err != nil {
		if depth == 0 {
			return fmt.Errorf("fetch sitemap %s: %w", sitemapURL, err)
		}
		u.logger.Warn("nested sitemap fetch failed", zap.String("url", sitemapURL), zap.Error(err))
		return nil
	}

	nested, links, err := parseSitemap(data)
	if err != nil {
		if depth == 0 {
			return fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
		}
		u.logger.Warn("nested sitemap unparsable", zap.String("url", sitemapURL), zap.Error(err))
		return nil
	}

	for _, link := range links {
		if IsProductURL(link.URL) {
			*out = append(*out, link)
		}
	}
	for _, nestedURL := range nested {
		if err := u.walk(ctx, nestedURL, depth+1, visited, out); err != nil {
			return err
		}
	}
	return nil
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

// parseSitemap decodes one sitemap document. An index yields nested sitemap
// URLs, a urlset yields page links; both filtered to http(s) locations.
func parseSitemap(data []byte) (nested []string, links []Link, err error) {
	var idx sitemapIndex
	if idxErr := xml.Unmarshal(data, &idx); idxErr == nil {
		for _, entry := range idx.Sitemaps {
			loc := strings.TrimSpace(entry.Loc)
			if loc != "" && strings.HasSuffix(loc, ".xml") {
				nested = append(nested, loc)
			}
		}
		return nested, nil, nil
	}

	var set urlSet
	if setErr := xml.Unmarshal(data, &set); setErr != nil {
		return nil, nil, fmt.Errorf("neither sitemapindex nor urlset: %w", setErr)
	}
	for _, entry := range set.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" || !strings.HasPrefix(loc, "http") {
			continue
		}
		links = append(links, Link{URL: loc, LastModified: strings.TrimSpace(entry.LastMod)})
	}
	return nil, links, nil
}

var (
	productURLPattern  = regexp.MustCompile(`/products/[^/]*$`)
	productSlugPattern = regexp.MustCompile(`/products/([^/]+)$`)
)

// IsProductURL reports whether rawURL points at a product page.
func IsProductURL(rawURL string) bool {
	return productURLPattern.MatchString(rawURL)
}

// Category derives the category token from a product URL: the slug segment
// up to its first dash ("smartfon-apple-..." → "smartfon"). Empty when the
// URL is not a product page.
func Category(rawURL string) string {
	m := productSlugPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	slug := m[1]
	if i := strings.IndexByte(slug, '-'); i > 0 {
		return slug[:i]
	}
	return slug
}

func dedupe(links []Link) []Link {
	seen := make(map[string]struct{}, len(links))
	out := links[:0]
	for _, link := range links {
		if _, dup := seen[link.URL]; dup {
			continue
		}
		seen[link.URL] = struct{}{}
		out = append(out, link)
	}
	return out
}

func writeLinks(dir, category string, links []Link) error {
	payload, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal links for %s: %w", category, err)
	}
	if err := fsutil.WriteFileAtomic(linkFilePath(dir, category), payload); err != nil {
		return fmt.Errorf("write links for %s: %w", category, err)
	}
	return nil
}
