package urlsource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const rootIndex = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://www.shop.test/sitemap-products-1.xml</loc></sitemap>
  <sitemap><loc>https://www.shop.test/sitemap-products-2.xml</loc></sitemap>
  <sitemap><loc>https://www.shop.test/feed.txt</loc></sitemap>
</sitemapindex>`

const productSitemapOne = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.shop.test/products/smartfon-apple-iphone-15-128gb</loc><lastmod>2025-05-01</lastmod></url>
  <url><loc>https://www.shop.test/products/smartfon-samsung-galaxy-s24</loc><lastmod>2025-06-15</lastmod></url>
  <url><loc>https://www.shop.test/categories/smartfony</loc></url>
  <url><loc>https://www.shop.test/products/televizor-lg-oled55</loc><lastmod>2025-04-10</lastmod></url>
</urlset>`

const productSitemapTwo = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.shop.test/products/smartfon-apple-iphone-15-128gb</loc><lastmod>2025-05-01</lastmod></url>
  <url><loc>https://www.shop.test/products/noutbuk-asus-vivobook-16</loc></url>
</urlset>`

func TestUpdater_Update_WritesCategoryFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	getter := &fakeGetter{docs: map[string]string{
		"https://www.shop.test/sitemap.xml":            rootIndex,
		"https://www.shop.test/sitemap-products-1.xml": productSitemapOne,
		"https://www.shop.test/sitemap-products-2.xml": productSitemapTwo,
	}}
	updater := NewUpdater(getter, Config{
		SitemapURL: "https://www.shop.test/sitemap.xml",
		LinksDir:   dir,
	}, nil)

	counts, err := updater.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]int{"smartfon": 2, "televizor": 1, "noutbuk": 1}, counts)

	source := NewSource(dir)
	smartfony, err := source.Links("smartfon", 0)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://www.shop.test/products/smartfon-samsung-galaxy-s24",
		"https://www.shop.test/products/smartfon-apple-iphone-15-128gb",
	}, smartfony, "newest lastmod first, duplicates collapsed")

	categories, err := source.Categories()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"smartfon", "televizor", "noutbuk"}, categories)
}

func TestUpdater_Update_ToleratesNestedFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	getter := &fakeGetter{
		docs: map[string]string{
			"https://www.shop.test/sitemap.xml":            rootIndex,
			"https://www.shop.test/sitemap-products-1.xml": productSitemapOne,
		},
		errs: map[string]error{
			"https://www.shop.test/sitemap-products-2.xml": errors.New("status 503"),
		},
	}
	updater := NewUpdater(getter, Config{
		SitemapURL: "https://www.shop.test/sitemap.xml",
		LinksDir:   dir,
	}, nil)

	counts, err := updater.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]int{"smartfon": 2, "televizor": 1}, counts)
}

func TestUpdater_Update_RootFailureIsFatal(t *testing.T) {
	t.Parallel()

	getter := &fakeGetter{errs: map[string]error{
		"https://www.shop.test/sitemap.xml": errors.New("status 503"),
	}}
	updater := NewUpdater(getter, Config{
		SitemapURL: "https://www.shop.test/sitemap.xml",
		LinksDir:   t.TempDir(),
	}, nil)

	_, err := updater.Update(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "fetch sitemap")
}

func TestUpdater_Update_RootUnparsableIsFatal(t *testing.T) {
	t.Parallel()

	getter := &fakeGetter{docs: map[string]string{
		"https://www.shop.test/sitemap.xml": "<html>definitely not xml sitemap</html",
	}}
	updater := NewUpdater(getter, Config{
		SitemapURL: "https://www.shop.test/sitemap.xml",
		LinksDir:   t.TempDir(),
	}, nil)

	_, err := updater.Update(context.Background())
	require.Error(t, err)
}

func TestUpdater_Update_NoProductsIsAnError(t *testing.T) {
	t.Parallel()

	getter := &fakeGetter{docs: map[string]string{
		"https://www.shop.test/sitemap.xml": `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.shop.test/categories/smartfony</loc></url>
</urlset>`,
	}}
	updater := NewUpdater(getter, Config{
		SitemapURL: "https://www.shop.test/sitemap.xml",
		LinksDir:   t.TempDir(),
	}, nil)

	_, err := updater.Update(context.Background())
	require.ErrorIs(t, err, ErrNoProductURLs)
}

func TestUpdater_Update_BreaksSitemapCycles(t *testing.T) {
	t.Parallel()

	getter := &fakeGetter{docs: map[string]string{
		"https://www.shop.test/sitemap.xml": `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://www.shop.test/sitemap.xml</loc></sitemap>
</sitemapindex>`,
	}}
	updater := NewUpdater(getter, Config{
		SitemapURL: "https://www.shop.test/sitemap.xml",
		LinksDir:   t.TempDir(),
	}, nil)

	_, err := updater.Update(context.Background())
	require.ErrorIs(t, err, ErrNoProductURLs)
	require.Equal(t, 1, getter.callCount("https://www.shop.test/sitemap.xml"))
}

func TestUpdater_Update_DepthLimit(t *testing.T) {
	t.Parallel()

	getter := &fakeGetter{docs: map[string]string{
		"https://www.shop.test/sitemap.xml": `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://www.shop.test/level-1.xml</loc></sitemap>
</sitemapindex>`,
		"https://www.shop.test/level-1.xml": `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://www.shop.test/level-2.xml</loc></sitemap>
</sitemapindex>`,
		"https://www.shop.test/level-2.xml": productSitemapOne,
	}}
	updater := NewUpdater(getter, Config{
		SitemapURL: "https://www.shop.test/sitemap.xml",
		LinksDir:   t.TempDir(),
		MaxDepth:   1,
	}, nil)

	_, err := updater.Update(context.Background())
	require.ErrorIs(t, err, ErrNoProductURLs)
	require.Zero(t, getter.callCount("https://www.shop.test/level-2.xml"))
}

func TestIsProductURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.shop.test/products/smartfon-apple-iphone-15", true},
		{"https://www.shop.test/products/televizor", true},
		{"https://www.shop.test/categories/smartfony", false},
		{"https://www.shop.test/products/smartfon-apple/reviews", false},
		{"https://www.shop.test/", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsProductURL(tc.url), tc.url)
	}
}

func TestCategory(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want string
	}{
		{"https://www.shop.test/products/smartfon-apple-iphone-15", "smartfon"},
		{"https://www.shop.test/products/televizor", "televizor"},
		{"https://www.shop.test/categories/smartfony", ""},
		{"https://www.shop.test/products/", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Category(tc.url), tc.url)
	}
}

type fakeGetter struct {
	mu    sync.Mutex
	docs  map[string]string
	errs  map[string]error
	calls map[string]int
}

func (f *fakeGetter) Get(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	doc, ok := f.docs[url]
	if !ok {
		return nil, fmt.Errorf("no such document: %s", url)
	}
	return []byte(doc), nil
}

func (f *fakeGetter) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}
