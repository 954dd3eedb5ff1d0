// Package extract parses product page snapshots into structured records.
package extract

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/scrape"
)

// Selector fallback chains. The storefront markup shifts between layout
// experiments, so every field is looked up through a chain and the first
// match wins.
var (
	nameSelectors = []string{
		"h1.title",
		"h1.pdp-header__title",
		`h1[class*="title"]`,
		"h1.product-title",
	}
	codeSelectors = []string{
		".product-code-container span:last-child",
		".product-code",
		"[data-product-code]",
	}
	gallerySelectors = []string{
		".wrapper.mv-hide-scrollbar",
		".product-gallery",
		".product-images",
		".pdp-gallery",
		"[data-gallery]",
	}
	imageAttrs = []string{"src", "data-src", "data-original"}
	imageExts  = []string{".jpg", ".jpeg", ".png", ".webp"}

	attrNameSelectors = []string{
		"dt.item-with-dots__title span.item-with-dots__text",
		"dt.characteristics__name",
		`dt[class*="title"]`,
		`dt[class*="name"]`,
	}
	attrValueSelectors = []string{
		"dd.item-with-dots__value",
		"dd.characteristics__value",
		`dd[class*="value"]`,
	}
)

// Extractor turns snapshots into product records. It is stateless: equal
// snapshots always yield equal records.
type Extractor struct {
	logger *zap.Logger
}

// New constructs an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract implements scrape.Extractor. Each field lookup is independently
// best-effort; only a page with no recognizable product content at all is
// rejected as malformed.
func (e *Extractor) Extract(snap scrape.Snapshot) (scrape.Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return scrape.Product{}, &scrape.ExtractionError{URL: snap.URL, Reason: fmt.Sprintf("parse html: %v", err)}
	}

	product := scrape.Product{
		URL:        snap.URL,
		Name:       e.name(doc),
		Code:       e.code(doc),
		Attributes: e.attributes(doc),
		Images:     e.images(doc, snap.URL),
	}

	if product.Name == "" {
		e.logger.Warn("product name not found", zap.String("url", snap.URL))
	}
	if product.Name == "" && len(product.Attributes) == 0 && len(product.Images) == 0 {
		return scrape.Product{}, &scrape.ExtractionError{URL: snap.URL, Reason: "no recognizable product content"}
	}
	return product, nil
}

func (e *Extractor) name(doc *goquery.Document) string {
	for _, sel := range nameSelectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func (e *Extractor) code(doc *goquery.Document) string {
	for _, sel := range codeSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(node.Text())
		if text == "" && sel == "[data-product-code]" {
			text, _ = node.Attr("data-product-code")
		}
		if code := cleanProductCode(text); code != "" {
			return code
		}
	}
	return ""
}

func (e *Extractor) images(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	root := doc.Selection
	for _, sel := range gallerySelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			root = found
			break
		}
	}

	seen := make(map[string]struct{})
	var images []string
	root.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range imageAttrs {
			raw, ok := img.Attr(attr)
			if !ok {
				continue
			}
			resolved := normalizeImageURL(raw, base)
			if resolved == "" {
				continue
			}
			if _, dup := seen[resolved]; !dup {
				seen[resolved] = struct{}{}
				images = append(images, resolved)
			}
			break
		}
	})
	return images
}

func (e *Extractor) attributes(doc *goquery.Document) scrape.Attributes {
	var attrs scrape.Attributes
	groups := doc.Find("section.characteristics__group")
	if groups.Length() > 0 {
		groups.Each(func(_ int, group *goquery.Selection) {
			e.collectRows(group, &attrs)
		})
		if len(attrs) > 0 {
			return attrs
		}
	}
	e.collectRows(doc.Selection, &attrs)
	return attrs
}

func (e *Extractor) collectRows(root *goquery.Selection, attrs *scrape.Attributes) {
	root.Find("dl.characteristics__list").Each(func(_ int, list *goquery.Selection) {
		items := list.Find("mvid-item-with-dots")
		if items.Length() > 0 {
			items.Each(func(_ int, item *goquery.Selection) {
				name := firstText(item, attrNameSelectors)
				value := firstText(item, attrValueSelectors)
				if name != "" && value != "" {
					attrs.Set(name, cleanAttributeValue(value))
				}
			})
			return
		}
		// Plain definition lists pair each dt with the dd that follows it.
		list.Find("dt").Each(func(_ int, dt *goquery.Selection) {
			name := strings.TrimSpace(dt.Text())
			value := strings.TrimSpace(dt.NextFiltered("dd").Text())
			if name != "" && value != "" {
				attrs.Set(name, cleanAttributeValue(value))
			}
		})
	})
}

func firstText(root *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(root.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// cleanProductCode strips every whitespace rune and HTML space entity the
// storefront pads product codes with.
func cleanProductCode(raw string) string {
	raw = strings.ReplaceAll(raw, "&nbsp;", "")
	var b strings.Builder
	for _, r := range raw {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cleanAttributeValue(value string) string {
	value = strings.NewReplacer(`"`, "", "“", "", "”", "").Replace(value)
	return strings.TrimSpace(value)
}

// normalizeImageURL keeps only http(s) image URLs, resolving relative and
// protocol-relative references against the page URL.
func normalizeImageURL(raw string, base *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !hasImageExt(raw) {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func hasImageExt(raw string) bool {
	lower := strings.ToLower(raw)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range imageExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
