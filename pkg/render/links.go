package render

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"wallpaper-scraper/pkg/utils"
)

// ExtractLinks returns the targets of every element matching any of selectors,
// in document order. Relative hrefs resolve against <base href> when present,
// otherwise against pageURL. Elements without an href (or with an empty one)
// are skipped. Repeated hrefs are kept: each match is one item reference, and
// the download stage reports repeats as skipped.
func ExtractLinks(html string, pageURL string, selectors []string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: page URL %q: %w", utils.ErrParsing, pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML of %s: %w", utils.ErrParsing, pageURL, err)
	}

	if baseHref, ok := doc.Find("base[href]").First().Attr("href"); ok && baseHref != "" {
		if b, err := base.Parse(baseHref); err == nil {
			base = b
		}
	}

	group := joinSelectors(selectors)
	if group == "" {
		return nil, nil
	}

	var links []string
	// A selector group matches in document order, not per-selector order.
	doc.Find(group).Each(func(_ int, el *goquery.Selection) {
		href, exists := el.Attr("href")
		href = strings.TrimSpace(href)
		if !exists || href == "" {
			return
		}
		linkURL, err := base.Parse(href)
		if err != nil {
			// Kept as-is; resolution reports it as a failed item.
			links = append(links, href)
			return
		}
		links = append(links, linkURL.String())
	})
	return links, nil
}

func joinSelectors(selectors []string) string {
	parts := make([]string, 0, len(selectors))
	for _, s := range selectors {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
