package stats

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrElementNotFound is returned when a page lacks the element being looked up.
var ErrElementNotFound = errors.New("element not found")

var titleSelectors = []string{"h1.h1", "h1.title-name"}

// ExtractTitle returns the anime title from an entry's main page.
func ExtractTitle(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse entry page: %w", err)
	}
	for _, sel := range titleSelectors {
		heading := doc.Find(sel).First()
		if heading.Length() == 0 {
			continue
		}
		title := strings.TrimSpace(heading.Children().First().Text())
		if title == "" {
			title = strings.TrimSpace(heading.Text())
		}
		if title != "" {
			return title, nil
		}
	}
	return "", fmt.Errorf("title heading: %w", ErrElementNotFound)
}

// ExtractCanonicalURL returns the href of the active navigation tab, which MAL
// renders with the full slugged entry URL.
func ExtractCanonicalURL(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse entry page: %w", err)
	}
	href, ok := doc.Find("a.horiznav_active").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", fmt.Errorf("active navigation link: %w", ErrElementNotFound)
	}
	return strings.TrimSpace(href), nil
}
