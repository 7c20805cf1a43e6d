package mal

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/falchooser/internal/fetcher"
	"github.com/JakeFAU/falchooser/internal/metrics"
)

// SearchResult is one candidate returned by the search API.
type SearchResult struct {
	ID    int
	Title string
}

// Search queries the XML search API. Results keep their API order.
func (c *Client) Search(ctx context.Context, title string) ([]SearchResult, error) {
	creds := c.cfg.Credentials
	resp, err := c.fetcher.Fetch(ctx, fetcher.Request{
		URL:    c.cfg.BaseURL + "/api/anime/search.xml",
		Params: url.Values{"q": {title}},
		Auth:   &creds,
		Accept: []int{http.StatusNoContent},
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", title, err)
	}
	results, err := ParseSearchResults(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", title, err)
	}
	metrics.ObserveSearch(len(results))
	return results, nil
}

// ParseSearchResults reads the entry elements under the document root.
func ParseSearchResults(body []byte) ([]SearchResult, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	doc, err := xmlquery.ParseWithOptions(bytes.NewReader(body), xmlquery.ParserOptions{
		Decoder: &xmlquery.DecoderOptions{
			Strict:    false,
			AutoClose: xml.HTMLAutoClose,
			Entity:    xml.HTMLEntity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("parse search xml: %w", err)
	}

	entries := xmlquery.Find(doc, "/*/entry")
	results := make([]SearchResult, 0, len(entries))
	for _, entry := range entries {
		idNode := entry.SelectElement("id")
		titleNode := entry.SelectElement("title")
		if idNode == nil || titleNode == nil {
			return nil, fmt.Errorf("parse search xml: entry without id or title")
		}
		id, err := strconv.Atoi(strings.TrimSpace(idNode.InnerText()))
		if err != nil {
			return nil, fmt.Errorf("parse search id %q: %w", idNode.InnerText(), err)
		}
		results = append(results, SearchResult{ID: id, Title: titleNode.InnerText()})
	}
	return results, nil
}

// SelectResult picks the exact title match, or the first result when there is none.
func SelectResult(results []SearchResult, title string) (int, bool) {
	if len(results) == 0 {
		return 0, false
	}
	for _, r := range results {
		if r.Title == title {
			return r.ID, true
		}
	}
	return results[0].ID, true
}

// ResolveURL searches for title and returns the canonical URL of the chosen result.
// It returns "" when the search has no results.
func (c *Client) ResolveURL(ctx context.Context, title string) (string, error) {
	results, err := c.Search(ctx, title)
	if err != nil {
		return "", err
	}
	id, ok := SelectResult(results, title)
	if !ok {
		c.logger.Debug("No search results", zap.String("title", title))
		return "", nil
	}
	return c.URLForID(ctx, id)
}
