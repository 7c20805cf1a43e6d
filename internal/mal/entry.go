package mal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/JakeFAU/falchooser/internal/stats"
)

var idPattern = regexp.MustCompile(`anime/(\d+)/`)

// MalformedURLError reports a URL without an /anime/<id>/ segment.
type MalformedURLError struct {
	URL string
}

func (e *MalformedURLError) Error() string {
	return fmt.Sprintf("malformed anime url %q: no /anime/<id>/ segment", e.URL)
}

// ParseID extracts the numeric id from an anime URL.
func ParseID(rawURL string) (int, error) {
	m := idPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return 0, &MalformedURLError{URL: rawURL}
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &MalformedURLError{URL: rawURL}
	}
	return id, nil
}

// Entry is a single anime. Title and statistics are fetched on first use and kept.
type Entry struct {
	ID  int
	URL string

	client *Client
	title  *string
	stats  stats.Stats
}

// NewEntry derives the entry id from rawURL.
func (c *Client) NewEntry(rawURL string) (*Entry, error) {
	return c.NewEntryWithID(rawURL, 0)
}

// NewEntryWithID uses id as given. A non-positive id is derived from rawURL.
func (c *Client) NewEntryWithID(rawURL string, id int) (*Entry, error) {
	if id <= 0 {
		parsed, err := ParseID(rawURL)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	return &Entry{ID: id, URL: rawURL, client: c}, nil
}

// Title returns the display title from the entry page.
func (e *Entry) Title(ctx context.Context) (string, error) {
	if e.title != nil {
		return *e.title, nil
	}
	body, err := e.client.get(ctx, e.URL)
	if err != nil {
		return "", fmt.Errorf("fetch title of anime %d: %w", e.ID, err)
	}
	title, err := stats.ExtractTitle(body)
	if err != nil {
		return "", fmt.Errorf("extract title of anime %d: %w", e.ID, err)
	}
	e.title = &title
	return title, nil
}

// Stats returns the statistics from the entry's stats page.
func (e *Entry) Stats(ctx context.Context) (stats.Stats, error) {
	if e.stats != nil {
		return e.stats, nil
	}
	pageURL := e.URL + "/stats"
	body, err := e.client.get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch stats of anime %d: %w", e.ID, err)
	}
	e.client.archivePage(ctx, e.ID, pageURL, body)

	s, err := stats.Extract(body)
	if err != nil {
		return nil, fmt.Errorf("extract stats of anime %d: %w", e.ID, err)
	}
	e.stats = s
	return s, nil
}

// URLForID returns the canonical entry URL for id.
func (c *Client) URLForID(ctx context.Context, id int) (string, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/anime/%d", c.cfg.BaseURL, id))
	if err != nil {
		return "", fmt.Errorf("fetch anime %d: %w", id, err)
	}
	canonical, err := stats.ExtractCanonicalURL(body)
	if err != nil {
		return "", fmt.Errorf("canonical url of anime %d: %w", id, err)
	}
	return canonical, nil
}
