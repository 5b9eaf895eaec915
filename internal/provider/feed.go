package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cerealworks/cereal/internal/httpkit"
)

// rssChannel is the XML structure of an RSS 2.0 channel, as produced by
// every syndication-feed provider this package polls.
type rssChannel struct {
	XMLName xml.Name  `xml:"rss"`
	Title   string    `xml:"channel>title"`
	Items   []rssItem `xml:"channel>item"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

var sharedClient = httpkit.NewClient(httpkit.WithTimeout(30 * time.Second))

// fetchRSS fetches and parses feedURL as an RSS 2.0 document.
func fetchRSS(ctx context.Context, feedURL string) (*rssChannel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: build feed request: %w", err)
	}

	resp, err := sharedClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: fetch feed %s: %w", feedURL, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<16)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("provider: feed %s returned %d: %s", feedURL, resp.StatusCode, errBody)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider: read feed %s: %w", feedURL, err)
	}

	var ch rssChannel
	if err := xml.Unmarshal(body, &ch); err != nil {
		return nil, fmt.Errorf("provider: parse feed %s: %w", feedURL, err)
	}
	return &ch, nil
}

// fetchHTML fetches url and returns the raw document bytes.
func fetchHTML(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: build request for %s: %w", url, err)
	}

	resp, err := sharedClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: fetch %s: %w", url, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<16)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("provider: %s returned %d: %s", url, resp.StatusCode, errBody)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider: read body of %s: %w", url, err)
	}
	return body, nil
}

// parseRFC2822 parses an RSS pubDate. It tries RFC 1123Z (numeric zone,
// most feeds), then RFC 1123 (named zone), then the RFC 2822 layout with
// a one-digit day that some feeds use.
func parseRFC2822(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 -0700"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("provider: unparseable publish date %q: %w", s, lastErr)
}
