package provider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cerealworks/cereal/internal/domain"
)

// wordpressProvider implements the three wordpress-family serials (Pale,
// APracticalGuideToEvil, TheWanderingInn). They share an RSS feed plus a
// "div.entry-content > *" body extraction and differ only in feed URL,
// expected hostname, author, and the ChapterKind tag they produce — no
// title-prefix stripping is applied (that behavior is RoyalRoad-only).
type wordpressProvider struct {
	feedURL string
	host    string
	author  string
	tagOf   func(url string) domain.ChapterKind
}

func (p wordpressProvider) ListChapters(ctx context.Context, book domain.Book) ([]ProspectiveChapter, error) {
	ch, err := fetchRSS(ctx, p.feedURL)
	if err != nil {
		return nil, err
	}

	chapters := make([]ProspectiveChapter, 0, len(ch.Items))
	for _, item := range ch.Items {
		if item.Title == "" {
			return nil, fmt.Errorf("provider: %s feed item missing title", p.host)
		}
		if item.Link == "" {
			return nil, fmt.Errorf("provider: %s feed item missing link", p.host)
		}
		publishedAt, err := parseRFC2822(item.PubDate)
		if err != nil {
			return nil, err
		}

		chapters = append(chapters, ProspectiveChapter{
			Name:        item.Title,
			Author:      p.author,
			PublishedAt: publishedAt,
			Metadata:    p.tagOf(item.Link),
		})
	}
	return chapters, nil
}

func (p wordpressProvider) FetchBody(ctx context.Context, book domain.Book, chapter domain.Chapter) (string, error) {
	raw, err := fetchHTML(ctx, chapter.Metadata.URL)
	if err != nil {
		return "", err
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return "", err
	}
	return extractContentElements(doc)
}

func (p wordpressProvider) TryParseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("provider: parse url %q: %w", rawURL, err)
	}
	if u.Host != p.host {
		return fmt.Errorf("provider: hostname %q is not %s", u.Host, p.host)
	}
	return nil
}
