package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cerealworks/cereal/internal/domain"
)

// royalRoadProvider lists and fetches chapters from RoyalRoad's
// syndication feed and chapter pages.
type royalRoadProvider struct{}

func (royalRoadProvider) ListChapters(ctx context.Context, book domain.Book) ([]ProspectiveChapter, error) {
	feedURL := fmt.Sprintf("https://www.royalroad.com/syndication/%d", book.Metadata.RoyalRoadID)
	ch, err := fetchRSS(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	chapters := make([]ProspectiveChapter, 0, len(ch.Items))
	for _, item := range ch.Items {
		if item.Title == "" {
			return nil, fmt.Errorf("provider: royalroad feed item missing title")
		}
		if item.Link == "" {
			return nil, fmt.Errorf("provider: royalroad feed item missing link")
		}
		chapterID, err := royalRoadChapterIDFromLink(item.Link)
		if err != nil {
			return nil, err
		}
		publishedAt, err := parseRFC2822(item.PubDate)
		if err != nil {
			return nil, err
		}

		chapters = append(chapters, ProspectiveChapter{
			Name:        stripRoyalRoadTitlePrefix(item.Title, ch.Title),
			Author:      book.Author,
			PublishedAt: publishedAt,
			Metadata:    domain.ChapterKind{Tag: domain.ChapterKindRoyalRoad, ChapterID: chapterID},
		})
	}
	return chapters, nil
}

func (royalRoadProvider) FetchBody(ctx context.Context, book domain.Book, chapter domain.Chapter) (string, error) {
	link := fmt.Sprintf("https://www.royalroad.com/fiction/chapter/%d", chapter.Metadata.ChapterID)
	raw, err := fetchHTML(ctx, link)
	if err != nil {
		return "", err
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return "", err
	}
	return extractChapterInner(doc)
}

func (royalRoadProvider) TryParseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("provider: parse url %q: %w", rawURL, err)
	}
	if u.Host != "www.royalroad.com" && u.Host != "royalroad.com" {
		return fmt.Errorf("provider: hostname %q is not www.royalroad.com or royalroad.com", u.Host)
	}
	return nil
}

// stripRoyalRoadTitlePrefix removes a leading "<book title> - " prefix
// from a feed item's title, as RoyalRoad renders it.
func stripRoyalRoadTitlePrefix(itemTitle, channelTitle string) string {
	prefix := channelTitle + " - "
	if rest, ok := strings.CutPrefix(itemTitle, prefix); ok {
		return strings.TrimSpace(rest)
	}
	return itemTitle
}

func royalRoadChapterIDFromLink(link string) (uint64, error) {
	segments := strings.Split(strings.TrimRight(link, "/"), "/")
	idSegment := segments[len(segments)-1]
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "chapter" {
			idSegment = segments[i+1]
			break
		}
	}
	if len(segments) < 2 || idSegment == "" {
		return 0, fmt.Errorf("provider: no chapter id in royalroad link %q", link)
	}
	id, err := strconv.ParseUint(idSegment, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("provider: invalid chapter id in royalroad link %q: %w", link, err)
	}
	return id, nil
}
