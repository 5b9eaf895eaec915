package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/cerealworks/cereal/internal/domain"
	"github.com/cerealworks/cereal/internal/objectstore"
)

// dailyGrindPatreonProvider reads new chapters from an email-ingest
// bucket. Unlike the Wandering Inn digest, each Daily Grind post-by-email
// is a single chapter and the delivered HTML is embedded directly into
// ChapterKind rather than re-fetched.
type dailyGrindPatreonProvider struct {
	store  *objectstore.Store
	bucket string
}

func newDailyGrindPatreonProvider(store *objectstore.Store, bucket string) *dailyGrindPatreonProvider {
	return &dailyGrindPatreonProvider{store: store, bucket: bucket}
}

func (p *dailyGrindPatreonProvider) ListChapters(ctx context.Context, book domain.Book) ([]ProspectiveChapter, error) {
	objects, err := p.store.ListObjects(ctx, p.bucket)
	if err != nil {
		return nil, err
	}

	var chapters []ProspectiveChapter
	for _, obj := range objects {
		raw, err := p.store.FetchRaw(ctx, p.bucket, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("provider: fetch email %s: %w", obj.Key, err)
		}
		chapter, err := parseDailyGrindEmail(raw, obj.LastModified, book)
		if err != nil {
			// Provider-data failure: not a recognizable Daily Grind
			// delivery. Drop it, keep scanning other objects.
			continue
		}
		chapters = append(chapters, chapter)
	}
	return chapters, nil
}

func parseDailyGrindEmail(raw []byte, publishedAt time.Time, book domain.Book) (ProspectiveChapter, error) {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ProspectiveChapter{}, fmt.Errorf("provider: parse email: %w", err)
	}

	subject, err := r.Header.Subject()
	if err != nil || !strings.Contains(strings.ToLower(subject), "daily grind") {
		return ProspectiveChapter{}, fmt.Errorf("provider: not a daily grind email")
	}

	var lastBody string
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ProspectiveChapter{}, fmt.Errorf("provider: read email part: %w", err)
		}
		if _, ok := part.Header.(*mail.InlineHeader); !ok {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return ProspectiveChapter{}, fmt.Errorf("provider: read email part body: %w", err)
		}
		lastBody = string(body)
	}
	if lastBody == "" {
		return ProspectiveChapter{}, fmt.Errorf("provider: no html body in daily grind email")
	}

	name, ok := chapterTitleFromSubject(subject)
	if !ok {
		return ProspectiveChapter{}, fmt.Errorf("provider: no chapter title in subject %q", subject)
	}

	return ProspectiveChapter{
		Name:        name,
		Author:      book.Author,
		PublishedAt: publishedAt,
		Metadata:    domain.ChapterKind{Tag: domain.ChapterKindTheDailyGrindPatreon, HTML: lastBody},
	}, nil
}

// chapterTitleFromSubject extracts the text between the first and
// second double-quote characters in an email subject.
func chapterTitleFromSubject(subject string) (string, bool) {
	parts := strings.Split(subject, `"`)
	if len(parts) < 3 {
		return "", false
	}
	return parts[1], true
}

// FetchBody for the daily-grind case is the identity on the embedded
// HTML, wrapped with a book/chapter title header.
func (p *dailyGrindPatreonProvider) FetchBody(ctx context.Context, book domain.Book, chapter domain.Chapter) (string, error) {
	return fmt.Sprintf("<h1>%s: %s</h1>%s", book.Name, chapter.Name, chapter.Metadata.HTML), nil
}

func (p *dailyGrindPatreonProvider) TryParseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("provider: parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "patreon" || u.Host != "thedailygrind.com" {
		return fmt.Errorf("provider: %q is not a patreon daily grind url", rawURL)
	}
	return nil
}
