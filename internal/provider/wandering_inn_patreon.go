package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message/mail"

	"github.com/cerealworks/cereal/internal/domain"
	"github.com/cerealworks/cereal/internal/httpkit"
	"github.com/cerealworks/cereal/internal/objectstore"
)

const patreonFetchTimeout = 30 * time.Second

// wanderingInnPatreonProvider reads new chapters from an email-ingest
// bucket: each object is a raw RFC-5322 message forwarded from the
// Patreon post-by-email notification, whose body links out to every
// chapter bundled in that post (The Wandering Inn's Patreon posts are
// multi-chapter digests, occasionally password-gated).
type wanderingInnPatreonProvider struct {
	store  *objectstore.Store
	bucket string
}

func newWanderingInnPatreonProvider(store *objectstore.Store, bucket string) *wanderingInnPatreonProvider {
	return &wanderingInnPatreonProvider{store: store, bucket: bucket}
}

func (p *wanderingInnPatreonProvider) ListChapters(ctx context.Context, book domain.Book) ([]ProspectiveChapter, error) {
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
		parsed, err := parseWanderingInnEmail(raw, obj.LastModified, book)
		if err != nil {
			// Provider-data failure: this message isn't a usable
			// Wandering Inn chapter digest. Drop it, keep scanning.
			continue
		}
		chapters = append(chapters, parsed...)
	}
	return chapters, nil
}

func parseWanderingInnEmail(raw []byte, publishedAt time.Time, book domain.Book) ([]ProspectiveChapter, error) {
	header, htmlBody, err := readMailHTML(raw)
	if err != nil {
		return nil, err
	}

	subject, err := header.Subject()
	if err != nil || !strings.Contains(strings.ToLower(subject), "pirateaba") {
		return nil, fmt.Errorf("provider: not a wandering inn patreon email")
	}

	doc, err := parseDocument([]byte(htmlBody))
	if err != nil {
		return nil, err
	}

	password := wanderingInnPassword(doc)

	var chapters []ProspectiveChapter
	doc.Find("div > p a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		name := lastPathSegment(href)
		if name == "" {
			return
		}
		chapters = append(chapters, ProspectiveChapter{
			Name:        name,
			Author:      book.Author,
			PublishedAt: publishedAt,
			Metadata: domain.ChapterKind{
				Tag:      domain.ChapterKindTheWanderingInnPatreon,
				URL:      href,
				Password: password,
			},
		})
	})
	if len(chapters) == 0 {
		return nil, fmt.Errorf("provider: no chapter links in wandering inn patreon email")
	}
	return chapters, nil
}

// wanderingInnPassword looks for the single paragraph mentioning
// "password" and returns the text of the paragraph immediately
// following it, if exactly one such mention exists.
func wanderingInnPassword(doc *goquery.Document) *string {
	var candidates []string
	doc.Find("div > p").Each(func(_ int, s *goquery.Selection) {
		if !strings.Contains(strings.ToLower(s.Text()), "password") {
			return
		}
		next := s.Next()
		if !next.Is("p") {
			return
		}
		candidates = append(candidates, strings.TrimSpace(next.Text()))
	})
	if len(candidates) != 1 {
		return nil
	}
	return &candidates[0]
}

func lastPathSegment(href string) string {
	trimmed := strings.Trim(href, "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}

func (p *wanderingInnPatreonProvider) FetchBody(ctx context.Context, book domain.Book, chapter domain.Chapter) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("provider: create cookie jar: %w", err)
	}
	client := httpkit.NewClient(httpkit.WithTimeout(patreonFetchTimeout))
	client.Jar = jar

	if chapter.Metadata.Password != nil {
		form := url.Values{"post_password": {*chapter.Metadata.Password}, "Submit": {"Enter"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://wanderinginn.com/wp-pass.php", strings.NewReader(form.Encode()))
		if err != nil {
			return "", fmt.Errorf("provider: build password request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("provider: submit wandering inn password: %w", err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chapter.Metadata.URL, nil)
	if err != nil {
		return "", fmt.Errorf("provider: build request for %s: %w", chapter.Metadata.URL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider: fetch %s: %w", chapter.Metadata.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider: %s returned %d", chapter.Metadata.URL, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("provider: read body of %s: %w", chapter.Metadata.URL, err)
	}

	doc, err := parseDocument(raw)
	if err != nil {
		return "", err
	}
	return extractContentElements(doc)
}

func (p *wanderingInnPatreonProvider) TryParseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("provider: parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "patreon" || u.Host != "wanderinginn.com" {
		return fmt.Errorf("provider: %q is not a patreon wandering inn url", rawURL)
	}
	return nil
}

// readMailHTML parses an RFC-5322 message and returns its header along
// with the text/html body of its first HTML part.
func readMailHTML(raw []byte) (*mail.Header, string, error) {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("provider: parse email: %w", err)
	}

	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("provider: read email part: %w", err)
		}
		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		if contentType != "text/html" {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, "", fmt.Errorf("provider: read email html body: %w", err)
		}
		return &r.Header, string(body), nil
	}
	return nil, "", fmt.Errorf("provider: no html body in email")
}
