// Package provider resolves a Book's BookKind to the capability that
// lists its current chapters and fetches a single chapter's body: an
// RSS-syndicated wordpress-family scrape, a RoyalRoad scrape, or an
// email-ingest read for the two Patreon-gated serials.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cerealworks/cereal/internal/domain"
	"github.com/cerealworks/cereal/internal/objectstore"
)

// ProspectiveChapter is a chapter a provider has observed but that has
// not yet been persisted — a NewChapter without a database identity.
type ProspectiveChapter struct {
	Name        string
	Author      string
	PublishedAt time.Time
	Metadata    domain.ChapterKind
}

// Provider lists a book's current chapters and fetches a single
// chapter's body. Exactly one Provider is resolved per BookKind.
type Provider interface {
	// ListChapters returns every chapter the provider currently
	// exposes for book, in no particular order. An empty provider
	// response is not an error.
	ListChapters(ctx context.Context, book domain.Book) ([]ProspectiveChapter, error)

	// FetchBody returns the chapter's HTML (or, for providers that
	// embed the body in ChapterKind, the embedded HTML directly).
	// The result MUST be non-empty.
	FetchBody(ctx context.Context, book domain.Book, chapter domain.Chapter) (string, error)

	// TryParseURL validates that rawURL belongs to this provider,
	// returning a descriptive error otherwise.
	TryParseURL(rawURL string) error
}

// ErrUnknownBookKind is returned by For when passed a BookKindTag
// outside the closed set this package knows how to resolve.
type ErrUnknownBookKind struct {
	Tag domain.BookKindTag
}

func (e ErrUnknownBookKind) Error() string {
	return fmt.Sprintf("provider: no provider registered for book kind %q", e.Tag)
}

// Registry holds the dependencies the two email-ingest ("Patreon-case")
// providers need — an object store client and the bucket their inbound
// mail lands in — and resolves BookKind to Provider.
//
// The HTTP-based providers need no such dependency; they are constructed
// fresh on every call to For.
type Registry struct {
	emailStore  *objectstore.Store
	emailBucket string
}

// NewRegistry builds a Registry. emailStore and emailBucket are only
// consulted by the two Patreon-case providers.
func NewRegistry(emailStore *objectstore.Store, emailBucket string) *Registry {
	return &Registry{emailStore: emailStore, emailBucket: emailBucket}
}

// For is the total function from a BookKind to its Provider.
func (r *Registry) For(kind domain.BookKind) (Provider, error) {
	switch kind.Tag {
	case domain.BookKindRoyalRoad:
		return royalRoadProvider{}, nil
	case domain.BookKindPale:
		return wordpressProvider{
			feedURL: "https://palewebserial.wordpress.com/feed/",
			host:    "palewebserial.wordpress.com",
			author:  "Wildbow",
			tagOf:   func(url string) domain.ChapterKind { return domain.ChapterKind{Tag: domain.ChapterKindPale, URL: url} },
		}, nil
	case domain.BookKindAPracticalGuideToEvil:
		return wordpressProvider{
			feedURL: "https://practicalguidetoevil.wordpress.com/feed/",
			host:    "practicalguidetoevil.wordpress.com",
			author:  "erraticerrata",
			tagOf: func(url string) domain.ChapterKind {
				return domain.ChapterKind{Tag: domain.ChapterKindAPracticalGuideToEvil, URL: url}
			},
		}, nil
	case domain.BookKindTheWanderingInn:
		return wordpressProvider{
			feedURL: "https://wanderinginn.com/feed/",
			host:    "wanderinginn.com",
			author:  "Pirateaba",
			tagOf: func(url string) domain.ChapterKind {
				return domain.ChapterKind{Tag: domain.ChapterKindTheWanderingInn, URL: url}
			},
		}, nil
	case domain.BookKindTheWanderingInnPatreon:
		return newWanderingInnPatreonProvider(r.emailStore, r.emailBucket), nil
	case domain.BookKindTheDailyGrindPatreon:
		return newDailyGrindPatreonProvider(r.emailStore, r.emailBucket), nil
	default:
		return nil, ErrUnknownBookKind{Tag: kind.Tag}
	}
}
