// Package ingest runs the periodic discovery pipeline: for every
// subscribed book, ask its provider for the current chapter list, diff
// it against what is already stored, fetch and convert the bodies of
// anything new, and persist chapter plus body together.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cerealworks/cereal/internal/domain"
	"github.com/cerealworks/cereal/internal/objectstore"
	"github.com/cerealworks/cereal/internal/provider"
	"github.com/cerealworks/cereal/internal/repository"
)

// maxConcurrentBooks bounds how many books are discovered at once, so a
// tick with many subscribed books doesn't open unbounded HTTP/DB
// connections simultaneously.
const maxConcurrentBooks = 8

// bodyInputExtension is the input extension passed to the converter for
// every provider's body; every provider yields HTML.
const bodyInputExtension = "html"

// ObjectStore is the subset of *objectstore.Store the pipeline needs.
type ObjectStore interface {
	Store(ctx context.Context, data []byte) (objectstore.Location, error)
}

// Converter is the subset of *converter.Converter the pipeline needs.
type Converter interface {
	GenerateMobi(ctx context.Context, inputExtension, body, coverTitle, bookTitle, author string) ([]byte, error)
}

// ProviderRegistry is the subset of *provider.Registry the pipeline needs.
type ProviderRegistry interface {
	For(kind domain.BookKind) (provider.Provider, error)
}

// Pipeline runs one discovery tick at a time, across every subscribed
// book.
type Pipeline struct {
	repo      repository.Querier
	providers ProviderRegistry
	store     ObjectStore
	converter Converter
	log       *slog.Logger
}

// New creates a Pipeline.
func New(repo repository.Querier, providers ProviderRegistry, store ObjectStore, conv Converter, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{repo: repo, providers: providers, store: store, converter: conv, log: log}
}

// Run blocks, ticking every period until ctx is cancelled. Missed ticks
// are skipped, never queued up — a tick that is still running when the
// next one would fire simply delays the next tick's start.
func (p *Pipeline) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one discovery pass: list subscribed books and discover
// each concurrently, bounded by maxConcurrentBooks. A panic or error
// discovering one book is logged and does not affect any other book.
func (p *Pipeline) Tick(ctx context.Context) {
	books, err := p.repo.ListSubscribedBooks(ctx)
	if err != nil {
		p.log.Error("ingest: list subscribed books", "error", err)
		return
	}

	sem := make(chan struct{}, maxConcurrentBooks)
	var wg sync.WaitGroup
	for _, book := range books {
		book := book
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.discoverSafely(ctx, book)
		}()
	}
	wg.Wait()
}

// discoverSafely recovers a panic in discover so that one book's
// provider bug can never bring down the tick.
func (p *Pipeline) discoverSafely(ctx context.Context, book domain.Book) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("ingest: panic discovering book", "book_id", book.ID, "panic", r)
		}
	}()
	if err := p.discover(ctx, book); err != nil {
		p.log.Error("ingest: discover book", "book_id", book.ID, "book_name", book.Name, "error", err)
	}
}

// discover resolves book's provider, lists its current chapters, diffs
// them against what's already persisted by ChapterKind identity, and
// fetches/converts/stores/persists anything new.
func (p *Pipeline) discover(ctx context.Context, book domain.Book) error {
	prov, err := p.providers.For(book.Metadata)
	if err != nil {
		return fmt.Errorf("resolve provider: %w", err)
	}

	listed, err := prov.ListChapters(ctx, book)
	if err != nil {
		return fmt.Errorf("list chapters: %w", err)
	}
	if len(listed) == 0 {
		return nil
	}

	oldest := listed[0].PublishedAt
	for _, c := range listed[1:] {
		if c.PublishedAt.Before(oldest) {
			oldest = c.PublishedAt
		}
	}

	existing, err := p.repo.ChaptersSince(ctx, book.ID, oldest)
	if err != nil {
		return fmt.Errorf("load existing chapters: %w", err)
	}

	newChapters := diffByMetadata(listed, existing)
	if len(newChapters) == 0 {
		return nil
	}

	chapters, bodies := p.fetchAndConvert(ctx, prov, book, newChapters)
	if len(chapters) == 0 {
		return nil
	}

	inserted, err := p.repo.InsertChapters(ctx, chapters)
	if err != nil {
		return fmt.Errorf("insert chapters: %w", err)
	}

	newBodies := make([]domain.NewChapterBody, 0, len(inserted))
	for i, c := range inserted {
		loc := bodies[i]
		newBodies = append(newBodies, domain.NewChapterBody{ChapterID: c.ID, Bucket: loc.Bucket, Key: loc.Key})
	}
	if err := p.repo.InsertChapterBodies(ctx, newBodies); err != nil {
		return fmt.Errorf("insert chapter bodies: %w", err)
	}

	return nil
}

// diffByMetadata keeps only the prospective chapters whose ChapterKind
// doesn't match any already-persisted chapter of the same book. This is
// the sole identity the pipeline trusts; names and timestamps may
// change upstream without producing a spurious "new" chapter.
func diffByMetadata(listed []provider.ProspectiveChapter, existing []domain.Chapter) []provider.ProspectiveChapter {
	var fresh []provider.ProspectiveChapter
	for _, candidate := range listed {
		known := false
		for _, e := range existing {
			if candidate.Metadata.Equal(e.Metadata) {
				known = true
				break
			}
		}
		if !known {
			fresh = append(fresh, candidate)
		}
	}
	return fresh
}

// fetchAndConvert fetches, converts, and stores each new chapter's body
// concurrently. A chapter whose body fetch, conversion, or storage fails
// is dropped from this tick (logged) and retried automatically on the
// next tick, since no chapter row is ever inserted for it.
func (p *Pipeline) fetchAndConvert(ctx context.Context, prov provider.Provider, book domain.Book, candidates []provider.ProspectiveChapter) ([]domain.NewChapter, []objectstore.Location) {
	type result struct {
		chapter domain.NewChapter
		loc     objectstore.Location
		ok      bool
	}
	results := make([]result, len(candidates))

	var wg sync.WaitGroup
	for i, cand := range candidates {
		i, cand := i, cand
		wg.Add(1)
		go func() {
			defer wg.Done()
			loc, ok := p.fetchOne(ctx, prov, book, cand)
			if !ok {
				return
			}
			results[i] = result{
				chapter: domain.NewChapter{
					Name:        cand.Name,
					Author:      cand.Author,
					BookID:      book.ID,
					PublishedAt: cand.PublishedAt,
					Metadata:    cand.Metadata,
				},
				loc: loc,
				ok:  true,
			}
		}()
	}
	wg.Wait()

	chapters := make([]domain.NewChapter, 0, len(candidates))
	locs := make([]objectstore.Location, 0, len(candidates))
	for _, r := range results {
		if r.ok {
			chapters = append(chapters, r.chapter)
			locs = append(locs, r.loc)
		}
	}
	return chapters, locs
}

// fetchOne runs one chapter's body-fetch-convert-store sequence. A
// placeholder domain.Chapter carries only what FetchBody needs
// (Metadata); no database identity exists yet.
func (p *Pipeline) fetchOne(ctx context.Context, prov provider.Provider, book domain.Book, cand provider.ProspectiveChapter) (objectstore.Location, bool) {
	placeholder := domain.Chapter{Name: cand.Name, Author: cand.Author, BookID: book.ID, PublishedAt: cand.PublishedAt, Metadata: cand.Metadata}

	html, err := prov.FetchBody(ctx, book, placeholder)
	if err != nil {
		p.log.Error("ingest: fetch chapter body", "book_id", book.ID, "chapter_name", cand.Name, "error", err)
		return objectstore.Location{}, false
	}

	mobi, err := p.converter.GenerateMobi(ctx, bodyInputExtension, html, cand.Name, book.Name, cand.Author)
	if err != nil {
		p.log.Error("ingest: convert chapter", "book_id", book.ID, "chapter_name", cand.Name, "error", err)
		return objectstore.Location{}, false
	}

	loc, err := p.store.Store(ctx, mobi)
	if err != nil {
		p.log.Error("ingest: store chapter body", "book_id", book.ID, "chapter_name", cand.Name, "error", err)
		return objectstore.Location{}, false
	}

	return loc, true
}
