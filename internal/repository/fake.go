package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cerealworks/cereal/internal/domain"
)

// Fake is an in-memory Querier used by ingestion and delivery package
// tests, so those packages can exercise their batching and diffing
// logic without a database.
type Fake struct {
	mu sync.Mutex

	books           map[uuid.UUID]domain.Book
	chapters        map[uuid.UUID]domain.Chapter
	chapterBodies   map[uuid.UUID]domain.ChapterBody
	subscriptions   map[subscriptionKey]*domain.Subscription
	deliveryMethods map[string]domain.DeliveryMethod

	nextChapterID func() uuid.UUID
}

type subscriptionKey struct {
	userID string
	bookID uuid.UUID
}

// NewFake creates an empty Fake repository.
func NewFake() *Fake {
	return &Fake{
		books:           make(map[uuid.UUID]domain.Book),
		chapters:        make(map[uuid.UUID]domain.Chapter),
		chapterBodies:   make(map[uuid.UUID]domain.ChapterBody),
		subscriptions:   make(map[subscriptionKey]*domain.Subscription),
		deliveryMethods: make(map[string]domain.DeliveryMethod),
		nextChapterID:   uuid.New,
	}
}

var _ Querier = (*Fake)(nil)

// AddBook seeds a book, assigning it a fresh id if book.ID is the zero
// value.
func (f *Fake) AddBook(book domain.Book) domain.Book {
	f.mu.Lock()
	defer f.mu.Unlock()
	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	f.books[book.ID] = book
	return book
}

// AddSubscription seeds a subscription.
func (f *Fake) AddSubscription(sub domain.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sub
	f.subscriptions[subscriptionKey{userID: sub.UserID, bookID: sub.BookID}] = &s
}

// SetDeliveryMethod seeds a user's delivery method.
func (f *Fake) SetDeliveryMethod(method domain.DeliveryMethod) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveryMethods[method.UserID] = method
}

// Subscription returns a copy of the seeded subscription for (userID,
// bookID), for test assertions against its current watermark.
func (f *Fake) Subscription(userID string, bookID uuid.UUID) (domain.Subscription, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[subscriptionKey{userID: userID, bookID: bookID}]
	if !ok {
		return domain.Subscription{}, false
	}
	return *sub, true
}

// SeedChapter inserts a chapter directly (bypassing InsertChapters),
// useful for tests that need pre-existing chapters before the
// subscription under test is created.
func (f *Fake) SeedChapter(chapter domain.Chapter) domain.Chapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chapter.ID == uuid.Nil {
		chapter.ID = f.nextChapterID()
	}
	f.chapters[chapter.ID] = chapter
	return chapter
}

func (f *Fake) ListSubscribedBooks(ctx context.Context) ([]domain.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[uuid.UUID]bool)
	var books []domain.Book
	for _, sub := range f.subscriptions {
		if seen[sub.BookID] {
			continue
		}
		book, ok := f.books[sub.BookID]
		if !ok {
			continue
		}
		seen[sub.BookID] = true
		books = append(books, book)
	}
	return books, nil
}

func (f *Fake) ChaptersSince(ctx context.Context, bookID uuid.UUID, since time.Time) ([]domain.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var chapters []domain.Chapter
	for _, c := range f.chapters {
		if c.BookID == bookID && !c.PublishedAt.Before(since) {
			chapters = append(chapters, c)
		}
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].PublishedAt.After(chapters[j].PublishedAt) })
	return chapters, nil
}

func (f *Fake) InsertChapters(ctx context.Context, newChapters []domain.NewChapter) ([]domain.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inserted := make([]domain.Chapter, 0, len(newChapters))
	now := time.Now().UTC()
	for _, nc := range newChapters {
		c := domain.Chapter{
			ID:          f.nextChapterID(),
			BookID:      nc.BookID,
			Name:        nc.Name,
			Author:      nc.Author,
			PublishedAt: nc.PublishedAt,
			Metadata:    nc.Metadata,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		f.chapters[c.ID] = c
		inserted = append(inserted, c)
	}
	return inserted, nil
}

func (f *Fake) InsertChapterBodies(ctx context.Context, bodies []domain.NewChapterBody) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range bodies {
		if _, ok := f.chapters[b.ChapterID]; !ok {
			return fmt.Errorf("repository(fake): chapter body for unknown chapter %s", b.ChapterID)
		}
		f.chapterBodies[b.ChapterID] = domain.ChapterBody{ChapterID: b.ChapterID, Bucket: b.Bucket, Key: b.Key}
	}
	return nil
}

func (f *Fake) ListPendingDeliveries(ctx context.Context) ([]PendingDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pending []PendingDelivery
	for _, sub := range f.subscriptions {
		watermark := time.Unix(0, 0).UTC()
		if sub.LastChapterID != nil {
			if c, ok := f.chapters[*sub.LastChapterID]; ok {
				watermark = c.PublishedAt
			}
		}
		for _, c := range f.chapters {
			if c.BookID != sub.BookID {
				continue
			}
			if !c.PublishedAt.After(watermark) {
				continue
			}
			pending = append(pending, PendingDelivery{
				UserID:           sub.UserID,
				BookID:           sub.BookID,
				GroupingQuantity: sub.GroupingQuantity,
				ChapterID:        c.ID,
				ChapterName:      c.Name,
				ChapterAuthor:    c.Author,
				PublishedAt:      c.PublishedAt,
			})
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].UserID != pending[j].UserID {
			return pending[i].UserID < pending[j].UserID
		}
		if pending[i].BookID != pending[j].BookID {
			return pending[i].BookID.String() < pending[j].BookID.String()
		}
		return pending[i].PublishedAt.Before(pending[j].PublishedAt)
	})
	return pending, nil
}

func (f *Fake) LoadDeliveryMethods(ctx context.Context, userIDs []string) (map[string]domain.DeliveryMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	methods := make(map[string]domain.DeliveryMethod, len(userIDs))
	for _, id := range userIDs {
		if m, ok := f.deliveryMethods[id]; ok {
			methods[id] = m
		}
	}
	return methods, nil
}

func (f *Fake) LoadBooks(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]domain.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	books := make(map[uuid.UUID]domain.Book, len(bookIDs))
	for _, id := range bookIDs {
		if b, ok := f.books[id]; ok {
			books[id] = b
		}
	}
	return books, nil
}

func (f *Fake) LoadChapterBodies(ctx context.Context, chapterIDs []uuid.UUID) ([]domain.ChapterBody, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := append([]uuid.UUID(nil), chapterIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var bodies []domain.ChapterBody
	for _, id := range ids {
		if b, ok := f.chapterBodies[id]; ok {
			bodies = append(bodies, b)
		}
	}
	return bodies, nil
}

func (f *Fake) AdvanceSubscriptionWatermark(ctx context.Context, userID string, bookID uuid.UUID, newLastChapterID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.subscriptions[subscriptionKey{userID: userID, bookID: bookID}]
	if !ok {
		return fmt.Errorf("repository(fake): no subscription %s/%s to advance", userID, bookID)
	}
	id := newLastChapterID
	sub.LastChapterID = &id
	return nil
}
