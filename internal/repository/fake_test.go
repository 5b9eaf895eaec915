package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cerealworks/cereal/internal/domain"
)

func mustBook(f *Fake) domain.Book {
	return f.AddBook(domain.Book{
		Name:     "Mother of Learning",
		Author:   "nobody103",
		Metadata: domain.BookKind{Tag: domain.BookKindRoyalRoad, RoyalRoadID: 21220},
	})
}

func TestFake_ListPendingDeliveries_NeverDeliveredUsesEpochWatermark(t *testing.T) {
	f := NewFake()
	book := mustBook(f)

	c1 := f.SeedChapter(domain.Chapter{BookID: book.ID, Name: "Chapter 1", Author: book.Author, PublishedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	c2 := f.SeedChapter(domain.Chapter{BookID: book.ID, Name: "Chapter 2", Author: book.Author, PublishedAt: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)})

	f.AddSubscription(domain.Subscription{UserID: "u1", BookID: book.ID, GroupingQuantity: 1})

	pending, err := f.ListPendingDeliveries(context.Background())
	if err != nil {
		t.Fatalf("ListPendingDeliveries: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("want 2 pending deliveries, got %d", len(pending))
	}
	if pending[0].ChapterID != c1.ID || pending[1].ChapterID != c2.ID {
		t.Fatalf("pending deliveries not in published_at order: %+v", pending)
	}
}

func TestFake_ListPendingDeliveries_RespectsWatermark(t *testing.T) {
	f := NewFake()
	book := mustBook(f)

	c1 := f.SeedChapter(domain.Chapter{BookID: book.ID, Name: "Chapter 1", Author: book.Author, PublishedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	c2 := f.SeedChapter(domain.Chapter{BookID: book.ID, Name: "Chapter 2", Author: book.Author, PublishedAt: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)})

	lastID := c1.ID
	f.AddSubscription(domain.Subscription{UserID: "u1", BookID: book.ID, GroupingQuantity: 1, LastChapterID: &lastID})

	pending, err := f.ListPendingDeliveries(context.Background())
	if err != nil {
		t.Fatalf("ListPendingDeliveries: %v", err)
	}
	if len(pending) != 1 || pending[0].ChapterID != c2.ID {
		t.Fatalf("want only chapter 2 pending, got %+v", pending)
	}
}

func TestFake_ListPendingDeliveries_IsolatesSubscriptions(t *testing.T) {
	f := NewFake()
	book := mustBook(f)
	other := f.AddBook(domain.Book{Name: "Other", Author: "Other", Metadata: domain.BookKind{Tag: domain.BookKindPale}})

	f.SeedChapter(domain.Chapter{BookID: book.ID, Name: "Chapter 1", Author: book.Author, PublishedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	f.SeedChapter(domain.Chapter{BookID: other.ID, Name: "Other Chapter", Author: other.Author, PublishedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})

	f.AddSubscription(domain.Subscription{UserID: "u1", BookID: book.ID, GroupingQuantity: 1})

	pending, err := f.ListPendingDeliveries(context.Background())
	if err != nil {
		t.Fatalf("ListPendingDeliveries: %v", err)
	}
	if len(pending) != 1 || pending[0].BookID != book.ID {
		t.Fatalf("subscription to book should not see other's chapters: %+v", pending)
	}
}

func TestFake_AdvanceSubscriptionWatermark_ClearsFuturePending(t *testing.T) {
	f := NewFake()
	book := mustBook(f)
	c1 := f.SeedChapter(domain.Chapter{BookID: book.ID, Name: "Chapter 1", Author: book.Author, PublishedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	f.AddSubscription(domain.Subscription{UserID: "u1", BookID: book.ID, GroupingQuantity: 1})

	if err := f.AdvanceSubscriptionWatermark(context.Background(), "u1", book.ID, c1.ID); err != nil {
		t.Fatalf("AdvanceSubscriptionWatermark: %v", err)
	}

	pending, err := f.ListPendingDeliveries(context.Background())
	if err != nil {
		t.Fatalf("ListPendingDeliveries: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("want no pending deliveries after advancing to latest chapter, got %+v", pending)
	}
}

func TestFake_AdvanceSubscriptionWatermark_UnknownSubscriptionErrors(t *testing.T) {
	f := NewFake()
	if err := f.AdvanceSubscriptionWatermark(context.Background(), "ghost", uuid.New(), uuid.New()); err == nil {
		t.Fatal("want error advancing watermark for unknown subscription")
	}
}

func TestFake_InsertChapterBodies_RequiresExistingChapter(t *testing.T) {
	f := NewFake()
	err := f.InsertChapterBodies(context.Background(), []domain.NewChapterBody{
		{ChapterID: uuid.New(), Bucket: "b", Key: "k"},
	})
	if err == nil {
		t.Fatal("want error inserting body for unknown chapter")
	}
}

func TestFake_LoadBooks_OmitsUnknownIDs(t *testing.T) {
	f := NewFake()
	book := mustBook(f)

	books, err := f.LoadBooks(context.Background(), []uuid.UUID{book.ID, uuid.New()})
	if err != nil {
		t.Fatalf("LoadBooks: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("want 1 book loaded, got %d", len(books))
	}
}

func TestFake_ListSubscribedBooks_Deduplicates(t *testing.T) {
	f := NewFake()
	book := mustBook(f)
	f.AddSubscription(domain.Subscription{UserID: "u1", BookID: book.ID, GroupingQuantity: 1})
	f.AddSubscription(domain.Subscription{UserID: "u2", BookID: book.ID, GroupingQuantity: 1})

	books, err := f.ListSubscribedBooks(context.Background())
	if err != nil {
		t.Fatalf("ListSubscribedBooks: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("want 1 distinct book, got %d", len(books))
	}
}
