// Package delivery runs the periodic delivery scheduler: group chapters
// owed to each subscription, check the batching threshold, concatenate
// and convert bodies once the threshold is met, dispatch every enabled
// channel, and advance the watermark only when every channel succeeds.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cerealworks/cereal/internal/domain"
	"github.com/cerealworks/cereal/internal/objectstore"
	"github.com/cerealworks/cereal/internal/repository"
)

// bodyInputExtension is the input extension passed to the converter;
// every chapter body stored by ingest is HTML.
const bodyInputExtension = "html"

// ObjectStore is the subset of *objectstore.Store the scheduler needs.
type ObjectStore interface {
	Fetch(ctx context.Context, loc objectstore.Location) ([]byte, error)
}

// Converter is the subset of *converter.Converter the scheduler needs.
type Converter interface {
	GenerateMobi(ctx context.Context, inputExtension, body, coverTitle, bookTitle, author string) ([]byte, error)
}

// PushSender sends a single push notification.
type PushSender interface {
	Send(ctx context.Context, userKey, message string) error
}

// EmailSender sends a single .mobi attachment email.
type EmailSender interface {
	SendMobi(ctx context.Context, to, title, subject string, mobiBytes []byte) error
}

// Scheduler runs one delivery tick at a time.
type Scheduler struct {
	repo      repository.Querier
	store     ObjectStore
	converter Converter
	push      PushSender
	email     EmailSender
	log       *slog.Logger
}

// New creates a Scheduler.
func New(repo repository.Querier, store ObjectStore, conv Converter, push PushSender, email EmailSender, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{repo: repo, store: store, converter: conv, push: push, email: email, log: log}
}

// Run blocks, ticking every period until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// group is one (user, book) pairing's ordered, deduplicated chapters
// awaiting delivery.
type group struct {
	userID           string
	bookID           uuid.UUID
	groupingQuantity int64
	chapters         []repository.PendingDelivery
}

// Tick runs one delivery pass: load pending deliveries, group them,
// load supporting data, and dispatch every group whose threshold is met.
func (s *Scheduler) Tick(ctx context.Context) {
	pending, err := s.repo.ListPendingDeliveries(ctx)
	if err != nil {
		s.log.Error("delivery: list pending deliveries", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	groups := groupPending(pending)

	userIDs := make([]string, 0, len(groups))
	bookIDs := make([]uuid.UUID, 0, len(groups))
	seenUser := make(map[string]bool)
	seenBook := make(map[uuid.UUID]bool)
	for _, g := range groups {
		if !seenUser[g.userID] {
			seenUser[g.userID] = true
			userIDs = append(userIDs, g.userID)
		}
		if !seenBook[g.bookID] {
			seenBook[g.bookID] = true
			bookIDs = append(bookIDs, g.bookID)
		}
	}

	methods, err := s.repo.LoadDeliveryMethods(ctx, userIDs)
	if err != nil {
		s.log.Error("delivery: load delivery methods", "error", err)
		return
	}
	books, err := s.repo.LoadBooks(ctx, bookIDs)
	if err != nil {
		s.log.Error("delivery: load books", "error", err)
		return
	}

	for _, g := range groups {
		s.deliverGroupSafely(ctx, g, methods[g.userID], books[g.bookID])
	}
}

// groupPending groups pending deliveries into a stable (user, book)
// order, chapters ordered by published_at ascending and deduplicated by
// chapter id.
func groupPending(pending []repository.PendingDelivery) []group {
	type key struct {
		userID string
		bookID uuid.UUID
	}
	order := make([]key, 0)
	byKey := make(map[key]*group)

	for _, p := range pending {
		k := key{userID: p.UserID, bookID: p.BookID}
		g, ok := byKey[k]
		if !ok {
			g = &group{userID: p.UserID, bookID: p.BookID, groupingQuantity: p.GroupingQuantity}
			byKey[k] = g
			order = append(order, k)
		}
		if containsChapter(g.chapters, p.ChapterID) {
			continue
		}
		g.chapters = append(g.chapters, p)
	}

	groups := make([]group, 0, len(order))
	for _, k := range order {
		g := byKey[k]
		sort.Slice(g.chapters, func(i, j int) bool { return g.chapters[i].PublishedAt.Before(g.chapters[j].PublishedAt) })
		groups = append(groups, *g)
	}
	return groups
}

func containsChapter(chapters []repository.PendingDelivery, id uuid.UUID) bool {
	for _, c := range chapters {
		if c.ChapterID == id {
			return true
		}
	}
	return false
}

// deliverGroupSafely recovers a panic during one group's delivery so it
// cannot interrupt any other group's delivery in the same tick.
func (s *Scheduler) deliverGroupSafely(ctx context.Context, g group, method domain.DeliveryMethod, book domain.Book) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("delivery: panic delivering group", "user_id", g.userID, "book_id", g.bookID, "panic", r)
		}
	}()
	if err := s.deliverGroup(ctx, g, method, book); err != nil {
		s.log.Error("delivery: deliver group", "user_id", g.userID, "book_id", g.bookID, "error", err)
	}
}

// deliverGroup handles one (user, book) group: threshold check, body
// concatenation, title composition, per-channel dispatch, and
// watermark advance on success.
func (s *Scheduler) deliverGroup(ctx context.Context, g group, method domain.DeliveryMethod, book domain.Book) error {
	if int64(len(g.chapters)) < g.groupingQuantity {
		return nil
	}

	ids := make([]uuid.UUID, len(g.chapters))
	for i, c := range g.chapters {
		ids[i] = c.ChapterID
	}
	bodies, err := s.repo.LoadChapterBodies(ctx, ids)
	if err != nil {
		return fmt.Errorf("load chapter bodies: %w", err)
	}
	bodyByChapter := make(map[uuid.UUID]domain.ChapterBody, len(bodies))
	for _, b := range bodies {
		bodyByChapter[b.ChapterID] = b
	}

	var concatenated strings.Builder
	for _, c := range g.chapters {
		loc, ok := bodyByChapter[c.ChapterID]
		if !ok {
			return fmt.Errorf("no stored body for chapter %s", c.ChapterID)
		}
		html, err := s.store.Fetch(ctx, objectstore.Location{Bucket: loc.Bucket, Key: loc.Key})
		if err != nil {
			return fmt.Errorf("fetch chapter body %s: %w", c.ChapterID, err)
		}
		concatenated.Write(html)
	}

	names := deliveryTitles(book.Name, g.chapters)

	mobi, err := s.converter.GenerateMobi(ctx, bodyInputExtension, concatenated.String(), names.coverTitle, book.Name, book.Author)
	if err != nil {
		return fmt.Errorf("convert delivery body: %w", err)
	}

	if err := s.dispatch(ctx, g.userID, method, book, names, mobi); err != nil {
		return err
	}

	last := g.chapters[len(g.chapters)-1]
	if err := s.repo.AdvanceSubscriptionWatermark(ctx, g.userID, g.bookID, last.ChapterID); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

// titles holds the composed strings used across both channels, so the
// "single vs. range" composition rule is applied exactly once per group.
type titles struct {
	chapterRange string // e.g. "Chapter 5" or "Chapter 5 through Chapter 8"
	coverTitle   string // "<book>: <chapter-range>", passed to the converter
	pushMessage  string
	emailSubject string
}

func deliveryTitles(bookName string, chapters []repository.PendingDelivery) titles {
	first := chapters[0]
	last := chapters[len(chapters)-1]

	if len(chapters) == 1 {
		return titles{
			chapterRange: first.ChapterName,
			coverTitle:   fmt.Sprintf("%s: %s", bookName, first.ChapterName),
			pushMessage:  fmt.Sprintf("A new chapter of %s by %s has been released: %s", bookName, first.ChapterAuthor, first.ChapterName),
			emailSubject: fmt.Sprintf("New Chapter of %s: %s", bookName, first.ChapterName),
		}
	}

	rangeTitle := fmt.Sprintf("%s through %s", first.ChapterName, last.ChapterName)
	return titles{
		chapterRange: rangeTitle,
		coverTitle:   fmt.Sprintf("%s: %s", bookName, rangeTitle),
		pushMessage:  fmt.Sprintf("%d new chapters of %s by %s has been released: %s", len(chapters), bookName, first.ChapterAuthor, rangeTitle),
		emailSubject: fmt.Sprintf("%d New Chapters of %s: %s", len(chapters), bookName, rangeTitle),
	}
}

// dispatch sends the delivery across every enabled, verified channel.
// Every enabled channel is attempted regardless of another channel's
// outcome; the first failure (if any) is returned so the caller can
// withhold the watermark advance for the whole group.
func (s *Scheduler) dispatch(ctx context.Context, userID string, method domain.DeliveryMethod, book domain.Book, names titles, mobi []byte) error {
	var firstErr error

	if key := method.PushDestination(); key != nil {
		if err := s.push.Send(ctx, *key, names.pushMessage); err != nil {
			firstErr = fmt.Errorf("push: %w", err)
		}
	}

	if to := method.KindleDestination(); to != nil {
		if err := s.email.SendMobi(ctx, *to, names.chapterRange, names.emailSubject, mobi); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("email: %w", err)
		}
	}

	return firstErr
}
