package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cerealworks/cereal/internal/domain"
)

// Querier is the set of typed queries the ingestion pipeline and
// delivery scheduler read and write through. Both *Repository and the
// in-memory fake implement it.
type Querier interface {
	ListSubscribedBooks(ctx context.Context) ([]domain.Book, error)
	ChaptersSince(ctx context.Context, bookID uuid.UUID, since time.Time) ([]domain.Chapter, error)
	InsertChapters(ctx context.Context, chapters []domain.NewChapter) ([]domain.Chapter, error)
	InsertChapterBodies(ctx context.Context, bodies []domain.NewChapterBody) error
	ListPendingDeliveries(ctx context.Context) ([]PendingDelivery, error)
	LoadDeliveryMethods(ctx context.Context, userIDs []string) (map[string]domain.DeliveryMethod, error)
	LoadBooks(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]domain.Book, error)
	LoadChapterBodies(ctx context.Context, chapterIDs []uuid.UUID) ([]domain.ChapterBody, error)
	AdvanceSubscriptionWatermark(ctx context.Context, userID string, bookID uuid.UUID, newLastChapterID uuid.UUID) error
}

// PendingDelivery is one row of ListPendingDeliveries: a chapter owed
// to a subscription because it was published after the subscription's
// watermark.
type PendingDelivery struct {
	UserID           string
	BookID           uuid.UUID
	GroupingQuantity int64
	ChapterID        uuid.UUID
	ChapterName      string
	ChapterAuthor    string
	PublishedAt      time.Time
}

var _ Querier = (*Repository)(nil)

// ListSubscribedBooks returns every book with at least one subscription.
func (r *Repository) ListSubscribedBooks(ctx context.Context) ([]domain.Book, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT b.id, b.name, b.author, b.metadata, b.created_at, b.updated_at
		FROM books b
		JOIN subscriptions s ON s.book_id = b.id`)
	if err != nil {
		return nil, fmt.Errorf("repository: list subscribed books: %w", err)
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		var b domain.Book
		if err := rows.Scan(&b.ID, &b.Name, &b.Author, &b.Metadata, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// ChaptersSince returns chapters of bookID published at or after since,
// ordered by published_at descending.
func (r *Repository) ChaptersSince(ctx context.Context, bookID uuid.UUID, since time.Time) ([]domain.Chapter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, book_id, name, author, published_at, metadata, created_at, updated_at
		FROM chapters
		WHERE book_id = $1 AND published_at >= $2
		ORDER BY published_at DESC`, bookID, since)
	if err != nil {
		return nil, fmt.Errorf("repository: chapters since %s for book %s: %w", since, bookID, err)
	}
	defer rows.Close()

	var chapters []domain.Chapter
	for rows.Next() {
		var c domain.Chapter
		if err := rows.Scan(&c.ID, &c.BookID, &c.Name, &c.Author, &c.PublishedAt, &c.Metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: scan chapter: %w", err)
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

// InsertChapters bulk-inserts chapters and returns the inserted rows
// with their assigned ids.
func (r *Repository) InsertChapters(ctx context.Context, chapters []domain.NewChapter) ([]domain.Chapter, error) {
	if len(chapters) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, c := range chapters {
		batch.Queue(`
			INSERT INTO chapters (book_id, name, author, published_at, metadata)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, book_id, name, author, published_at, metadata, created_at, updated_at`,
			c.BookID, c.Name, c.Author, c.PublishedAt, c.Metadata)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := make([]domain.Chapter, 0, len(chapters))
	for range chapters {
		var c domain.Chapter
		if err := results.QueryRow().Scan(&c.ID, &c.BookID, &c.Name, &c.Author, &c.PublishedAt, &c.Metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: insert chapter: %w", err)
		}
		inserted = append(inserted, c)
	}
	return inserted, nil
}

// InsertChapterBodies bulk-inserts chapter body locations. Callers MUST
// insert the referenced Chapter rows first.
func (r *Repository) InsertChapterBodies(ctx context.Context, bodies []domain.NewChapterBody) error {
	if len(bodies) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bodies {
		batch.Queue(`INSERT INTO chapter_bodies (chapter_id, bucket, key) VALUES ($1, $2, $3)`,
			b.ChapterID, b.Bucket, b.Key)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range bodies {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("repository: insert chapter body: %w", err)
		}
	}
	return nil
}

// ListPendingDeliveries joins every subscription to the chapters of its
// book published after the subscription's watermark (the chapter
// referenced by last_chapter_id, or the epoch if never delivered).
func (r *Repository) ListPendingDeliveries(ctx context.Context) ([]PendingDelivery, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.user_id, s.book_id, s.grouping_quantity, c.id, c.name, c.author, c.published_at
		FROM subscriptions s
		JOIN chapters c ON c.book_id = s.book_id
		LEFT JOIN chapters lc ON lc.id = s.last_chapter_id
		WHERE c.published_at > COALESCE(lc.published_at, 'epoch'::timestamptz)
		ORDER BY s.user_id, s.book_id, c.published_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("repository: list pending deliveries: %w", err)
	}
	defer rows.Close()

	var pending []PendingDelivery
	for rows.Next() {
		var p PendingDelivery
		if err := rows.Scan(&p.UserID, &p.BookID, &p.GroupingQuantity, &p.ChapterID, &p.ChapterName, &p.ChapterAuthor, &p.PublishedAt); err != nil {
			return nil, fmt.Errorf("repository: scan pending delivery: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// LoadDeliveryMethods loads the delivery methods for userIDs, keyed by
// user id. Users with no delivery_methods row are omitted.
func (r *Repository) LoadDeliveryMethods(ctx context.Context, userIDs []string) (map[string]domain.DeliveryMethod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, kindle_email, kindle_email_verified, kindle_email_enabled,
		       kindle_email_verification_code, kindle_email_verification_code_time,
		       pushover_key, pushover_key_verified, pushover_enabled,
		       pushover_verification_code, pushover_verification_code_time,
		       created_at, updated_at
		FROM delivery_methods
		WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: load delivery methods: %w", err)
	}
	defer rows.Close()

	methods := make(map[string]domain.DeliveryMethod, len(userIDs))
	for rows.Next() {
		var d domain.DeliveryMethod
		if err := rows.Scan(&d.UserID, &d.KindleEmail, &d.KindleEmailVerified, &d.KindleEmailEnabled,
			&d.KindleEmailVerificationCode, &d.KindleEmailVerificationCodeTime,
			&d.PushoverKey, &d.PushoverKeyVerified, &d.PushoverEnabled,
			&d.PushoverVerificationCode, &d.PushoverVerificationCodeTime,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: scan delivery method: %w", err)
		}
		methods[d.UserID] = d
	}
	return methods, rows.Err()
}

// LoadBooks loads books by id, keyed by id.
func (r *Repository) LoadBooks(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]domain.Book, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, author, metadata, created_at, updated_at
		FROM books
		WHERE id = ANY($1)`, bookIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: load books: %w", err)
	}
	defer rows.Close()

	books := make(map[uuid.UUID]domain.Book, len(bookIDs))
	for rows.Next() {
		var b domain.Book
		if err := rows.Scan(&b.ID, &b.Name, &b.Author, &b.Metadata, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: scan book: %w", err)
		}
		books[b.ID] = b
	}
	return books, rows.Err()
}

// LoadChapterBodies loads chapter bodies by chapter id, ordered by
// chapter id.
func (r *Repository) LoadChapterBodies(ctx context.Context, chapterIDs []uuid.UUID) ([]domain.ChapterBody, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT chapter_id, bucket, key
		FROM chapter_bodies
		WHERE chapter_id = ANY($1)
		ORDER BY chapter_id`, chapterIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: load chapter bodies: %w", err)
	}
	defer rows.Close()

	var bodies []domain.ChapterBody
	for rows.Next() {
		var b domain.ChapterBody
		if err := rows.Scan(&b.ChapterID, &b.Bucket, &b.Key); err != nil {
			return nil, fmt.Errorf("repository: scan chapter body: %w", err)
		}
		bodies = append(bodies, b)
	}
	return bodies, rows.Err()
}

// AdvanceSubscriptionWatermark sets the subscription's last_chapter_id,
// marking every chapter up to and including newLastChapterID delivered.
func (r *Repository) AdvanceSubscriptionWatermark(ctx context.Context, userID string, bookID uuid.UUID, newLastChapterID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET last_chapter_id = $3
		WHERE user_id = $1 AND book_id = $2`, userID, bookID, newLastChapterID)
	if err != nil {
		return fmt.Errorf("repository: advance watermark for %s/%s: %w", userID, bookID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository: no subscription %s/%s to advance", userID, bookID)
	}
	return nil
}
