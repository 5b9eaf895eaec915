package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChapterKindTag discriminates the ChapterKind tagged union.
type ChapterKindTag string

const (
	ChapterKindRoyalRoad              ChapterKindTag = "royal_road"
	ChapterKindPale                   ChapterKindTag = "pale"
	ChapterKindAPracticalGuideToEvil  ChapterKindTag = "a_practical_guide_to_evil"
	ChapterKindTheWanderingInn        ChapterKindTag = "the_wandering_inn"
	ChapterKindTheWanderingInnPatreon ChapterKindTag = "the_wandering_inn_patreon"
	ChapterKindTheDailyGrindPatreon   ChapterKindTag = "the_daily_grind_patreon"
)

// ChapterKind is the tagged variant carrying the identity a provider
// needs to re-fetch (or, for the daily-grind Patreon case, already
// holds) a chapter's body.
//
//   - RoyalRoad carries the numeric chapter id used to re-fetch the body.
//   - Pale / APracticalGuideToEvil / TheWanderingInn carry the chapter's
//     page URL.
//   - TheWanderingInnPatreon carries a URL and an optional password
//     extracted from the surrounding email.
//   - TheDailyGrindPatreon embeds the HTML body directly — it has no
//     re-fetch indirection.
type ChapterKind struct {
	Tag       ChapterKindTag
	ChapterID uint64  // RoyalRoad
	URL       string  // Pale, APracticalGuideToEvil, TheWanderingInn, TheWanderingInnPatreon
	Password  *string // TheWanderingInnPatreon only
	HTML      string  // TheDailyGrindPatreon
}

type chapterKindWire struct {
	Tag       ChapterKindTag `json:"tag"`
	ChapterID *uint64        `json:"chapter_id,omitempty"`
	URL       *string        `json:"url,omitempty"`
	Password  *string        `json:"password,omitempty"`
	HTML      *string        `json:"html,omitempty"`
}

func (k ChapterKind) MarshalJSON() ([]byte, error) {
	w := chapterKindWire{Tag: k.Tag}
	switch k.Tag {
	case ChapterKindRoyalRoad:
		id := k.ChapterID
		w.ChapterID = &id
	case ChapterKindPale, ChapterKindAPracticalGuideToEvil, ChapterKindTheWanderingInn:
		url := k.URL
		w.URL = &url
	case ChapterKindTheWanderingInnPatreon:
		url := k.URL
		w.URL = &url
		w.Password = k.Password
	case ChapterKindTheDailyGrindPatreon:
		html := k.HTML
		w.HTML = &html
	}
	return json.Marshal(w)
}

func (k *ChapterKind) UnmarshalJSON(data []byte) error {
	var w chapterKindWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	k.Tag = w.Tag
	if w.ChapterID != nil {
		k.ChapterID = *w.ChapterID
	}
	if w.URL != nil {
		k.URL = *w.URL
	}
	k.Password = w.Password
	if w.HTML != nil {
		k.HTML = *w.HTML
	}
	return nil
}

// Equal reports whether two ChapterKind values identify the same
// chapter. Within a book, no two chapter rows may share an equal
// ChapterKind — this is the diff key the ingestion pipeline uses to
// decide which provider-listed chapters are genuinely new.
func (k ChapterKind) Equal(other ChapterKind) bool {
	if k.Tag != other.Tag {
		return false
	}
	switch k.Tag {
	case ChapterKindRoyalRoad:
		return k.ChapterID == other.ChapterID
	case ChapterKindPale, ChapterKindAPracticalGuideToEvil, ChapterKindTheWanderingInn:
		return k.URL == other.URL
	case ChapterKindTheWanderingInnPatreon:
		if k.URL != other.URL {
			return false
		}
		switch {
		case k.Password == nil && other.Password == nil:
			return true
		case k.Password == nil || other.Password == nil:
			return false
		default:
			return *k.Password == *other.Password
		}
	case ChapterKindTheDailyGrindPatreon:
		return k.HTML == other.HTML
	default:
		return false
	}
}

// Chapter is a single published unit of a Book, identified within the
// Book by its ChapterKind.
type Chapter struct {
	ID          uuid.UUID
	Name        string
	Author      string
	BookID      uuid.UUID
	PublishedAt time.Time
	Metadata    ChapterKind
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewChapter is a Chapter without a database identity, as produced by a
// provider's chapter listing (called a ProspectiveChapter in the
// provider contract).
type NewChapter struct {
	Name        string
	Author      string
	BookID      uuid.UUID
	PublishedAt time.Time
	Metadata    ChapterKind
}

// ChapterBody is the stored artifact associated with a Chapter, addressed
// by (bucket, key) in the object store. It is inserted in the same
// logical step as its Chapter, never mutated, and deleted only if its
// Chapter is deleted.
type ChapterBody struct {
	ChapterID uuid.UUID
	Bucket    string
	Key       string
}

// NewChapterBody is a ChapterBody paired with the Chapter it belongs to,
// for bulk insertion once the Chapter row exists.
type NewChapterBody struct {
	ChapterID uuid.UUID
	Bucket    string
	Key       string
}
