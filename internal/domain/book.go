// Package domain holds the core entities shared by every component of the
// ingestion and delivery pipelines: books, chapters, chapter bodies,
// subscriptions, and delivery methods.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookKindTag discriminates the BookKind tagged union. It is also the
// discriminator persisted in the metadata JSONB column.
type BookKindTag string

const (
	BookKindRoyalRoad              BookKindTag = "royal_road"
	BookKindPale                   BookKindTag = "pale"
	BookKindAPracticalGuideToEvil  BookKindTag = "a_practical_guide_to_evil"
	BookKindTheWanderingInn        BookKindTag = "the_wandering_inn"
	BookKindTheWanderingInnPatreon BookKindTag = "the_wandering_inn_patreon"
	BookKindTheDailyGrindPatreon   BookKindTag = "the_daily_grind_patreon"
)

// BookKind is the tagged variant identifying which provider a Book
// belongs to. Only RoyalRoad carries a payload (its numeric fiction id);
// the others are singleton kinds. BookKind serializes to a stable JSON
// shape because it is used as an equality key in repository queries —
// exactly one book row exists per logical source.
type BookKind struct {
	Tag         BookKindTag
	RoyalRoadID uint64 // set iff Tag == BookKindRoyalRoad
}

type bookKindWire struct {
	Tag         BookKindTag `json:"tag"`
	RoyalRoadID *uint64     `json:"royal_road_id,omitempty"`
}

func (k BookKind) MarshalJSON() ([]byte, error) {
	w := bookKindWire{Tag: k.Tag}
	if k.Tag == BookKindRoyalRoad {
		id := k.RoyalRoadID
		w.RoyalRoadID = &id
	}
	return json.Marshal(w)
}

func (k *BookKind) UnmarshalJSON(data []byte) error {
	var w bookKindWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	k.Tag = w.Tag
	if w.Tag == BookKindRoyalRoad {
		if w.RoyalRoadID == nil {
			return fmt.Errorf("domain: royal_road book kind missing royal_road_id")
		}
		k.RoyalRoadID = *w.RoyalRoadID
	}
	return nil
}

// Equal reports whether two BookKind values identify the same logical
// source, matching the equality semantics used by repository uniqueness
// checks.
func (k BookKind) Equal(other BookKind) bool {
	return k.Tag == other.Tag && k.RoyalRoadID == other.RoyalRoadID
}

func (k BookKind) String() string {
	if k.Tag == BookKindRoyalRoad {
		return fmt.Sprintf("%s(%d)", k.Tag, k.RoyalRoadID)
	}
	return string(k.Tag)
}

// Book is a logical serial identified by a provider-specific BookKind.
type Book struct {
	ID        uuid.UUID
	Name      string
	Author    string
	Metadata  BookKind
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBook is a Book without a database identity, as produced by a
// provider when a subscriber first points the system at a new source.
type NewBook struct {
	Name     string
	Author   string
	Metadata BookKind
}
