package provider

import (
	"errors"
	"testing"

	"github.com/cerealworks/cereal/internal/domain"
)

func TestRegistry_For_ResolvesEveryKnownKind(t *testing.T) {
	r := NewRegistry(nil, "")
	kinds := []domain.BookKindTag{
		domain.BookKindRoyalRoad,
		domain.BookKindPale,
		domain.BookKindAPracticalGuideToEvil,
		domain.BookKindTheWanderingInn,
		domain.BookKindTheWanderingInnPatreon,
		domain.BookKindTheDailyGrindPatreon,
	}
	for _, tag := range kinds {
		p, err := r.For(domain.BookKind{Tag: tag})
		if err != nil {
			t.Errorf("For(%s): unexpected error: %v", tag, err)
		}
		if p == nil {
			t.Errorf("For(%s): returned nil provider", tag)
		}
	}
}

func TestRegistry_For_UnknownKindIsTypedError(t *testing.T) {
	r := NewRegistry(nil, "")
	_, err := r.For(domain.BookKind{Tag: "not_a_real_kind"})
	var unknown ErrUnknownBookKind
	if !errors.As(err, &unknown) {
		t.Fatalf("For(unknown kind): got %v, want ErrUnknownBookKind", err)
	}
}

func TestStripRoyalRoadTitlePrefix(t *testing.T) {
	cases := []struct {
		item, channel, want string
	}{
		{"My Serial - Chapter One", "My Serial", "Chapter One"},
		{"Chapter One", "My Serial", "Chapter One"},
		{"Some Other Book - Chapter One", "My Serial", "Some Other Book - Chapter One"},
	}
	for _, tc := range cases {
		if got := stripRoyalRoadTitlePrefix(tc.item, tc.channel); got != tc.want {
			t.Errorf("stripRoyalRoadTitlePrefix(%q, %q) = %q, want %q", tc.item, tc.channel, got, tc.want)
		}
	}
}

func TestRoyalRoadChapterIDFromLink(t *testing.T) {
	id, err := royalRoadChapterIDFromLink("https://www.royalroad.com/fiction/chapter/12345/some-title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 12345 {
		t.Errorf("chapter id = %d, want 12345", id)
	}

	if _, err := royalRoadChapterIDFromLink("https://www.royalroad.com/fiction/chapter/not-a-number"); err == nil {
		t.Error("expected error for non-numeric chapter id")
	}
}

func TestTryParseURL_Hostnames(t *testing.T) {
	r := NewRegistry(nil, "")

	cases := []struct {
		kind    domain.BookKindTag
		url     string
		wantErr bool
	}{
		{domain.BookKindRoyalRoad, "https://www.royalroad.com/fiction/12345/a", false},
		{domain.BookKindRoyalRoad, "https://royalroad.com/fiction/12345/a", false},
		{domain.BookKindRoyalRoad, "https://evil.example.com/fiction/12345/a", true},
		{domain.BookKindPale, "https://palewebserial.wordpress.com/2023/chapter", false},
		{domain.BookKindPale, "https://notpale.example.com/2023/chapter", true},
		{domain.BookKindAPracticalGuideToEvil, "https://practicalguidetoevil.wordpress.com/x", false},
		{domain.BookKindTheWanderingInn, "https://wanderinginn.com/x", false},
		{domain.BookKindTheWanderingInnPatreon, "patreon://wanderinginn.com/chapter-1", false},
		{domain.BookKindTheWanderingInnPatreon, "https://wanderinginn.com/chapter-1", true},
		{domain.BookKindTheDailyGrindPatreon, "patreon://thedailygrind.com/chapter-1", false},
		{domain.BookKindTheDailyGrindPatreon, "patreon://wrong.example.com/chapter-1", true},
	}

	for _, tc := range cases {
		p, err := r.For(domain.BookKind{Tag: tc.kind})
		if err != nil {
			t.Fatalf("For(%s): %v", tc.kind, err)
		}
		err = p.TryParseURL(tc.url)
		if tc.wantErr && err == nil {
			t.Errorf("%s TryParseURL(%q): expected error, got nil", tc.kind, tc.url)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s TryParseURL(%q): unexpected error: %v", tc.kind, tc.url, err)
		}
	}
}

func TestChapterTitleFromSubject(t *testing.T) {
	title, ok := chapterTitleFromSubject(`New post: "Chapter 42" is up!`)
	if !ok || title != "Chapter 42" {
		t.Errorf("chapterTitleFromSubject: got (%q, %v), want (\"Chapter 42\", true)", title, ok)
	}

	if _, ok := chapterTitleFromSubject("no quotes here"); ok {
		t.Error("expected ok=false when subject has no quoted segment")
	}
}

func TestLastPathSegment(t *testing.T) {
	cases := []struct{ href, want string }{
		{"https://wanderinginn.com/2023/01/01/chapter-9-1/", "chapter-9-1"},
		{"https://wanderinginn.com/2023/01/01/chapter-9-1", "chapter-9-1"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := lastPathSegment(tc.href); got != tc.want {
			t.Errorf("lastPathSegment(%q) = %q, want %q", tc.href, got, tc.want)
		}
	}
}
