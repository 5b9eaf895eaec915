package domain

import (
	"encoding/json"
	"testing"
)

func TestBookKind_JSONRoundTrip(t *testing.T) {
	kinds := []BookKind{
		{Tag: BookKindRoyalRoad, RoyalRoadID: 21220},
		{Tag: BookKindPale},
		{Tag: BookKindAPracticalGuideToEvil},
		{Tag: BookKindTheWanderingInn},
		{Tag: BookKindTheWanderingInnPatreon},
		{Tag: BookKindTheDailyGrindPatreon},
	}

	for _, k := range kinds {
		data, err := json.Marshal(k)
		if err != nil {
			t.Fatalf("marshal %s: %v", k, err)
		}
		var back BookKind
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if !k.Equal(back) {
			t.Errorf("round trip of %s produced %s", k, back)
		}
	}
}

func TestBookKind_UnmarshalRejectsRoyalRoadWithoutID(t *testing.T) {
	var k BookKind
	if err := json.Unmarshal([]byte(`{"tag":"royal_road"}`), &k); err == nil {
		t.Fatal("expected error for royal_road kind missing royal_road_id")
	}
}

func TestBookKind_WireShapeIsStable(t *testing.T) {
	data, err := json.Marshal(BookKind{Tag: BookKindRoyalRoad, RoyalRoadID: 7})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"tag":"royal_road","royal_road_id":7}`
	if string(data) != want {
		t.Errorf("wire shape = %s, want %s", data, want)
	}

	data, err = json.Marshal(BookKind{Tag: BookKindPale})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want = `{"tag":"pale"}`
	if string(data) != want {
		t.Errorf("wire shape = %s, want %s", data, want)
	}
}

func TestChapterKind_JSONRoundTrip(t *testing.T) {
	password := "innkeeper"
	kinds := []ChapterKind{
		{Tag: ChapterKindRoyalRoad, ChapterID: 12345},
		{Tag: ChapterKindPale, URL: "https://palewebserial.wordpress.com/2023/01/01/chapter"},
		{Tag: ChapterKindAPracticalGuideToEvil, URL: "https://practicalguidetoevil.wordpress.com/x"},
		{Tag: ChapterKindTheWanderingInn, URL: "https://wanderinginn.com/2023/01/01/9-1"},
		{Tag: ChapterKindTheWanderingInnPatreon, URL: "https://wanderinginn.com/2023/01/01/9-1", Password: &password},
		{Tag: ChapterKindTheWanderingInnPatreon, URL: "https://wanderinginn.com/2023/01/02/9-2"},
		{Tag: ChapterKindTheDailyGrindPatreon, HTML: "<p>delivered body</p>"},
	}

	for _, k := range kinds {
		data, err := json.Marshal(k)
		if err != nil {
			t.Fatalf("marshal %s: %v", k.Tag, err)
		}
		var back ChapterKind
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if !k.Equal(back) {
			t.Errorf("round trip of %s changed the value: %s", k.Tag, data)
		}
	}
}

func TestChapterKind_Equal(t *testing.T) {
	pw1, pw2 := "alpha", "beta"
	cases := []struct {
		name string
		a, b ChapterKind
		want bool
	}{
		{"same royalroad id", ChapterKind{Tag: ChapterKindRoyalRoad, ChapterID: 1}, ChapterKind{Tag: ChapterKindRoyalRoad, ChapterID: 1}, true},
		{"different royalroad id", ChapterKind{Tag: ChapterKindRoyalRoad, ChapterID: 1}, ChapterKind{Tag: ChapterKindRoyalRoad, ChapterID: 2}, false},
		{"different tags", ChapterKind{Tag: ChapterKindPale, URL: "u"}, ChapterKind{Tag: ChapterKindTheWanderingInn, URL: "u"}, false},
		{"same url", ChapterKind{Tag: ChapterKindPale, URL: "u"}, ChapterKind{Tag: ChapterKindPale, URL: "u"}, true},
		{"same url and password", ChapterKind{Tag: ChapterKindTheWanderingInnPatreon, URL: "u", Password: &pw1}, ChapterKind{Tag: ChapterKindTheWanderingInnPatreon, URL: "u", Password: &pw1}, true},
		{"different password", ChapterKind{Tag: ChapterKindTheWanderingInnPatreon, URL: "u", Password: &pw1}, ChapterKind{Tag: ChapterKindTheWanderingInnPatreon, URL: "u", Password: &pw2}, false},
		{"nil vs set password", ChapterKind{Tag: ChapterKindTheWanderingInnPatreon, URL: "u"}, ChapterKind{Tag: ChapterKindTheWanderingInnPatreon, URL: "u", Password: &pw1}, false},
		{"same embedded html", ChapterKind{Tag: ChapterKindTheDailyGrindPatreon, HTML: "<p>x</p>"}, ChapterKind{Tag: ChapterKindTheDailyGrindPatreon, HTML: "<p>x</p>"}, true},
	}

	for _, tc := range cases {
		if got := tc.a.Equal(tc.b); got != tc.want {
			t.Errorf("%s: Equal = %v, want %v", tc.name, got, tc.want)
		}
	}
}
