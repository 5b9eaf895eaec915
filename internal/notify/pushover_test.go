package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPushClient_Send_PostsExpectedJSON(t *testing.T) {
	var got pushoverRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewPushClient("app-token")
	client.url = server.URL

	if err := client.Send(t.Context(), "user-key", "A new chapter is out"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.Token != "app-token" || got.User != "user-key" || got.Message != "A new chapter is out" {
		t.Errorf("request = %+v", got)
	}
}

func TestPushClient_Send_NonTwoXXIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewPushClient("app-token")
	client.url = server.URL

	if err := client.Send(t.Context(), "user-key", "msg"); err == nil {
		t.Fatal("expected error on 500 response")
	}
}
