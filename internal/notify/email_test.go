package notify

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEmailClient_Send_PostsExpectedForm(t *testing.T) {
	var gotAuthUser, gotAuthPass string
	var fields = map[string]string{}
	var attachmentName, attachmentType, attachmentBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			t.Fatal("expected basic auth")
		}
		gotAuthUser, gotAuthPass = user, pass

		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Fatalf("parse content-type: %v", err)
		}
		reader := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("next part: %v", err)
			}
			if part.FileName() != "" {
				attachmentName = part.FileName()
				attachmentType = part.Header.Get("Content-Type")
				body, _ := io.ReadAll(part)
				attachmentBody = string(body)
				continue
			}
			body, _ := io.ReadAll(part)
			fields[part.FormName()] = string(body)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewEmailClient("secret-key", server.URL, "sender@cereal.example")
	err := client.SendMobi(t.Context(), "reader@kindle.example", "My Book", "New chapter", []byte("mobi-bytes"))
	if err != nil {
		t.Fatalf("SendMobi: %v", err)
	}

	if gotAuthUser != "api" || gotAuthPass != "secret-key" {
		t.Errorf("basic auth = %q/%q, want api/secret-key", gotAuthUser, gotAuthPass)
	}
	if fields["to"] != "reader@kindle.example" {
		t.Errorf("to = %q", fields["to"])
	}
	if fields["from"] != "sender@cereal.example" {
		t.Errorf("from = %q", fields["from"])
	}
	if fields["subject"] != "New chapter" {
		t.Errorf("subject = %q", fields["subject"])
	}
	if fields["text"] != "New chapter" || fields["html"] != "New chapter" {
		t.Errorf("text/html did not default to subject: text=%q html=%q", fields["text"], fields["html"])
	}
	if attachmentName != "My Book.mobi" {
		t.Errorf("attachment filename = %q", attachmentName)
	}
	if attachmentType != "application/x-mobipocket-ebook" {
		t.Errorf("attachment content-type = %q", attachmentType)
	}
	if attachmentBody != "mobi-bytes" {
		t.Errorf("attachment body = %q", attachmentBody)
	}
}

func TestEmailClient_Send_NonTwoXXIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer server.Close()

	client := NewEmailClient("key", server.URL, "sender@cereal.example")
	err := client.Send(t.Context(), Message{To: "reader@kindle.example", Subject: "hi"})
	if err == nil {
		t.Fatal("expected error on non-2xx response")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want it to mention 400", err)
	}
}
