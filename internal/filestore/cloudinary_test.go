package filestore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCloudinaryUpload(t *testing.T) {
	t.Parallel()

	var gotPath, gotSig, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotSig = r.FormValue("signature")
		f, _, err := r.FormFile("file")
		if err == nil {
			b, _ := io.ReadAll(f)
			gotFile = string(b)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"public_id":"campus/notes","secure_url":"https://cdn.example.com/notes.pdf","bytes":5,"format":"pdf"}`)
	}))
	defer srv.Close()

	c := NewCloudinary("demo", "key", "secret", "campus")
	c.BaseURL = srv.URL
	c.Now = func() time.Time { return time.Unix(1700000000, 0) }

	got, err := c.Upload(context.Background(), "notes.pdf", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotPath != "/demo/auto/upload" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotFile != "hello" {
		t.Fatalf("file = %q", gotFile)
	}
	if want := c.sign(map[string]string{"timestamp": "1700000000", "folder": "campus"}); gotSig != want {
		t.Fatalf("signature = %q, want %q", gotSig, want)
	}
	if got.URL != "https://cdn.example.com/notes.pdf" || got.Bytes != 5 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestCloudinaryUploadFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad signature", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewCloudinary("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	if _, err := c.Upload(context.Background(), "a.txt", strings.NewReader("x")); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected upload failure, got %v", err)
	}
}

func TestDisabled(t *testing.T) {
	t.Parallel()
	if _, err := (Disabled{}).Upload(context.Background(), "a", strings.NewReader("")); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("got %v", err)
	}
}
