package publisher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"capitolbrief/config"
)

func testClient(baseURL string) *Client {
	return NewClient(&config.Config{
		PublishBaseURL: baseURL,
		PublishToken:   "token",
		PublishTimeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestPostSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/posts" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing bearer token")
		}
		_, _ = w.Write([]byte(`{"post_url": "https://social.example/@capitolbrief/123"}`))
	}))
	defer server.Close()

	postURL, err := testClient(server.URL).Post(context.Background(), "HB 1234 passed.")
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if postURL != "https://social.example/@capitolbrief/123" {
		t.Fatalf("unexpected post url: %s", postURL)
	}
}

func TestPostDuplicateContent(t *testing.T) {
	t.Parallel()

	byCode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error": "already posted", "code": "duplicate_content"}`))
	}))
	defer byCode.Close()

	_, err := testClient(byCode.URL).Post(context.Background(), "x")
	if !errors.Is(err, ErrDuplicateContent) {
		t.Fatalf("expected ErrDuplicateContent, got %v", err)
	}

	byMessage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error": "Duplicate status detected"}`))
	}))
	defer byMessage.Close()

	_, err = testClient(byMessage.URL).Post(context.Background(), "x")
	if !errors.Is(err, ErrDuplicateContent) {
		t.Fatalf("expected ErrDuplicateContent from message match, got %v", err)
	}
}

func TestPostOtherPlatformError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "internal"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Post(context.Background(), "x")
	if err == nil || errors.Is(err, ErrDuplicateContent) {
		t.Fatalf("expected a non-duplicate error, got %v", err)
	}
}

func TestPostMissingURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Post(context.Background(), "x"); err == nil {
		t.Fatal("expected error when platform omits post url")
	}
}
