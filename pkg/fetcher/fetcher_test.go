package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/caching"
)

func TestFetcher_Document(t *testing.T) {
	var gotAccept, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`<html><head><title>Hello</title></head><body><p>x</p></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(Options{UserAgent: "test-agent"})
	doc, err := f.Document(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if title := doc.Doc.Find("title").Text(); title != "Hello" {
		t.Errorf("title = %q, want %q", title, "Hello")
	}
	if doc.URL != srv.URL+"/page" {
		t.Errorf("URL = %q, want %q", doc.URL, srv.URL+"/page")
	}
	if gotAccept != acceptHeader {
		t.Errorf("Accept = %q, want %q", gotAccept, acceptHeader)
	}
	if gotUA != "test-agent" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "test-agent")
	}
}

func TestFetcher_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(Options{})
	_, err := f.Document(context.Background(), srv.URL)
	if !errors.Is(err, models.ErrFetch) {
		t.Fatalf("Document() error = %v, want ErrFetch", err)
	}
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != http.StatusNotFound {
		t.Errorf("Document() error = %#v, want FetchError with status 404", err)
	}
}

func TestFetcher_InvalidURLBeforeIO(t *testing.T) {
	var hits atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		hits.Add(1)
		return nil, errors.New("should not be called")
	})}

	f := NewFetcher(Options{Client: client})
	for _, u := range []string{"", "not a url", "ftp://example.com/x"} {
		_, err := f.Document(context.Background(), u)
		if !errors.Is(err, models.ErrInvalidURL) {
			t.Errorf("Document(%q) error = %v, want ErrInvalidURL", u, err)
		}
	}
	if hits.Load() != 0 {
		t.Errorf("transport called %d times, want 0", hits.Load())
	}
}

func TestFetcher_NetworkFailure(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}

	f := NewFetcher(Options{Client: client})
	_, err := f.Document(context.Background(), "https://example.com/")
	if !errors.Is(err, models.ErrFetch) {
		t.Fatalf("Document() error = %v, want ErrFetch", err)
	}
}

func TestFetcher_UsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`<title>cached</title>`))
	}))
	defer srv.Close()

	cache, err := caching.NewCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	f := NewFetcher(Options{Cache: cache})

	for i := 0; i < 3; i++ {
		doc, err := f.Document(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Document() error = %v", err)
		}
		if got := doc.Doc.Find("title").Text(); got != "cached" {
			t.Errorf("title = %q, want %q", got, "cached")
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
