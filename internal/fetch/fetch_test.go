package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lismorewater/flowmon/internal/fetch"
	"go.uber.org/zap"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	var gotCacheControl string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCacheControl = r.Header.Get("Cache-Control")
		w.Write([]byte("<html><body><div id=\"depth\">150.2mm</div></body></html>"))
	}))
	defer srv.Close()

	f := fetch.NewHTTPFetcher(5 * time.Second)
	doc, err := f.Fetch(context.Background(), fetch.Request{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !strings.Contains(doc.HTML, "150.2mm") {
		t.Errorf("Expected body in document, got %q", doc.HTML)
	}

	if !strings.Contains(gotCacheControl, "no-cache") {
		t.Errorf("Expected cache-busting header, got %q", gotCacheControl)
	}
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := fetch.NewHTTPFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), fetch.Request{Endpoint: srv.URL})
	if err == nil {
		t.Fatal("Expected error for 502 response")
	}
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	f := fetch.NewHTTPFetcher(5 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, fetch.Request{Endpoint: srv.URL})
	if err == nil {
		t.Fatal("Expected error when context deadline expires")
	}
}

type scriptedFetcher struct {
	doc fetch.Document
	err error
}

func (s *scriptedFetcher) Fetch(ctx context.Context, req fetch.Request) (fetch.Document, error) {
	return s.doc, s.err
}

func TestClient_FallsBackToPlainHTTP(t *testing.T) {
	browser := &scriptedFetcher{err: errors.New("chromium unavailable")}
	plain := &scriptedFetcher{doc: fetch.Document{HTML: "<html></html>"}}

	c := fetch.NewClient(browser, plain, time.Second, true, zap.NewNop())
	doc, err := c.Fetch(context.Background(), fetch.Request{Endpoint: "http://example.invalid"})
	if err != nil {
		t.Fatalf("Expected fallback to succeed, got %v", err)
	}
	if doc.HTML != "<html></html>" {
		t.Errorf("Expected plain fetcher document, got %q", doc.HTML)
	}
}

func TestClient_BothStrategiesFail(t *testing.T) {
	browser := &scriptedFetcher{err: errors.New("chromium unavailable")}
	plain := &scriptedFetcher{err: errors.New("connection refused")}

	c := fetch.NewClient(browser, plain, time.Second, true, zap.NewNop())
	_, err := c.Fetch(context.Background(), fetch.Request{Endpoint: "http://example.invalid"})
	if err == nil {
		t.Fatal("Expected error when every strategy fails")
	}
}

func TestClient_StaticModeSkipsBrowser(t *testing.T) {
	browser := &scriptedFetcher{doc: fetch.Document{HTML: "from-browser"}}
	plain := &scriptedFetcher{doc: fetch.Document{HTML: "from-http"}}

	c := fetch.NewClient(browser, plain, time.Second, false, zap.NewNop())
	doc, err := c.Fetch(context.Background(), fetch.Request{Endpoint: "http://example.invalid"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if doc.HTML != "from-http" {
		t.Errorf("Expected plain fetcher to be used in static mode, got %q", doc.HTML)
	}
}
