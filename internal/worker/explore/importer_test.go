package explore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/revculture/internal/metrics"
	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/security"
)

// --- モック ---

// mockFetchGuard はhttptestサーバーへの接続を許可するFetchGuard。
type mockFetchGuard struct {
	validateFn func(rawURL string) error
	maxSize    int64
}

func (m *mockFetchGuard) ValidateURL(rawURL string) error {
	if m.validateFn == nil {
		return nil
	}
	return m.validateFn(rawURL)
}

func (m *mockFetchGuard) Client() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func (m *mockFetchGuard) ReadLimited(r io.Reader) ([]byte, error) {
	return security.NewFetchGuard(time.Second, m.maxSize).ReadLimited(r)
}

type recordingSink struct {
	mu    sync.Mutex
	items []model.ExploreItem
	calls int
}

func (s *recordingSink) SetImported(items []model.ExploreItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.calls++
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func newTestImporter(t *testing.T, urls []string, sink ItemSink) (*Importer, *time.Time) {
	t.Helper()
	var buf bytes.Buffer
	imp := NewImporter(urls, &mockFetchGuard{maxSize: 1 << 20}, security.NewTextSanitizer(), sink,
		metrics.Nop{}, newTestLogger(&buf), 30*time.Minute)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	imp.now = func() time.Time { return clock }
	return imp, &clock
}

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Motor &amp; Track News</title>
    <link>https://news.example.com/</link>
    <item>
      <title>GR Yaris &lt;b&gt;review&lt;/b&gt;</title>
      <link>https://news.example.com/gr-yaris</link>
      <pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
      <enclosure url="https://cdn.example.com/yaris.jpg" type="image/jpeg" length="1000"/>
    </item>
    <item>
      <title>Drift season opener</title>
      <link>https://news.example.com/drift</link>
      <pubDate>Sun, 01 Mar 2026 10:00:00 GMT</pubDate>
      <description><![CDATA[<p>Photos</p><img src="/img/drift.png" alt="">]]></description>
    </item>
    <item>
      <title>No image here</title>
      <link>https://news.example.com/text-only</link>
      <description>plain text</description>
    </item>
  </channel>
</rss>`

func serveFeed(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
}

func TestRunOnce_ImportsArticles(t *testing.T) {
	srv := serveFeed(rssFeed)
	defer srv.Close()

	sink := &recordingSink{}
	imp, _ := newTestImporter(t, []string{srv.URL}, sink)

	if err := imp.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if len(sink.items) != 2 {
		t.Fatalf("items = %d, want 2 (item without image skipped)", len(sink.items))
	}
	first := sink.items[0]
	if first.Title != "GR Yaris review" {
		t.Errorf("Title = %q, want tags stripped", first.Title)
	}
	if first.Type != model.ExploreItemArticle {
		t.Errorf("Type = %q, want article", first.Type)
	}
	if first.Image != "https://cdn.example.com/yaris.jpg" {
		t.Errorf("Image = %q", first.Image)
	}
	if first.Subtitle != "Motor & Track News" {
		t.Errorf("Subtitle = %q", first.Subtitle)
	}
	if first.Stats != "Mar 2, 2026" {
		t.Errorf("Stats = %q", first.Stats)
	}
	if !strings.HasPrefix(first.ID, "article-") {
		t.Errorf("ID = %q", first.ID)
	}

	second := sink.items[1]
	if second.Image != "https://news.example.com/img/drift.png" {
		t.Errorf("relative <img> should resolve against item link, got %q", second.Image)
	}
}

func TestRunOnce_StableIDs(t *testing.T) {
	srv := serveFeed(rssFeed)
	defer srv.Close()

	sink := &recordingSink{}
	imp, _ := newTestImporter(t, []string{srv.URL}, sink)

	_ = imp.RunOnce(context.Background())
	firstID := sink.items[0].ID
	_ = imp.RunOnce(context.Background())
	if sink.items[0].ID != firstID {
		t.Errorf("ID changed across imports: %q -> %q", firstID, sink.items[0].ID)
	}
}

// 取得に失敗しても前回の記事を保持する
func TestRunOnce_FailureKeepsPreviousImport(t *testing.T) {
	fail := false
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, rssFeed)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	imp, clock := newTestImporter(t, []string{srv.URL}, sink)

	if err := imp.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce returned error: %v", err)
	}

	mu.Lock()
	fail = true
	mu.Unlock()

	if err := imp.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when every feed fails")
	}
	if len(sink.items) != 2 {
		t.Errorf("items = %d, want previous 2 kept", len(sink.items))
	}

	state := imp.states[srv.URL]
	if state.consecutiveErrors != 1 {
		t.Errorf("consecutiveErrors = %d, want 1", state.consecutiveErrors)
	}
	if want := clock.Add(30 * time.Minute); !state.nextAttempt.Equal(want) {
		t.Errorf("nextAttempt = %v, want %v", state.nextAttempt, want)
	}
}

func TestRunOnce_NotFoundStopsFeed(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	imp, _ := newTestImporter(t, []string{srv.URL}, &recordingSink{})

	_ = imp.RunOnce(context.Background())
	_ = imp.RunOnce(context.Background())

	if requests != 1 {
		t.Errorf("requests = %d, want 1 (stopped after 404)", requests)
	}
	if !imp.states[srv.URL].stopped {
		t.Error("feed should be stopped")
	}
}

func TestRunOnce_ConditionalGet(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, rssFeed)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	imp, _ := newTestImporter(t, []string{srv.URL}, sink)

	_ = imp.RunOnce(context.Background())
	if err := imp.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
	if len(sink.items) != 2 {
		t.Errorf("items = %d, want 2 kept on 304", len(sink.items))
	}
}

func TestRunOnce_PartialFailureMergesFeeds(t *testing.T) {
	good := serveFeed(rssFeed)
	defer good.Close()
	bad := serveFeed("not a feed")
	defer bad.Close()

	sink := &recordingSink{}
	imp, _ := newTestImporter(t, []string{good.URL, bad.URL}, sink)

	if err := imp.RunOnce(context.Background()); err != nil {
		t.Fatalf("partial failure should not be an error: %v", err)
	}
	if len(sink.items) != 2 {
		t.Errorf("items = %d, want 2", len(sink.items))
	}
}

func TestRunOnce_BodyTooLarge(t *testing.T) {
	srv := serveFeed(rssFeed)
	defer srv.Close()

	var buf bytes.Buffer
	imp := NewImporter([]string{srv.URL}, &mockFetchGuard{maxSize: 64}, security.NewTextSanitizer(),
		&recordingSink{}, metrics.Nop{}, newTestLogger(&buf), time.Minute)

	if err := imp.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error for oversized body")
	}
}

func TestNewImporter_SkipsInvalidAndDuplicateURLs(t *testing.T) {
	var buf bytes.Buffer
	guard := &mockFetchGuard{validateFn: func(rawURL string) error {
		if strings.Contains(rawURL, "169.254") {
			return fmt.Errorf("blocked IP address")
		}
		return nil
	}}
	imp := NewImporter([]string{
		"https://a.example.com/rss",
		"http://169.254.169.254/latest",
		"https://a.example.com/rss",
	}, guard, security.NewTextSanitizer(), &recordingSink{}, metrics.Nop{}, newTestLogger(&buf), time.Minute)

	if imp.FeedCount() != 1 {
		t.Errorf("FeedCount = %d, want 1", imp.FeedCount())
	}
}

func TestStart_NoFeedsReturnsImmediately(t *testing.T) {
	imp, _ := newTestImporter(t, nil, &recordingSink{})

	done := make(chan struct{})
	go func() {
		imp.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return when no feeds are configured")
	}
}

func TestCalculateBackoff(t *testing.T) {
	base := 30 * time.Minute
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{1, 30 * time.Minute},
		{2, time.Hour},
		{3, 2 * time.Hour},
		{10, maxBackoff},
	}
	for _, tt := range tests {
		if got := calculateBackoff(base, tt.errors); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

func TestFirstImageSrc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`<p>x</p><img alt="a" src="https://x.example.com/a.jpg">`, "https://x.example.com/a.jpg"},
		{`<img src="">` + `<img src="b.png"/>`, "b.png"},
		{"plain text", ""},
		{`<p>no images</p>`, ""},
	}
	for _, tt := range tests {
		if got := firstImageSrc(tt.in); got != tt.want {
			t.Errorf("firstImageSrc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
