// Package explore は外部のRSS/Atomフィードを定期的に取り込み、Exploreに記事として追加する。
// 取得はSSRF防止付きのクライアントで行い、失敗したフィードは前回の記事を保持する。
package explore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/revculture/internal/metrics"
	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/security"
)

const (
	// maxItemsPerFeed は1フィードから取り込む記事の上限。
	maxItemsPerFeed = 10
	// maxItems はExploreに表示する取り込み記事の上限。
	maxItems = 30
	// maxConcurrency はフィード取得の最大並列数。
	maxConcurrency = 4

	userAgent = "RevCulture/1.0 Explore Importer"
)

// FetchGuard は外部取得時のSSRF防止とサイズ制限。*security.FetchGuardが実装する。
type FetchGuard interface {
	ValidateURL(rawURL string) error
	Client() *http.Client
	ReadLimited(r io.Reader) ([]byte, error)
}

// ItemSink は取り込んだ記事の反映先。*catalog.Catalogが実装する。
type ItemSink interface {
	SetImported(items []model.ExploreItem)
}

type itemWithDate struct {
	item      model.ExploreItem
	published time.Time
}

// Importer は設定されたフィードを取り込む。
type Importer struct {
	feedURLs  []string
	guard     FetchGuard
	client    *http.Client
	sanitizer security.TextSanitizer
	sink      ItemSink
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	states map[string]*feedState
}

// NewImporter はImporterを生成する。静的検証に失敗したURLはログに記録して除外する。
func NewImporter(
	feedURLs []string,
	guard FetchGuard,
	sanitizer security.TextSanitizer,
	sink ItemSink,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	interval time.Duration,
) *Importer {
	imp := &Importer{
		guard:     guard,
		client:    guard.Client(),
		sanitizer: sanitizer,
		sink:      sink,
		metrics:   collector,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
		states:    make(map[string]*feedState),
	}
	for _, u := range feedURLs {
		if err := guard.ValidateURL(u); err != nil {
			logger.Warn("ExploreフィードのURLが不正なため除外しました",
				slog.String("feed_url", u),
				slog.String("error", err.Error()),
			)
			continue
		}
		if slices.Contains(imp.feedURLs, u) {
			continue
		}
		imp.feedURLs = append(imp.feedURLs, u)
		imp.states[u] = &feedState{}
	}
	return imp
}

// FeedCount は取り込み対象のフィード数を返す。
func (i *Importer) FeedCount() int {
	return len(i.feedURLs)
}

// Start はinterval間隔で取り込みを実行する。起動直後に1回実行し、ctxのキャンセルで終了する。
func (i *Importer) Start(ctx context.Context) {
	if len(i.feedURLs) == 0 {
		i.logger.Info("Exploreフィードが設定されていないため取り込みを行いません")
		return
	}

	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	i.logger.Info("Explore取り込みを開始しました",
		slog.Duration("interval", i.interval),
		slog.Int("feed_count", len(i.feedURLs)),
	)

	if err := i.RunOnce(ctx); err != nil {
		i.logger.Error("Explore取り込みに失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			i.logger.Info("Explore取り込みを停止しました")
			return
		case <-ticker.C:
			if err := i.RunOnce(ctx); err != nil {
				i.logger.Error("Explore取り込みに失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce は取得時期に来たフィードを並列に取得し、全フィードの記事をまとめてsinkに反映する。
// 取得に失敗したフィードは前回の記事を使う。対象の全フィードが失敗した場合はエラーを返す。
func (i *Importer) RunOnce(ctx context.Context) error {
	start := i.now()

	var due []string
	i.mu.Lock()
	for _, u := range i.feedURLs {
		if i.states[u].due(start) {
			due = append(due, u)
		}
	}
	i.mu.Unlock()

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	var failedMu sync.Mutex
	failed := 0

	for _, u := range due {
		wg.Add(1)
		sem <- struct{}{}

		go func(feedURL string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := i.fetch(ctx, feedURL); err != nil {
				failedMu.Lock()
				failed++
				failedMu.Unlock()
				i.logger.Warn("Exploreフィードの取得に失敗しました",
					slog.String("feed_url", feedURL),
					slog.String("error", err.Error()),
				)
			}
		}(u)
	}
	wg.Wait()

	items := i.merge()
	i.sink.SetImported(items)

	duration := i.now().Sub(start)
	if len(due) > 0 && failed == len(due) {
		i.metrics.RecordExploreImport("failed", len(items))
		return fmt.Errorf("all %d explore feeds failed", failed)
	}

	result := "success"
	if failed > 0 {
		result = "partial"
	}
	i.metrics.RecordExploreImport(result, len(items))
	i.logger.Info("Explore取り込みが完了しました",
		slog.Int("feeds_fetched", len(due)-failed),
		slog.Int("feeds_failed", failed),
		slog.Int("items", len(items)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// fetch は1フィードを取得し、状態を更新する。
func (i *Importer) fetch(ctx context.Context, feedURL string) error {
	i.mu.Lock()
	state := i.states[feedURL]
	etag, lastModified := state.etag, state.lastModified
	i.mu.Unlock()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		i.recordFailure(feedURL, fetchResultBackoff, err.Error())
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	i.metrics.RecordExploreLatency(time.Since(start))

	switch result := classifyHTTPStatus(resp.StatusCode); result {
	case fetchResultOK:
	case fetchResultNotModified:
		i.mu.Lock()
		state.applySuccess()
		i.mu.Unlock()
		return nil
	default:
		reason := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		i.recordFailure(feedURL, result, reason)
		return errors.New(reason)
	}

	body, err := i.guard.ReadLimited(resp.Body)
	if err != nil {
		i.recordFailure(feedURL, fetchResultBackoff, err.Error())
		return fmt.Errorf("failed to read body: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		i.recordFailure(feedURL, fetchResultBackoff, err.Error())
		return fmt.Errorf("failed to parse feed: %w", err)
	}

	items := i.convert(parsed)

	i.mu.Lock()
	state.items = items
	state.etag = resp.Header.Get("ETag")
	state.lastModified = resp.Header.Get("Last-Modified")
	state.applySuccess()
	i.mu.Unlock()
	return nil
}

func (i *Importer) recordFailure(feedURL string, result fetchResult, reason string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	state := i.states[feedURL]
	if result == fetchResultStop {
		state.applyStop(reason)
		i.logger.Warn("Exploreフィードの取得を停止します",
			slog.String("feed_url", feedURL),
			slog.String("reason", reason),
		)
		return
	}
	state.applyBackoff(i.now(), i.interval, reason)
}

// convert はgofeedの記事をExplore項目に変換する。画像のない記事は表示できないため除外する。
func (i *Importer) convert(feed *gofeed.Feed) []itemWithDate {
	source := i.sanitizer.Text(feed.Title)
	out := make([]itemWithDate, 0, maxItemsPerFeed)

	for _, item := range feed.Items {
		if len(out) >= maxItemsPerFeed {
			break
		}
		if item == nil {
			continue
		}

		title := i.sanitizer.Text(item.Title)
		image := i.sanitizer.ImageURL(coverImage(item, feed))
		link := safeLink(item.Link)
		if link == "" {
			link = safeLink(item.GUID)
		}
		if title == "" || image == "" {
			continue
		}

		key := link
		if key == "" {
			key = item.GUID + "|" + title
		}

		var published time.Time
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		stats := ""
		if !published.IsZero() {
			stats = published.UTC().Format("Jan 2, 2006")
		}

		out = append(out, itemWithDate{
			item: model.ExploreItem{
				ID:       "article-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(),
				Type:     model.ExploreItemArticle,
				Image:    image,
				Title:    title,
				Subtitle: source,
				Stats:    stats,
				Link:     link,
			},
			published: published,
		})
	}
	return out
}

// merge は全フィードの記事を新しい順に並べ、重複を除いて上限件数に切り詰める。
func (i *Importer) merge() []model.ExploreItem {
	i.mu.Lock()
	var all []itemWithDate
	for _, u := range i.feedURLs {
		all = append(all, i.states[u].items...)
	}
	i.mu.Unlock()

	slices.SortStableFunc(all, func(a, b itemWithDate) int {
		return b.published.Compare(a.published)
	})

	seen := make(map[string]bool, len(all))
	out := make([]model.ExploreItem, 0, min(len(all), maxItems))
	for _, it := range all {
		if seen[it.item.ID] {
			continue
		}
		seen[it.item.ID] = true
		out = append(out, it.item)
		if len(out) >= maxItems {
			break
		}
	}
	return out
}

func safeLink(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}
