// Package catalog は表示専用のフィード・イベント・通知・Exploreのデータを提供する。
// 書き込み操作はない。Exploreには外部フィードから取り込んだ記事が加わる。
package catalog

import (
	"slices"
	"strings"
	"sync"

	"github.com/hitoshi/revculture/internal/model"
)

// locationMarker はExplore項目のsubtitleが場所を表すことを示す接頭辞。
const locationMarker = "📍"

// EventTypeAll はイベント種別で絞り込まないことを表す。
const EventTypeAll = "all"

// Explore のカテゴリ。
const (
	CategoryTrending = "trending"
	CategoryEvents   = "events"
	CategoryBuilds   = "builds"
	CategoryNearby   = "nearby"
)

var eventTypes = []model.Option{
	{ID: EventTypeAll, Label: "All Events"},
	{ID: string(model.EventTypeMeet), Label: "Car Meets"},
	{ID: string(model.EventTypeRace), Label: "Track Days"},
	{ID: string(model.EventTypeCruise), Label: "Cruises"},
	{ID: string(model.EventTypeShow), Label: "Car Shows"},
}

var categories = []model.Option{
	{ID: CategoryTrending, Label: "Trending"},
	{ID: CategoryEvents, Label: "Events"},
	{ID: CategoryBuilds, Label: "Builds"},
	{ID: CategoryNearby, Label: "Nearby"},
}

// NotificationList は通知一覧と未読件数。
type NotificationList struct {
	Items  []model.Notification `json:"items"`
	Unread int                  `json:"unread"`
}

// Catalog は表示用データを保持する。取り込み記事の差し替えは並行に行われうる。
type Catalog struct {
	posts         []model.Post
	events        []model.Event
	notifications []model.Notification
	explore       []model.ExploreItem

	mu       sync.RWMutex
	imported []model.ExploreItem
}

// New はサンプルデータを持つCatalogを生成する。
func New() *Catalog {
	events := sampleEvents()
	for i := range events {
		if events[i].Attendees == nil {
			events[i].Attendees = []model.Member{}
		}
	}
	slices.SortStableFunc(events, func(a, b model.Event) int {
		return a.Date.Compare(b.Date)
	})
	return &Catalog{
		posts:         samplePosts(),
		events:        events,
		notifications: sampleNotifications(),
		explore:       sampleExploreItems(),
	}
}

// Feed はフィードの投稿を返す。
func (c *Catalog) Feed() []model.Post {
	return slices.Clone(c.posts)
}

// EventTypes はイベント種別の選択肢を返す。
func (c *Catalog) EventTypes() []model.Option {
	return slices.Clone(eventTypes)
}

// Events は種別で絞り込んだイベントを日付順に返す。空文字列と"all"は全件。
func (c *Catalog) Events(eventType string) ([]model.Event, error) {
	eventType = strings.ToLower(strings.TrimSpace(eventType))
	if eventType == "" || eventType == EventTypeAll {
		return slices.Clone(c.events), nil
	}
	if !containsOption(eventTypes, eventType) {
		return nil, model.NewInvalidFilterError("type", eventType, optionIDs(eventTypes))
	}

	out := make([]model.Event, 0, len(c.events))
	for _, e := range c.events {
		if string(e.Type) == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

// Notifications は通知一覧と未読件数を返す。
func (c *Catalog) Notifications() NotificationList {
	list := NotificationList{Items: slices.Clone(c.notifications)}
	for _, n := range c.notifications {
		if !n.Read {
			list.Unread++
		}
	}
	return list
}

// Categories はExploreのカテゴリを返す。
func (c *Catalog) Categories() []model.Option {
	return slices.Clone(categories)
}

// Explore はカテゴリで絞り込み、queryをタイトルとsubtitleの部分一致（大文字小文字を区別しない）で検索する。
// カテゴリが空の場合はtrending。trendingには取り込んだ記事が先頭に含まれる。
func (c *Catalog) Explore(category, query string) ([]model.ExploreItem, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = CategoryTrending
	}
	if !containsOption(categories, category) {
		return nil, model.NewInvalidFilterError("category", category, optionIDs(categories))
	}

	c.mu.RLock()
	items := make([]model.ExploreItem, 0, len(c.imported)+len(c.explore))
	if category == CategoryTrending {
		items = append(items, c.imported...)
	}
	c.mu.RUnlock()
	items = append(items, c.explore...)

	query = strings.ToLower(strings.TrimSpace(query))
	out := items[:0]
	for _, item := range items {
		if !inCategory(item, category) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(item.Title), query) &&
			!strings.Contains(strings.ToLower(item.Subtitle), query) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// SetImported は外部フィードから取り込んだ記事を置き換える。
func (c *Catalog) SetImported(items []model.ExploreItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imported = slices.Clone(items)
}

// ImportedCount は取り込み済みの記事数を返す。
func (c *Catalog) ImportedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.imported)
}

func inCategory(item model.ExploreItem, category string) bool {
	switch category {
	case CategoryEvents:
		return item.Type == model.ExploreItemEvent
	case CategoryBuilds:
		return item.Type == model.ExploreItemBuild
	case CategoryNearby:
		return strings.HasPrefix(item.Subtitle, locationMarker)
	default:
		return true
	}
}

func containsOption(opts []model.Option, id string) bool {
	return slices.ContainsFunc(opts, func(o model.Option) bool { return o.ID == id })
}

func optionIDs(opts []model.Option) []string {
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = o.ID
	}
	return ids
}
