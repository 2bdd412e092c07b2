package handler

import (
	"net/http"

	"github.com/hitoshi/revculture/internal/catalog"
	"github.com/hitoshi/revculture/internal/model"
)

// CatalogReader はカタログハンドラーが必要とする読み取り専用インターフェース。
type CatalogReader interface {
	Feed() []model.Post
	EventTypes() []model.Option
	Events(eventType string) ([]model.Event, error)
	Notifications() catalog.NotificationList
	Categories() []model.Option
	Explore(category, query string) ([]model.ExploreItem, error)
}

// CatalogHandler は表示専用データのHTTPハンドラー。
type CatalogHandler struct {
	catalog CatalogReader
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(c CatalogReader) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

type feedResponse struct {
	Posts []model.Post `json:"posts"`
}

type eventsResponse struct {
	Types  []model.Option `json:"types"`
	Events []model.Event  `json:"events"`
}

type exploreResponse struct {
	Categories []model.Option      `json:"categories"`
	Items      []model.ExploreItem `json:"items"`
}

// GetFeed はホームフィードの投稿一覧を返す。
// GET /api/feed
func (h *CatalogHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, feedResponse{Posts: h.catalog.Feed()})
}

// GetEvents はイベント一覧を返す。
// GET /api/events?type=meet
func (h *CatalogHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.catalog.Events(r.URL.Query().Get("type"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Types: h.catalog.EventTypes(), Events: events})
}

// GetNotifications は通知一覧と未読件数を返す。
// GET /api/notifications
func (h *CatalogHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Notifications())
}

// GetExplore はExploreの項目を返す。
// GET /api/explore?category=builds&q=gt-r
func (h *CatalogHandler) GetExplore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.catalog.Explore(q.Get("category"), q.Get("q"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exploreResponse{Categories: h.catalog.Categories(), Items: items})
}
