package model

import "time"

// Member は投稿・イベント・通知に表示されるユーザーの概要。
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Bio      string `json:"bio,omitempty"`
	Cars     []Car  `json:"cars,omitempty"`
}

// Car はユーザーの所有車両。
type Car struct {
	ID          string   `json:"id"`
	Make        string   `json:"make"`
	Model       string   `json:"model"`
	Year        int      `json:"year"`
	Photos      []string `json:"photos"`
	Description string   `json:"description,omitempty"`
}

// Post はフィードの投稿。
type Post struct {
	ID        string   `json:"id"`
	User      Member   `json:"user"`
	Images    []string `json:"images"`
	Caption   string   `json:"caption"`
	Likes     int      `json:"likes"`
	Comments  int      `json:"comments"`
	Timestamp string   `json:"timestamp"`
}

// EventType はイベント種別。
type EventType string

const (
	EventTypeMeet   EventType = "meet"
	EventTypeRace   EventType = "race"
	EventTypeCruise EventType = "cruise"
	EventTypeShow   EventType = "show"
)

// Event は自動車イベント。
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        EventType `json:"type"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Organizer   Member    `json:"organizer"`
	Attendees   []Member  `json:"attendees"`
	Cover       string    `json:"cover"`
}

// NotificationType は通知種別。
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationEvent   NotificationType = "event"
	NotificationMention NotificationType = "mention"
)

// Notification はユーザーへの通知。
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	User      Member           `json:"user"`
	Content   string           `json:"content"`
	Timestamp string           `json:"timestamp"`
	Read      bool             `json:"read"`
	Link      string           `json:"link"`
}

// ExploreItemType はExploreグリッドの項目種別。
type ExploreItemType string

const (
	ExploreItemBuild   ExploreItemType = "build"
	ExploreItemEvent   ExploreItemType = "event"
	ExploreItemArticle ExploreItemType = "article"
)

// ExploreItem はExploreグリッドの1項目。
type ExploreItem struct {
	ID       string          `json:"id"`
	Type     ExploreItemType `json:"type"`
	Image    string          `json:"image"`
	Title    string          `json:"title"`
	Subtitle string          `json:"subtitle"`
	Stats    string          `json:"stats"`
	Link     string          `json:"link,omitempty"`
}

// Option はフィルタやカテゴリの選択肢。
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}
