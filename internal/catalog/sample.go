package catalog

import (
	"time"

	"github.com/hitoshi/revculture/internal/model"
)

const unsplash = "https://images.unsplash.com/"

func avatar(photo string) string {
	return unsplash + photo + "?auto=format&fit=crop&q=80&w=100&h=100"
}

func photo(id string, width string) string {
	return unsplash + id + "?auto=format&fit=crop&q=80&w=" + width
}

func samplePosts() []model.Post {
	return []model.Post{
		{
			ID: "1",
			User: model.Member{
				ID: "1", Username: "speedmaster", Name: "Alex Turner",
				Avatar: avatar("photo-1599566150163-29194dcaad36"),
			},
			Images:    []string{photo("photo-1494976388531-d1058494cdd8", "2000")},
			Caption:   "Just finished the new setup on my GT3 RS. What do you think? 🏎️",
			Likes:     1234,
			Comments:  89,
			Timestamp: "2h ago",
		},
		{
			ID: "2",
			User: model.Member{
				ID: "2", Username: "carmechanic", Name: "Sarah Chen",
				Avatar: avatar("photo-1494790108377-be9c29b29330"),
			},
			Images:    []string{photo("photo-1583121274602-3e2820c69888", "2000")},
			Caption:   "Late night in the garage. Engine swap almost complete! 🔧",
			Likes:     892,
			Comments:  45,
			Timestamp: "4h ago",
		},
	}
}

func sampleEvents() []model.Event {
	return []model.Event{
		{
			ID:          "1",
			Title:       "SoCal Car Meet 2024",
			Description: "Join us for the biggest car meet in Southern California! All makes and models welcome.",
			Type:        model.EventTypeMeet,
			Date:        time.Date(2024, 3, 25, 18, 0, 0, 0, time.UTC),
			Location:    "Los Angeles, CA",
			Organizer: model.Member{
				ID: "1", Username: "carculture", Name: "Car Culture LA",
				Avatar: avatar("photo-1472099645785-5658abf4ff4e"),
			},
			Cover: photo("photo-1503376780353-7e6692767b70", "2000"),
		},
		{
			ID:          "2",
			Title:       "Track Day: Laguna Seca",
			Description: "Professional track day event at the legendary Laguna Seca raceway.",
			Type:        model.EventTypeRace,
			Date:        time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC),
			Location:    "Monterey, CA",
			Organizer: model.Member{
				ID: "2", Username: "trackdays", Name: "Track Day Pro",
				Avatar: avatar("photo-1500648767791-00dcc994a43e"),
			},
			Cover: photo("photo-1584727638096-042c45049ebe", "2000"),
		},
		{
			ID:          "3",
			Title:       "Sunset Cruise",
			Description: "Evening cruise along the Pacific Coast Highway. All classic cars welcome.",
			Type:        model.EventTypeCruise,
			Date:        time.Date(2024, 3, 30, 17, 30, 0, 0, time.UTC),
			Location:    "Malibu, CA",
			Organizer: model.Member{
				ID: "3", Username: "classiccarclub", Name: "Classic Car Club",
				Avatar: avatar("photo-1507003211169-0a1dd7228f2d"),
			},
			Cover: photo("photo-1492144534655-ae79c964c9d7", "2000"),
		},
		{
			ID:          "4",
			Title:       "Supercar Show",
			Description: "Exclusive supercar showcase featuring the latest and greatest exotic vehicles.",
			Type:        model.EventTypeShow,
			Date:        time.Date(2024, 4, 20, 11, 0, 0, 0, time.UTC),
			Location:    "Beverly Hills, CA",
			Organizer: model.Member{
				ID: "4", Username: "luxurycars", Name: "Luxury Car Events",
				Avatar: avatar("photo-1463453091185-61582044d556"),
			},
			Cover: photo("photo-1614200187524-dc4b892acf16", "2000"),
		},
	}
}

func sampleNotifications() []model.Notification {
	return []model.Notification{
		{
			ID:   "1",
			Type: model.NotificationLike,
			User: model.Member{
				ID: "2", Username: "carmechanic", Name: "Sarah Chen",
				Avatar: avatar("photo-1494790108377-be9c29b29330"),
			},
			Content:   "liked your post about your new GT3 RS",
			Timestamp: "2m ago",
			Link:      "#",
		},
		{
			ID:   "2",
			Type: model.NotificationComment,
			User: model.Member{
				ID: "3", Username: "speedmaster", Name: "Mike Johnson",
				Avatar: avatar("photo-1599566150163-29194dcaad36"),
			},
			Content:   `commented on your track day photo: "Amazing shot! Which track is this?"`,
			Timestamp: "15m ago",
			Link:      "#",
		},
		{
			ID:   "3",
			Type: model.NotificationEvent,
			User: model.Member{
				ID: "4", Username: "carculture", Name: "Car Culture LA",
				Avatar: avatar("photo-1472099645785-5658abf4ff4e"),
			},
			Content:   `invited you to "SoCal Car Meet 2024"`,
			Timestamp: "1h ago",
			Read:      true,
			Link:      "#",
		},
		{
			ID:   "4",
			Type: model.NotificationFollow,
			User: model.Member{
				ID: "5", Username: "racinglife", Name: "Tom Wilson",
				Avatar: avatar("photo-1507003211169-0a1dd7228f2d"),
			},
			Content:   "started following you",
			Timestamp: "2h ago",
			Read:      true,
			Link:      "#",
		},
		{
			ID:   "5",
			Type: model.NotificationMention,
			User: model.Member{
				ID: "6", Username: "driftking", Name: "Alex Turner",
				Avatar: avatar("photo-1500648767791-00dcc994a43e"),
			},
			Content:   `mentioned you in a comment: "You should definitely check out @alexsmith's build!"`,
			Timestamp: "3h ago",
			Read:      true,
			Link:      "#",
		},
	}
}

func sampleExploreItems() []model.ExploreItem {
	return []model.ExploreItem{
		{ID: "1", Type: model.ExploreItemBuild, Image: photo("photo-1603386329225-868f9b1ee6c9", "800"),
			Title: "Custom BMW M4", Subtitle: locationMarker + " Los Angeles, CA", Stats: "2.1k likes"},
		{ID: "2", Type: model.ExploreItemEvent, Image: photo("photo-1547245324-d777c6f05e80", "800"),
			Title: "Weekend Car Meet", Subtitle: "📅 This Saturday", Stats: "156 attending"},
		{ID: "3", Type: model.ExploreItemBuild, Image: photo("photo-1626668893632-6f3a4466d22f", "800"),
			Title: "Restored Classic Mustang", Subtitle: locationMarker + " Miami, FL", Stats: "3.4k likes"},
		{ID: "4", Type: model.ExploreItemBuild, Image: photo("photo-1544829099-b9a0c07fad1a", "800"),
			Title: "Slammed Civic Build", Subtitle: locationMarker + " Tokyo, Japan", Stats: "1.8k likes"},
		{ID: "5", Type: model.ExploreItemEvent, Image: photo("photo-1536332016596-dc50468cbf41", "800"),
			Title: "Track Day", Subtitle: "📅 Next Weekend", Stats: "89 attending"},
		{ID: "6", Type: model.ExploreItemBuild, Image: photo("photo-1606016159991-dfe4f2746ad5", "800"),
			Title: "Porsche 911 GT3", Subtitle: locationMarker + " Berlin, Germany", Stats: "4.2k likes"},
	}
}
