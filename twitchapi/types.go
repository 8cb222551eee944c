package twitchapi

import "time"

// User is a Helix user profile.
type User struct {
	ID              string    `json:"id"`
	Login           string    `json:"login"`
	DisplayName     string    `json:"display_name"`
	Type            string    `json:"type"`
	BroadcasterType string    `json:"broadcaster_type"`
	Description     string    `json:"description"`
	ProfileImageURL string    `json:"profile_image_url"`
	OfflineImageURL string    `json:"offline_image_url"`
	ViewCount       int       `json:"view_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// Stream is a live stream. Helix omits offline channels entirely.
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	Language     string    `json:"language"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Tags         []string  `json:"tags"`
	IsMature     bool      `json:"is_mature"`
}

// Game is a Helix category.
type Game struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
	IGDBID    string `json:"igdb_id,omitempty"`
}

// Channel is channel information for a broadcaster.
type Channel struct {
	BroadcasterID               string   `json:"broadcaster_id"`
	BroadcasterLogin            string   `json:"broadcaster_login"`
	BroadcasterName             string   `json:"broadcaster_name"`
	BroadcasterLanguage         string   `json:"broadcaster_language"`
	GameID                      string   `json:"game_id"`
	GameName                    string   `json:"game_name"`
	Title                       string   `json:"title"`
	Delay                       int      `json:"delay"`
	Tags                        []string `json:"tags"`
	ContentClassificationLabels []string `json:"content_classification_labels"`
	IsBrandedContent            bool     `json:"is_branded_content"`
}

// MutedSegment is a muted range inside a video, in seconds.
type MutedSegment struct {
	Duration int `json:"duration"`
	Offset   int `json:"offset"`
}

// Video is a VOD, highlight or upload.
type Video struct {
	ID            string         `json:"id"`
	StreamID      *string        `json:"stream_id"`
	UserID        string         `json:"user_id"`
	UserLogin     string         `json:"user_login"`
	UserName      string         `json:"user_name"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	CreatedAt     time.Time      `json:"created_at"`
	PublishedAt   time.Time      `json:"published_at"`
	URL           string         `json:"url"`
	ThumbnailURL  string         `json:"thumbnail_url"`
	Viewable      string         `json:"viewable"`
	ViewCount     int            `json:"view_count"`
	Language      string         `json:"language"`
	Type          string         `json:"type"`
	Duration      string         `json:"duration"`
	MutedSegments []MutedSegment `json:"muted_segments"`
}

// Clip is a broadcaster clip.
type Clip struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	EmbedURL        string    `json:"embed_url"`
	BroadcasterID   string    `json:"broadcaster_id"`
	BroadcasterName string    `json:"broadcaster_name"`
	CreatorID       string    `json:"creator_id"`
	CreatorName     string    `json:"creator_name"`
	VideoID         string    `json:"video_id"`
	GameID          string    `json:"game_id"`
	Language        string    `json:"language"`
	Title           string    `json:"title"`
	ViewCount       int       `json:"view_count"`
	CreatedAt       time.Time `json:"created_at"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	Duration        float64   `json:"duration"`
	VODOffset       *int      `json:"vod_offset"`
	IsFeatured      bool      `json:"is_featured"`
}

// ImageSet holds the three static image scales Helix returns.
type ImageSet struct {
	URL1x string `json:"url_1x"`
	URL2x string `json:"url_2x"`
	URL4x string `json:"url_4x"`
}

// Emote is a channel or global emote.
type Emote struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Images     ImageSet `json:"images"`
	Tier       string   `json:"tier,omitempty"`
	EmoteType  string   `json:"emote_type,omitempty"`
	EmoteSetID string   `json:"emote_set_id,omitempty"`
	Format     []string `json:"format"`
	Scale      []string `json:"scale"`
	ThemeMode  []string `json:"theme_mode"`
}

// Follower is one follow relationship.
type Follower struct {
	UserID     string    `json:"user_id"`
	UserLogin  string    `json:"user_login"`
	UserName   string    `json:"user_name"`
	FollowedAt time.Time `json:"followed_at"`
}

// BadgeVersion is one version of a chat badge set.
type BadgeVersion struct {
	ID          string  `json:"id"`
	ImageURL1x  string  `json:"image_url_1x"`
	ImageURL2x  string  `json:"image_url_2x"`
	ImageURL4x  string  `json:"image_url_4x"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ClickAction *string `json:"click_action"`
	ClickURL    *string `json:"click_url"`
}

// ChatBadge is a badge set (e.g. "subscriber") and its versions.
type ChatBadge struct {
	SetID    string         `json:"set_id"`
	Versions []BadgeVersion `json:"versions"`
}

// MaxPerStreamSetting limits redemptions per stream.
type MaxPerStreamSetting struct {
	IsEnabled    bool `json:"is_enabled"`
	MaxPerStream int  `json:"max_per_stream"`
}

// MaxPerUserPerStreamSetting limits redemptions per user per stream.
type MaxPerUserPerStreamSetting struct {
	IsEnabled           bool `json:"is_enabled"`
	MaxPerUserPerStream int  `json:"max_per_user_per_stream"`
}

// GlobalCooldownSetting is the reward cooldown.
type GlobalCooldownSetting struct {
	IsEnabled             bool `json:"is_enabled"`
	GlobalCooldownSeconds int  `json:"global_cooldown_seconds"`
}

// CustomReward is a channel-point reward.
type CustomReward struct {
	ID                                string                      `json:"id"`
	BroadcasterID                     string                      `json:"broadcaster_id"`
	BroadcasterLogin                  string                      `json:"broadcaster_login"`
	BroadcasterName                   string                      `json:"broadcaster_name"`
	Title                             string                      `json:"title"`
	Prompt                            string                      `json:"prompt"`
	Cost                              int                         `json:"cost"`
	Image                             *ImageSet                   `json:"image"`
	DefaultImage                      ImageSet                    `json:"default_image"`
	BackgroundColor                   string                      `json:"background_color"`
	IsEnabled                         bool                        `json:"is_enabled"`
	IsUserInputRequired               bool                        `json:"is_user_input_required"`
	MaxPerStreamSetting               *MaxPerStreamSetting        `json:"max_per_stream_setting,omitempty"`
	MaxPerUserPerStreamSetting        *MaxPerUserPerStreamSetting `json:"max_per_user_per_stream_setting,omitempty"`
	GlobalCooldownSetting             *GlobalCooldownSetting      `json:"global_cooldown_setting,omitempty"`
	IsPaused                          bool                        `json:"is_paused"`
	IsInStock                         bool                        `json:"is_in_stock"`
	ShouldRedemptionsSkipRequestQueue bool                        `json:"should_redemptions_skip_request_queue"`
	RedemptionsRedeemedCurrentStream  *int                        `json:"redemptions_redeemed_current_stream"`
	CooldownExpiresAt                 *time.Time                  `json:"cooldown_expires_at"`
}

// RedemptionStatus filters redemptions.
type RedemptionStatus string

const (
	RedemptionUnfulfilled RedemptionStatus = "UNFULFILLED"
	RedemptionFulfilled   RedemptionStatus = "FULFILLED"
	RedemptionCanceled    RedemptionStatus = "CANCELED"
)

// Valid reports whether s is one of the statuses Helix accepts.
func (s RedemptionStatus) Valid() bool {
	switch s {
	case RedemptionUnfulfilled, RedemptionFulfilled, RedemptionCanceled:
		return true
	}
	return false
}

// RedemptionReward is the reward summary embedded in a redemption.
type RedemptionReward struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	Cost   int    `json:"cost"`
}

// Redemption is one redemption of a custom reward.
type Redemption struct {
	ID               string           `json:"id"`
	BroadcasterID    string           `json:"broadcaster_id"`
	BroadcasterLogin string           `json:"broadcaster_login"`
	BroadcasterName  string           `json:"broadcaster_name"`
	UserID           string           `json:"user_id"`
	UserLogin        string           `json:"user_login"`
	UserName         string           `json:"user_name"`
	UserInput        string           `json:"user_input"`
	Status           RedemptionStatus `json:"status"`
	RedeemedAt       time.Time        `json:"redeemed_at"`
	Reward           RedemptionReward `json:"reward"`
}
