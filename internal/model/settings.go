package model

import (
	"fmt"
	"reflect"
	"time"
)

const (
	MinSlowModeSeconds     = 1
	MaxSlowModeSeconds     = 60
	DefaultSlowModeSeconds = 3
	MaxGuests              = 9
	MaxScreenTimeMinutes   = 1440
)

// Settings is the full settings record of one user.
type Settings struct {
	UserID UserID `json:"user_id" db:"user_id"`

	IsPrivateAccount   bool   `json:"is_private_account" db:"is_private_account"`
	ShowFollowersList  bool   `json:"show_followers_list" db:"show_followers_list"`
	ShowFollowingList  bool   `json:"show_following_list" db:"show_following_list"`
	ShowLikedContent   bool   `json:"show_liked_content" db:"show_liked_content"`
	AppearInSearch     bool   `json:"appear_in_search" db:"appear_in_search"`
	ShowActivityStatus bool   `json:"show_activity_status" db:"show_activity_status"`
	DMPermissions      string `json:"dm_permissions" db:"dm_permissions" validate:"oneof=everyone followers none"`
	CommentPermissions string `json:"comment_permissions" db:"comment_permissions" validate:"oneof=everyone followers none"`
	MentionPermissions string `json:"mention_permissions" db:"mention_permissions" validate:"oneof=everyone followers none"`
	AllowDuets         bool   `json:"allow_duets" db:"allow_duets"`
	AllowStitches      bool   `json:"allow_stitches" db:"allow_stitches"`
	AllowDownloads     bool   `json:"allow_downloads" db:"allow_downloads"`
	AllowAudioReuse    bool   `json:"allow_audio_reuse" db:"allow_audio_reuse"`
	ShowInSuggestions  bool   `json:"show_in_suggestions" db:"show_in_suggestions"`

	Language         string `json:"language" db:"language" validate:"required,max=16"`
	Region           string `json:"region" db:"region" validate:"required,max=16"`
	Theme            string `json:"theme" db:"theme" validate:"oneof=light dark system"`
	Timezone         string `json:"timezone" db:"timezone" validate:"required,timezone"`
	TwoFactorEnabled bool   `json:"two_factor_enabled" db:"two_factor_enabled"`

	NotificationsEnabled  bool `json:"notifications_enabled" db:"notifications_enabled"`
	PushLikes             bool `json:"push_likes" db:"push_likes"`
	PushComments          bool `json:"push_comments" db:"push_comments"`
	PushFollowers         bool `json:"push_followers" db:"push_followers"`
	PushMentions          bool `json:"push_mentions" db:"push_mentions"`
	PushDMs               bool `json:"push_dms" db:"push_dms"`
	PushLiveAlerts        bool `json:"push_live_alerts" db:"push_live_alerts"`
	PushGifts             bool `json:"push_gifts" db:"push_gifts"`
	EmailNotifications    bool `json:"email_notifications" db:"email_notifications"`
	EmailNewsletter       bool `json:"email_newsletter" db:"email_newsletter"`
	NotificationSound     bool `json:"notification_sound" db:"notification_sound"`
	NotificationVibration bool `json:"notification_vibration" db:"notification_vibration"`
	DoNotDisturb          bool `json:"do_not_disturb" db:"do_not_disturb"`

	DefaultStreamVisibility string `json:"default_stream_visibility" db:"default_stream_visibility" validate:"oneof=public followers private"`
	EnableLiveChat          bool   `json:"enable_live_chat" db:"enable_live_chat"`
	LiveChatMode            string `json:"live_chat_mode" db:"live_chat_mode" validate:"oneof=everyone followers"`
	EnableSlowMode          bool   `json:"enable_slow_mode" db:"enable_slow_mode"`
	SlowModeSeconds         int    `json:"slow_mode_seconds" db:"slow_mode_seconds" validate:"min=1,max=60"`
	AllowGuestRequests      bool   `json:"allow_guest_requests" db:"allow_guest_requests"`
	MaxGuests               int    `json:"max_guests" db:"max_guests" validate:"min=1,max=9"`
	EnableGiftsInLive       bool   `json:"enable_gifts_in_live" db:"enable_gifts_in_live"`
	SaveLiveReplays         bool   `json:"save_live_replays" db:"save_live_replays"`
	StreamQuality           string `json:"stream_quality" db:"stream_quality" validate:"oneof=auto high medium low"`

	DefaultPostAudience string `json:"default_post_audience" db:"default_post_audience" validate:"oneof=public followers private"`
	AllowShares         bool   `json:"allow_shares" db:"allow_shares"`

	MonetizationEnabled bool `json:"monetization_enabled" db:"monetization_enabled"`
	AcceptGifts         bool `json:"accept_gifts" db:"accept_gifts"`
	AcceptTips          bool `json:"accept_tips" db:"accept_tips"`

	CaptionAlwaysOn bool   `json:"caption_always_on" db:"caption_always_on"`
	TextSize        string `json:"text_size" db:"text_size" validate:"oneof=small medium large xlarge"`
	HighContrast    bool   `json:"high_contrast" db:"high_contrast"`
	ColorBlindMode  bool   `json:"color_blind_mode" db:"color_blind_mode"`
	ReduceMotion    bool   `json:"reduce_motion" db:"reduce_motion"`
	HapticFeedback  bool   `json:"haptic_feedback" db:"haptic_feedback"`

	ScreenTimeLimitMinutes int  `json:"screen_time_limit_minutes" db:"screen_time_limit_minutes" validate:"min=0,max=1440"`
	ScreenTimeEnabled      bool `json:"screen_time_enabled" db:"screen_time_enabled"`
	RestrictedMode         bool `json:"restricted_mode" db:"restricted_mode"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func DefaultSettings(userID UserID) Settings {
	return Settings{
		UserID:             userID,
		ShowFollowersList:  true,
		ShowFollowingList:  true,
		AppearInSearch:     true,
		ShowActivityStatus: true,
		DMPermissions:      "everyone",
		CommentPermissions: "everyone",
		MentionPermissions: "everyone",
		AllowDuets:         true,
		AllowStitches:      true,
		AllowDownloads:     true,
		AllowAudioReuse:    true,
		ShowInSuggestions:  true,

		Language: "en",
		Region:   "US",
		Theme:    "system",
		Timezone: "UTC",

		NotificationsEnabled:  true,
		PushLikes:             true,
		PushComments:          true,
		PushFollowers:         true,
		PushMentions:          true,
		PushDMs:               true,
		PushLiveAlerts:        true,
		PushGifts:             true,
		EmailNotifications:    true,
		NotificationSound:     true,
		NotificationVibration: true,

		DefaultStreamVisibility: "public",
		EnableLiveChat:          true,
		LiveChatMode:            "everyone",
		SlowModeSeconds:         DefaultSlowModeSeconds,
		AllowGuestRequests:      true,
		MaxGuests:               MaxGuests,
		EnableGiftsInLive:       true,
		SaveLiveReplays:         true,
		StreamQuality:           "auto",

		DefaultPostAudience: "public",
		AllowShares:         true,

		AcceptGifts: true,
		AcceptTips:  true,

		TextSize:       "medium",
		HapticFeedback: true,
	}
}

func (s *Settings) Validate() error {
	return Validate(s)
}

// SettingsPatch holds the fields to change. Nil fields are left alone.
// Field names match Settings.
type SettingsPatch struct {
	IsPrivateAccount   *bool   `json:"is_private_account,omitempty" db:"is_private_account"`
	ShowFollowersList  *bool   `json:"show_followers_list,omitempty" db:"show_followers_list"`
	ShowFollowingList  *bool   `json:"show_following_list,omitempty" db:"show_following_list"`
	ShowLikedContent   *bool   `json:"show_liked_content,omitempty" db:"show_liked_content"`
	AppearInSearch     *bool   `json:"appear_in_search,omitempty" db:"appear_in_search"`
	ShowActivityStatus *bool   `json:"show_activity_status,omitempty" db:"show_activity_status"`
	DMPermissions      *string `json:"dm_permissions,omitempty" db:"dm_permissions" validate:"omitempty,oneof=everyone followers none"`
	CommentPermissions *string `json:"comment_permissions,omitempty" db:"comment_permissions" validate:"omitempty,oneof=everyone followers none"`
	MentionPermissions *string `json:"mention_permissions,omitempty" db:"mention_permissions" validate:"omitempty,oneof=everyone followers none"`
	AllowDuets         *bool   `json:"allow_duets,omitempty" db:"allow_duets"`
	AllowStitches      *bool   `json:"allow_stitches,omitempty" db:"allow_stitches"`
	AllowDownloads     *bool   `json:"allow_downloads,omitempty" db:"allow_downloads"`
	AllowAudioReuse    *bool   `json:"allow_audio_reuse,omitempty" db:"allow_audio_reuse"`
	ShowInSuggestions  *bool   `json:"show_in_suggestions,omitempty" db:"show_in_suggestions"`

	Language         *string `json:"language,omitempty" db:"language" validate:"omitempty,max=16"`
	Region           *string `json:"region,omitempty" db:"region" validate:"omitempty,max=16"`
	Theme            *string `json:"theme,omitempty" db:"theme" validate:"omitempty,oneof=light dark system"`
	Timezone         *string `json:"timezone,omitempty" db:"timezone" validate:"omitempty,timezone"`
	TwoFactorEnabled *bool   `json:"two_factor_enabled,omitempty" db:"two_factor_enabled"`

	NotificationsEnabled  *bool `json:"notifications_enabled,omitempty" db:"notifications_enabled"`
	PushLikes             *bool `json:"push_likes,omitempty" db:"push_likes"`
	PushComments          *bool `json:"push_comments,omitempty" db:"push_comments"`
	PushFollowers         *bool `json:"push_followers,omitempty" db:"push_followers"`
	PushMentions          *bool `json:"push_mentions,omitempty" db:"push_mentions"`
	PushDMs               *bool `json:"push_dms,omitempty" db:"push_dms"`
	PushLiveAlerts        *bool `json:"push_live_alerts,omitempty" db:"push_live_alerts"`
	PushGifts             *bool `json:"push_gifts,omitempty" db:"push_gifts"`
	EmailNotifications    *bool `json:"email_notifications,omitempty" db:"email_notifications"`
	EmailNewsletter       *bool `json:"email_newsletter,omitempty" db:"email_newsletter"`
	NotificationSound     *bool `json:"notification_sound,omitempty" db:"notification_sound"`
	NotificationVibration *bool `json:"notification_vibration,omitempty" db:"notification_vibration"`
	DoNotDisturb          *bool `json:"do_not_disturb,omitempty" db:"do_not_disturb"`

	DefaultStreamVisibility *string `json:"default_stream_visibility,omitempty" db:"default_stream_visibility" validate:"omitempty,oneof=public followers private"`
	EnableLiveChat          *bool   `json:"enable_live_chat,omitempty" db:"enable_live_chat"`
	LiveChatMode            *string `json:"live_chat_mode,omitempty" db:"live_chat_mode" validate:"omitempty,oneof=everyone followers"`
	EnableSlowMode          *bool   `json:"enable_slow_mode,omitempty" db:"enable_slow_mode"`
	SlowModeSeconds         *int    `json:"slow_mode_seconds,omitempty" db:"slow_mode_seconds" validate:"omitnil,min=1,max=60"`
	AllowGuestRequests      *bool   `json:"allow_guest_requests,omitempty" db:"allow_guest_requests"`
	MaxGuests               *int    `json:"max_guests,omitempty" db:"max_guests" validate:"omitnil,min=1,max=9"`
	EnableGiftsInLive       *bool   `json:"enable_gifts_in_live,omitempty" db:"enable_gifts_in_live"`
	SaveLiveReplays         *bool   `json:"save_live_replays,omitempty" db:"save_live_replays"`
	StreamQuality           *string `json:"stream_quality,omitempty" db:"stream_quality" validate:"omitempty,oneof=auto high medium low"`

	DefaultPostAudience *string `json:"default_post_audience,omitempty" db:"default_post_audience" validate:"omitempty,oneof=public followers private"`
	AllowShares         *bool   `json:"allow_shares,omitempty" db:"allow_shares"`

	MonetizationEnabled *bool `json:"monetization_enabled,omitempty" db:"monetization_enabled"`
	AcceptGifts         *bool `json:"accept_gifts,omitempty" db:"accept_gifts"`
	AcceptTips          *bool `json:"accept_tips,omitempty" db:"accept_tips"`

	CaptionAlwaysOn *bool   `json:"caption_always_on,omitempty" db:"caption_always_on"`
	TextSize        *string `json:"text_size,omitempty" db:"text_size" validate:"omitempty,oneof=small medium large xlarge"`
	HighContrast    *bool   `json:"high_contrast,omitempty" db:"high_contrast"`
	ColorBlindMode  *bool   `json:"color_blind_mode,omitempty" db:"color_blind_mode"`
	ReduceMotion    *bool   `json:"reduce_motion,omitempty" db:"reduce_motion"`
	HapticFeedback  *bool   `json:"haptic_feedback,omitempty" db:"haptic_feedback"`

	ScreenTimeLimitMinutes *int  `json:"screen_time_limit_minutes,omitempty" db:"screen_time_limit_minutes" validate:"omitnil,min=0,max=1440"`
	ScreenTimeEnabled      *bool `json:"screen_time_enabled,omitempty" db:"screen_time_enabled"`
	RestrictedMode         *bool `json:"restricted_mode,omitempty" db:"restricted_mode"`
}

func (p *SettingsPatch) Validate() error {
	return Validate(p)
}

// Columns returns the set fields keyed by column name.
func (p *SettingsPatch) Columns() map[string]interface{} {
	columns := make(map[string]interface{})
	v := reflect.ValueOf(p).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.IsNil() {
			continue
		}
		columns[t.Field(i).Tag.Get("db")] = field.Elem().Interface()
	}
	return columns
}

func (p *SettingsPatch) Empty() bool {
	return len(p.Columns()) == 0
}

// Apply copies the set fields of p onto s.
func (p *SettingsPatch) Apply(s *Settings) {
	pv := reflect.ValueOf(p).Elem()
	sv := reflect.ValueOf(s).Elem()
	pt := pv.Type()
	for i := 0; i < pt.NumField(); i++ {
		field := pv.Field(i)
		if field.IsNil() {
			continue
		}
		target := sv.FieldByName(pt.Field(i).Name)
		if !target.IsValid() {
			panic(fmt.Sprintf("settings has no field %s", pt.Field(i).Name))
		}
		target.Set(field.Elem())
	}
}
