// Package event defines the canonical telemetry records exchanged with the
// collector: the immutable Event snapshot, its durable StoredEvent wrapper,
// and the millisecond-precision Timestamp both carry on the wire.
package event

// Type identifies the category of a tracked occurrence.
type Type string

const (
	TypeScreenView      Type = "screen_view"
	TypeScreenExit      Type = "screen_exit"
	TypeVideoImpression Type = "video_impression"
	TypeVideoPlay       Type = "video_play"
	TypeVideoProgress   Type = "video_progress"
	TypeVideoPause      Type = "video_pause"
	TypeVideoComplete   Type = "video_complete"
	TypePushReceived    Type = "push_received"
	TypePushOpened      Type = "push_opened"
	TypeConversion      Type = "conversion"
	TypeCustom          Type = "custom"
	TypeHeartbeat       Type = "heartbeat"
)

// Event is one tracked occurrence, created exactly once and never mutated
// afterwards. The session and user ids reflect identity state at the moment
// of creation.
//
// Optional fields are pointers (or nil-able maps/slices): a nil value is
// omitted from the wire payload entirely, which is distinct from sending a
// zero. Batches are transmitted as a JSON array of these objects.
type Event struct {
	SiteID     string    `json:"site_id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Type       Type      `json:"event_type"`
	PageURL    string    `json:"page_url,omitempty"`
	PageTitle  string    `json:"page_title,omitempty"`
	Referrer   string    `json:"referrer,omitempty"`
	DeviceType string    `json:"device_type,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IsLoggedIn bool      `json:"is_logged_in"`
	Timestamp  Timestamp `json:"timestamp"`

	// Duration is whole seconds spent on the page, set on screen_exit.
	Duration    *int64         `json:"duration,omitempty"`
	ScrollDepth *int           `json:"scroll_depth,omitempty"`
	CustomData  map[string]any `json:"custom_data,omitempty"`

	VideoID       *string `json:"video_id,omitempty"`
	VideoTitle    *string `json:"video_title,omitempty"`
	VideoDuration *int64  `json:"video_duration,omitempty"`
	VideoPosition *int64  `json:"video_position,omitempty"`

	ArticleID      *string `json:"article_id,omitempty"`
	ArticleSection *string `json:"article_section,omitempty"`
	ArticleAuthor  *string `json:"article_author,omitempty"`

	PreviousPageURL   *string `json:"previous_page_url,omitempty"`
	PreviousPageTitle *string `json:"previous_page_title,omitempty"`

	ScreenWidth  *int `json:"screen_width,omitempty"`
	ScreenHeight *int `json:"screen_height,omitempty"`

	UTMSource   *string `json:"utm_source,omitempty"`
	UTMMedium   *string `json:"utm_medium,omitempty"`
	UTMCampaign *string `json:"utm_campaign,omitempty"`
	UTMTerm     *string `json:"utm_term,omitempty"`
	UTMContent  *string `json:"utm_content,omitempty"`

	ActiveTimeSeconds *int64 `json:"active_time_seconds,omitempty"`
	PingCounter       *int64 `json:"ping_counter,omitempty"`

	UserType     *string  `json:"user_type,omitempty"`
	UserSegments []string `json:"user_segments,omitempty"`
}

// StoredEvent wraps an Event with delivery bookkeeping so it can survive
// process death. CreatedAt is unix epoch milliseconds; RetryCount only ever
// grows, and the offline store drops the record once it passes the
// configured maximum.
type StoredEvent struct {
	ID         string `json:"id"`
	Event      Event  `json:"event"`
	CreatedAt  int64  `json:"createdAt"`
	RetryCount int    `json:"retryCount"`
}

// DeviceInfo is the host-supplied device context stamped on every event.
// Zero dimensions are treated as unknown and omitted.
type DeviceInfo struct {
	Type         string `json:"device_type" yaml:"deviceType"`
	UserAgent    string `json:"user_agent" yaml:"userAgent"`
	ScreenWidth  int    `json:"screen_width" yaml:"screenWidth"`
	ScreenHeight int    `json:"screen_height" yaml:"screenHeight"`
}
