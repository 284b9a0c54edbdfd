// Package composer turns typed tracking calls into canonical events. It
// carries the per-session derived state every event snapshots: the current
// screen, attribution, and the reader's classification.
package composer

import (
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/newsroomkit/beacon-go/internal/identity"
	"github.com/newsroomkit/beacon-go/pkg/event"
)

// Sink receives finished events; the dispatcher implements it.
type Sink interface {
	Enqueue(event.Event)
}

// VideoInfo identifies the media a video event refers to. ID is required;
// Title, Duration and Position travel when known.
type VideoInfo struct {
	ID       string
	Title    string
	Duration int64
	Position int64
}

// Conversion describes a completed goal, e.g. a subscription purchase.
type Conversion struct {
	ID         string
	Type       string
	Value      float64
	Currency   string
	Properties map[string]any
}

// PendingConversion is the queued form embedded into the next heartbeat so
// engagement and conversions arrive together. Inclusion is at most once:
// the queue is cleared when the heartbeat is composed, not when delivered.
type PendingConversion struct {
	ID         string         `json:"conversion_id"`
	Type       string         `json:"conversion_type,omitempty"`
	Value      float64        `json:"value,omitempty"`
	Currency   string         `json:"currency,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

type screen struct {
	url       string
	title     string
	enteredAt time.Time
}

type attribution struct {
	referrer string
	source   string
	medium   string
	campaign string
	term     string
	content  string
}

// Composer state mutates in place and is read at composition time, so an
// event always reflects what was known the instant it was created. Tracking
// calls never block and never return errors; contract violations are logged
// and dropped.
type Composer struct {
	siteID string
	device event.DeviceInfo
	ids    *identity.Manager
	sink   Sink
	clk    clock.Clock
	log    *zap.Logger

	mu          sync.Mutex
	current     *screen
	previous    *screen
	attr        attribution
	loggedIn    bool
	userType    string
	segments    []string
	conversions []PendingConversion
	scrollDepth int
	scrollSeen  bool
}

func New(siteID string, device event.DeviceInfo, ids *identity.Manager, sink Sink, clk clock.Clock, log *zap.Logger) *Composer {
	return &Composer{
		siteID: siteID,
		device: device,
		ids:    ids,
		sink:   sink,
		clk:    clk,
		log:    log,
	}
}

// Article is optional editorial metadata stamped on a screen view, so
// section and author reporting need no URL joins server-side.
type Article struct {
	ID      string
	Section string
	Author  string
}

// TrackScreenView closes out the previous screen with a synthesized
// screen_exit carrying dwell time and scroll depth, then opens the new one.
func (c *Composer) TrackScreenView(pageURL, pageTitle string) {
	c.screenView(pageURL, pageTitle, nil)
}

// TrackArticleView is a screen view carrying article metadata.
func (c *Composer) TrackArticleView(pageURL, pageTitle string, article Article) {
	if article.ID == "" {
		c.log.Warn("article view without article id, call ignored",
			zap.String("page_url", pageURL))
		return
	}
	c.screenView(pageURL, pageTitle, &article)
}

func (c *Composer) screenView(pageURL, pageTitle string, article *Article) {
	if pageURL == "" {
		c.log.Warn("screen view without url, call ignored")
		return
	}
	c.ids.RecordActivity()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	if c.current != nil {
		exit := c.compose(event.TypeScreenExit)
		exit.Duration = int64Ptr(int64(now.Sub(c.current.enteredAt) / time.Second))
		if c.scrollSeen {
			exit.ScrollDepth = intPtr(c.scrollDepth)
		}
		c.sink.Enqueue(exit)
		c.previous = c.current
	}

	c.current = &screen{url: pageURL, title: pageTitle, enteredAt: now}
	c.scrollDepth = 0
	c.scrollSeen = false

	view := c.compose(event.TypeScreenView)
	if c.previous != nil {
		view.PreviousPageURL = strPtr(c.previous.url)
		if c.previous.title != "" {
			view.PreviousPageTitle = strPtr(c.previous.title)
		}
	}
	if article != nil {
		view.ArticleID = strPtr(article.ID)
		if article.Section != "" {
			view.ArticleSection = strPtr(article.Section)
		}
		if article.Author != "" {
			view.ArticleAuthor = strPtr(article.Author)
		}
	}
	c.sink.Enqueue(view)
}

func (c *Composer) TrackVideoImpression(v VideoInfo) { c.video(event.TypeVideoImpression, v) }
func (c *Composer) TrackVideoPlay(v VideoInfo)       { c.video(event.TypeVideoPlay, v) }
func (c *Composer) TrackVideoProgress(v VideoInfo)   { c.video(event.TypeVideoProgress, v) }
func (c *Composer) TrackVideoPause(v VideoInfo)      { c.video(event.TypeVideoPause, v) }
func (c *Composer) TrackVideoComplete(v VideoInfo)   { c.video(event.TypeVideoComplete, v) }

func (c *Composer) video(t event.Type, v VideoInfo) {
	if v.ID == "" {
		c.log.Warn("video event without video id, call ignored",
			zap.String("event_type", string(t)))
		return
	}
	c.ids.RecordActivity()

	c.mu.Lock()
	defer c.mu.Unlock()

	ev := c.compose(t)
	ev.VideoID = strPtr(v.ID)
	if v.Title != "" {
		ev.VideoTitle = strPtr(v.Title)
	}
	if v.Duration > 0 {
		ev.VideoDuration = int64Ptr(v.Duration)
	}
	if v.Position > 0 || t == event.TypeVideoProgress || t == event.TypeVideoPause {
		ev.VideoPosition = int64Ptr(v.Position)
	}
	c.sink.Enqueue(ev)
}

// TrackPushReceived records a push notification arriving while the app can
// observe it; payload details ride in custom_data.
func (c *Composer) TrackPushReceived(data map[string]any) {
	c.push(event.TypePushReceived, data)
}

// TrackPushOpened records the user entering the app through a notification.
func (c *Composer) TrackPushOpened(data map[string]any) {
	c.push(event.TypePushOpened, data)
}

func (c *Composer) push(t event.Type, data map[string]any) {
	c.ids.RecordActivity()

	c.mu.Lock()
	defer c.mu.Unlock()

	ev := c.compose(t)
	ev.CustomData = copyData(data)
	c.sink.Enqueue(ev)
}

// TrackConversion emits the conversion immediately and queues it for
// embedding into the next heartbeat.
func (c *Composer) TrackConversion(conv Conversion) {
	if conv.ID == "" {
		c.log.Warn("conversion without id, call ignored")
		return
	}
	c.ids.RecordActivity()

	c.mu.Lock()
	defer c.mu.Unlock()

	ev := c.compose(event.TypeConversion)
	data := map[string]any{"conversion_id": conv.ID}
	if conv.Type != "" {
		data["conversion_type"] = conv.Type
	}
	if conv.Value != 0 {
		data["value"] = conv.Value
	}
	if conv.Currency != "" {
		data["currency"] = conv.Currency
	}
	if len(conv.Properties) > 0 {
		data["properties"] = copyData(conv.Properties)
	}
	ev.CustomData = data
	c.sink.Enqueue(ev)

	c.conversions = append(c.conversions, PendingConversion{
		ID:         conv.ID,
		Type:       conv.Type,
		Value:      conv.Value,
		Currency:   conv.Currency,
		Properties: copyData(conv.Properties),
	})
}

// TrackCustom records an app-defined occurrence under custom_data.event_name.
func (c *Composer) TrackCustom(name string, data map[string]any) {
	if name == "" {
		c.log.Warn("custom event without name, call ignored")
		return
	}
	c.ids.RecordActivity()

	c.mu.Lock()
	defer c.mu.Unlock()

	ev := c.compose(event.TypeCustom)
	merged := copyData(data)
	if merged == nil {
		merged = make(map[string]any, 1)
	}
	merged["event_name"] = name
	ev.CustomData = merged
	c.sink.Enqueue(ev)
}

// TrackHeartbeat composes the periodic engagement ping. A ping counts as
// session activity like any other event, so an open app never rotates its
// session mid-stream. Queued conversions are consumed here exactly once,
// whether or not this heartbeat survives delivery.
func (c *Composer) TrackHeartbeat(activeTimeSeconds, pingCounter int64) {
	c.ids.RecordActivity()

	c.mu.Lock()
	defer c.mu.Unlock()

	ev := c.compose(event.TypeHeartbeat)
	ev.ActiveTimeSeconds = int64Ptr(activeTimeSeconds)
	ev.PingCounter = int64Ptr(pingCounter)
	if len(c.conversions) > 0 {
		ev.CustomData = map[string]any{"pending_conversions": c.conversions}
		c.conversions = nil
	}
	c.sink.Enqueue(ev)
}

// RecordScrollDepth keeps the deepest scroll position seen on the current
// screen; it is attached to the screen_exit when the reader moves on.
func (c *Composer) RecordScrollDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	if depth > 100 {
		depth = 100
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.scrollSeen || depth > c.scrollDepth {
		c.scrollDepth = depth
		c.scrollSeen = true
	}
}

// SetAttributionFromURL extracts utm_* parameters from a deep link. Fields
// absent from the link keep their previous values.
func (c *Composer) SetAttributionFromURL(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		c.log.Warn("unparseable attribution url", zap.Error(err))
		return
	}
	q := u.Query()

	c.mu.Lock()
	defer c.mu.Unlock()
	if v := q.Get("utm_source"); v != "" {
		c.attr.source = v
	}
	if v := q.Get("utm_medium"); v != "" {
		c.attr.medium = v
	}
	if v := q.Get("utm_campaign"); v != "" {
		c.attr.campaign = v
	}
	if v := q.Get("utm_term"); v != "" {
		c.attr.term = v
	}
	if v := q.Get("utm_content"); v != "" {
		c.attr.content = v
	}
}

// SetReferrer records where this visit came from.
func (c *Composer) SetReferrer(referrer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attr.referrer = referrer
}

// SetLoggedIn flips the authentication flag carried by subsequent events.
func (c *Composer) SetLoggedIn(loggedIn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedIn = loggedIn
}

// SetUserType classifies the reader, e.g. "subscriber" or "anonymous".
func (c *Composer) SetUserType(userType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userType = userType
}

// SetUserSegments replaces the audience segments stamped on events.
func (c *Composer) SetUserSegments(segments []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments = append([]string(nil), segments...)
}

// compose snapshots identity, screen, attribution and classification into a
// new event. Caller holds the lock.
func (c *Composer) compose(t event.Type) event.Event {
	ev := event.Event{
		SiteID:     c.siteID,
		SessionID:  c.ids.SessionID(),
		UserID:     c.ids.UserID(),
		Type:       t,
		Referrer:   c.attr.referrer,
		DeviceType: c.device.Type,
		UserAgent:  c.device.UserAgent,
		IsLoggedIn: c.loggedIn,
		Timestamp:  event.At(c.clk.Now()),
	}
	if c.current != nil {
		ev.PageURL = c.current.url
		ev.PageTitle = c.current.title
	}
	if c.device.ScreenWidth > 0 {
		ev.ScreenWidth = intPtr(c.device.ScreenWidth)
	}
	if c.device.ScreenHeight > 0 {
		ev.ScreenHeight = intPtr(c.device.ScreenHeight)
	}
	if c.attr.source != "" {
		ev.UTMSource = strPtr(c.attr.source)
	}
	if c.attr.medium != "" {
		ev.UTMMedium = strPtr(c.attr.medium)
	}
	if c.attr.campaign != "" {
		ev.UTMCampaign = strPtr(c.attr.campaign)
	}
	if c.attr.term != "" {
		ev.UTMTerm = strPtr(c.attr.term)
	}
	if c.attr.content != "" {
		ev.UTMContent = strPtr(c.attr.content)
	}
	if c.userType != "" {
		ev.UserType = strPtr(c.userType)
	}
	if len(c.segments) > 0 {
		ev.UserSegments = append([]string(nil), c.segments...)
	}
	return ev
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
