// Package domain defines core entities and ports for the auto-reply engine.
package domain

import (
	"context"
	"time"
)

// User is the identity/credential/quota-accounting record for one operator.
// Created on first identity sync; mutated by credential refresh and reply
// accounting; destroyed only by explicit deletion (cascades to owned rows).
type User struct {
	ID                  string
	Email               string
	ExternalIdentityID  string
	ChannelID           string
	ChannelName         string
	ChannelThumbnailURL string

	AccessCredential    string
	RefreshCredential   string
	CredentialExpiresAt time.Time

	DailyRepliesUsed int
	QuotaResetDate   time.Time // truncated to a date; see QuotaAccountant

	CreatedAt time.Time
	UpdatedAt time.Time
}

// VideoSettings holds the operator-configured automation parameters for one
// enrolled video.
type VideoSettings struct {
	Enabled         bool     `validate:"-"`
	Keywords        []string `validate:"required,min=1,dive,required"`
	Templates       []string `validate:"required,min=1,dive,required"`
	IntervalMinutes int      `validate:"min=1,max=1440"`
}

// Video is an enrolled video and its automation settings. last_checked_at is
// the only field mutated by the engine hot path (see DueSelector).
type Video struct {
	ID              string
	UserID          string
	ExternalVideoID string

	Title         string
	Description   string
	ThumbnailURL  string
	PublishedAt   time.Time
	ViewCount     int64
	CommentCount  int64

	Settings VideoSettings

	LastCheckedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RepliedComment is an immutable audit record keyed by ExternalCommentID; its
// presence is the dedup oracle (I1/I2 in spec.md §3).
type RepliedComment struct {
	ExternalCommentID string
	VideoID           string
	UserID            string
	CommentText       string
	CommentAuthor     string
	KeywordMatched    string
	ReplyText         string
	RepliedAt         time.Time
}

// Template is user-scoped saved reply text. It is a UI convenience with no
// role in the engine hot path beyond seeding a video's Settings.Templates.
type Template struct {
	ID        string
	UserID    string
	Text      string
	CreatedAt time.Time
}

// CommentThread is the engine's view of one top-level comment fetched from
// the external platform, newest-first.
type CommentThread struct {
	ExternalCommentID string
	AuthorDisplayName string
	TextDisplay       string
	PublishedAt       time.Time

	// MatchedKeyword is set by the keyword filter; empty until matched.
	MatchedKeyword string
}

// VideoDescriptor is one entry from the platform's uploads-playlist + video
// statistics merge (spec.md §4.D list_channel_videos).
type VideoDescriptor struct {
	ExternalVideoID string
	Title           string
	Description     string
	ThumbnailURL    string
	PublishedAt     time.Time
	ViewCount       int64
	CommentCount    int64
}

// PostedReply is the platform's acknowledgement of a posted reply.
type PostedReply struct {
	ExternalReplyID string
	ParentCommentID string
	Text            string
}

// CommentResult is the per-comment outcome of one ReplyEngine invocation.
type CommentResult struct {
	ExternalCommentID string `json:"external_comment_id"`
	Success           bool   `json:"success"`
	ReplyText         string `json:"reply_text,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ReplyStats aggregates one ReplyEngine invocation's outcome.
type ReplyStats struct {
	TotalComments int             `json:"total_comments"`
	Matched       int             `json:"matched"`
	New           int             `json:"new"`
	Succeeded     int             `json:"succeeded"`
	Failed        int             `json:"failed"`
	Results       []CommentResult `json:"results,omitempty"`
}

// ReplyTaskPayload is the unit of work dispatched through the TaskRunner for
// one video, one tick (or one manual trigger).
type ReplyTaskPayload struct {
	VideoID     string
	UserID      string
	Manual      bool
	MaxComments int
}

// Ports

// UserRepository persists identity, credential, and quota-counter state.
type UserRepository interface {
	Get(ctx context.Context, id string) (User, error)
	GetByExternalIdentityID(ctx context.Context, externalID string) (User, error)
	Upsert(ctx context.Context, u User) (string, error)
	UpdateCredential(ctx context.Context, userID, access string, expiresAt time.Time) error
	Delete(ctx context.Context, userID string) error
}

// VideoRepository is the VideoIndex (component K): CRUD over enrolled videos
// plus the due-selection-and-stamp operation (component H).
type VideoRepository interface {
	Get(ctx context.Context, id string) (Video, error)
	GetSettings(ctx context.Context, id string) (VideoSettings, error)
	Upsert(ctx context.Context, v Video) (string, error)
	// DueAndStamp returns enabled videos whose last_checked_at + interval <=
	// now, atomically stamping last_checked_at := now for each returned row
	// before returning (spec.md §4.H, invariant I5).
	DueAndStamp(ctx context.Context, now time.Time) ([]Video, error)
}

// RepliedCommentRepository is the DedupStore's authoritative backing store
// (component A).
type RepliedCommentRepository interface {
	ContainsAny(ctx context.Context, externalCommentIDs []string) (map[string]bool, error)
	Insert(ctx context.Context, r RepliedComment) (inserted bool, err error)
	ListIDsForUser(ctx context.Context, userID string) ([]string, error)
	CountForUserToday(ctx context.Context, userID string, today time.Time) (int64, error)
	// StatsForUser and DailyCounts back the operator-facing analytics surface;
	// they are not on the ReplyEngine hot path.
	StatsForUser(ctx context.Context, userID string) (ReplyStats, error)
	DailyCounts(ctx context.Context, userID string, days int) (map[string]int64, error)
}

// TemplateRepository is a UI convenience, out of the engine hot path.
type TemplateRepository interface {
	ListForUser(ctx context.Context, userID string) ([]Template, error)
	Create(ctx context.Context, t Template) (string, error)
	Delete(ctx context.Context, id string) error
}

// PlatformClient wraps the external video platform's REST surface
// (component D).
type PlatformClient interface {
	ListChannelVideos(ctx context.Context, channelID string, max int) ([]VideoDescriptor, error)
	ListVideoComments(ctx context.Context, externalVideoID string, max int) ([]CommentThread, error)
	PostReply(ctx context.Context, parentCommentID, text string) (PostedReply, error)
}

// CredentialHolder owns the current access/refresh credential pair for one
// user (component C).
type CredentialHolder interface {
	Current() (access string, expiresAt time.Time)
	Refresh(ctx context.Context) (access string, expiresAt time.Time, err error)
}

// QuotaAccountant enforces the dual-scope daily budget (component B).
type QuotaAccountant interface {
	RemainingGlobal(ctx context.Context) (int, error)
	RemainingForUser(ctx context.Context, userID string) (int, error)
	CanReserve(ctx context.Context, cost int, userID string) (bool, error)
	Reserve(ctx context.Context, cost int, userID string) error
	UserReplyCount(ctx context.Context, userID string) (int64, error)
}
