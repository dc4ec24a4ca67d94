// Package storage defines the persistence contracts for conference state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// SettingRecord stores one settings entry: a value plus the scope tag that
// drives propagation. Entries without a scope are non-configurable.
type SettingRecord struct {
	Value any    `json:"value"`
	Scope string `json:"scope,omitempty"`
}

// UserRecord stores one registered user with their attached role grant ids.
type UserRecord struct {
	ID               string
	Name             string
	Email            string
	Affiliation      string
	PastAffiliations []string
	RoleIDs          []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ConferenceRecord stores one conference document.
type ConferenceRecord struct {
	ID            string
	Name          string
	CreatorUserID string
	SuperchairIDs []string
	Settings      map[string]SettingRecord
	EndDate       *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TrackRecord stores one track document inside a conference.
type TrackRecord struct {
	ID           string
	ConferenceID string
	Name         string
	ChairIDs     []string
	MemberIDs    []string
	Settings     map[string]SettingRecord
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PaperRecord stores one submission. RawAuthors keeps the author blob
// verbatim; normalization happens at read time.
type PaperRecord struct {
	ID         string
	TrackID    string
	Title      string
	RawAuthors string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RoleRecord stores one role grant. Grants are deactivated, never deleted.
type RoleRecord struct {
	ID           string
	ConferenceID string
	TrackID      string
	Position     string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NotificationRecord stores one user inbox item.
type NotificationRecord struct {
	ID              string
	RecipientUserID string
	Title           string
	Body            string
	Link            string
	DedupeKey       string
	CreatedAt       time.Time
	ReadAt          *time.Time
}

// NotificationPage stores a paged inbox listing result.
type NotificationPage struct {
	Notifications []NotificationRecord
	NextPageToken string
}

// UserStore persists user records and their role attachments.
type UserStore interface {
	PutUser(ctx context.Context, record UserRecord) error
	GetUser(ctx context.Context, userID string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	// AttachRoleToUser appends a role id with set semantics and reports
	// whether the record changed.
	AttachRoleToUser(ctx context.Context, userID string, roleID string) (bool, error)
	DetachRolesFromUser(ctx context.Context, userID string, roleIDs []string) error
	ListUsersWithRoles(ctx context.Context) ([]UserRecord, error)
}

// ConferenceStore persists conference documents.
type ConferenceStore interface {
	PutConference(ctx context.Context, record ConferenceRecord) error
	GetConference(ctx context.Context, conferenceID string) (ConferenceRecord, error)
	UpdateConferenceSettings(ctx context.Context, conferenceID string, settings map[string]SettingRecord) error
	AddSuperchair(ctx context.Context, conferenceID string, userID string) error
}

// TrackStore persists track documents.
type TrackStore interface {
	PutTrack(ctx context.Context, record TrackRecord) error
	GetTrack(ctx context.Context, trackID string) (TrackRecord, error)
	ListTracksByConference(ctx context.Context, conferenceID string) ([]TrackRecord, error)
	UpdateTrackSettings(ctx context.Context, trackID string, settings map[string]SettingRecord) error
	AddTrackChair(ctx context.Context, trackID string, userID string) error
	AddTrackMember(ctx context.Context, trackID string, userID string) error
	// ListTrackMemberProfiles resolves the track's member roster to user
	// records, skipping ids with no matching user.
	ListTrackMemberProfiles(ctx context.Context, trackID string) ([]UserRecord, error)
}

// PaperStore persists submissions.
type PaperStore interface {
	PutPaper(ctx context.Context, record PaperRecord) error
	ListPapersByTrack(ctx context.Context, trackID string) ([]PaperRecord, error)
}

// RoleStore persists role grants.
type RoleStore interface {
	PutRole(ctx context.Context, record RoleRecord) error
	GetRole(ctx context.Context, roleID string) (RoleRecord, error)
	SetRoleActive(ctx context.Context, roleID string, active bool, updatedAt time.Time) error
}

// NotificationStore persists inbox state.
type NotificationStore interface {
	PutNotification(ctx context.Context, record NotificationRecord) error
	GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID string, dedupeKey string) (NotificationRecord, error)
	ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (NotificationPage, error)
	MarkAllNotificationsRead(ctx context.Context, recipientUserID string, readAt time.Time) (int, error)
}
