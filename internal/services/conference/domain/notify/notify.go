// Package notify keeps per-user inbox notifications produced by role and
// conference lifecycle events.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
	"github.com/openconf/openconf/internal/platform/id"
)

// ErrNotFound indicates a notification record was not found.
var ErrNotFound = errors.New("notification not found")

// ErrConflict indicates a write collided with an existing dedupe key.
var ErrConflict = errors.New("notification conflict")

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Notification is one user-targeted inbox item.
type Notification struct {
	ID              string
	RecipientUserID string
	Title           string
	Body            string
	Link            string
	DedupeKey       string
	CreatedAt       time.Time
	ReadAt          *time.Time
}

// Page is a paged recipient inbox view, newest first.
type Page struct {
	Notifications []Notification
	NextPageToken string
}

// SendInput describes one producer notification request.
type SendInput struct {
	RecipientUserID string
	Title           string
	Body            string
	Link            string
	DedupeKey       string
}

// ListInboxInput configures recipient inbox listing.
type ListInboxInput struct {
	RecipientUserID string
	PageSize        int
	PageToken       string
}

// Store is the persistence boundary for inbox lifecycle behavior.
type Store interface {
	GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID string, dedupeKey string) (Notification, error)
	PutNotification(ctx context.Context, notification Notification) error
	ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (Page, error)
	MarkAllNotificationsRead(ctx context.Context, recipientUserID string, readAt time.Time) (int, error)
}

// Service orchestrates recipient inbox behavior.
type Service struct {
	store Store
	clock func() time.Time
	newID func() (string, error)
}

func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store: store,
		clock: clock,
		newID: newID,
	}
}

// Send stores one notification item, de-duplicating by recipient and dedupe
// key so retried producers do not double-post.
func (s *Service) Send(ctx context.Context, input SendInput) (Notification, error) {
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return Notification{}, apperrors.New(apperrors.CodeNotificationEmptyRecipient, "recipient user id is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Notification{}, apperrors.New(apperrors.CodeNotificationEmptyTitle, "notification title is required")
	}
	dedupeKey := strings.TrimSpace(input.DedupeKey)
	if dedupeKey != "" {
		existing, err := s.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Notification{}, err
		}
	}

	notificationID, err := s.newID()
	if err != nil {
		return Notification{}, err
	}
	notification := Notification{
		ID:              notificationID,
		RecipientUserID: recipientUserID,
		Title:           title,
		Body:            strings.TrimSpace(input.Body),
		Link:            strings.TrimSpace(input.Link),
		DedupeKey:       dedupeKey,
		CreatedAt:       s.clock().UTC(),
	}
	if err := s.store.PutNotification(ctx, notification); err != nil {
		if dedupeKey != "" && errors.Is(err, ErrConflict) {
			// Lost a race with a concurrent producer; their item wins.
			existing, lookupErr := s.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
			if lookupErr == nil {
				return existing, nil
			}
			return Notification{}, err
		}
		return Notification{}, err
	}
	return notification, nil
}

// ListInbox lists recipient inbox notifications newest first.
func (s *Service) ListInbox(ctx context.Context, input ListInboxInput) (Page, error) {
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return Page{}, apperrors.New(apperrors.CodeNotificationEmptyRecipient, "recipient user id is required")
	}
	pageSize := input.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return s.store.ListNotificationsByRecipient(ctx, recipientUserID, pageSize, strings.TrimSpace(input.PageToken))
}

// MarkAllRead acknowledges every unread notification for the recipient and
// reports how many were flipped.
func (s *Service) MarkAllRead(ctx context.Context, recipientUserID string) (int, error) {
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return 0, apperrors.New(apperrors.CodeNotificationEmptyRecipient, "recipient user id is required")
	}
	return s.store.MarkAllNotificationsRead(ctx, recipientUserID, s.clock().UTC())
}
