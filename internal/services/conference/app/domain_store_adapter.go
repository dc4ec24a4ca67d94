package server

import (
	"context"
	"errors"
	"time"

	"github.com/openconf/openconf/internal/services/conference/domain/conflict"
	"github.com/openconf/openconf/internal/services/conference/domain/notify"
	"github.com/openconf/openconf/internal/services/conference/domain/role"
	"github.com/openconf/openconf/internal/services/conference/domain/settings"
	"github.com/openconf/openconf/internal/services/conference/storage"
)

// roleStoreAdapter bridges the role domain onto the storage contracts.
type roleStoreAdapter struct {
	users       storage.UserStore
	conferences storage.ConferenceStore
	tracks      storage.TrackStore
	roles       storage.RoleStore
	clock       func() time.Time
}

func (a *roleStoreAdapter) GetUser(ctx context.Context, userID string) (role.User, error) {
	record, err := a.users.GetUser(ctx, userID)
	if err != nil {
		return role.User{}, mapRoleErr(err)
	}
	return role.User{
		ID:      record.ID,
		Email:   record.Email,
		Name:    record.Name,
		RoleIDs: record.RoleIDs,
	}, nil
}

func (a *roleStoreAdapter) GetConference(ctx context.Context, conferenceID string) (role.Conference, error) {
	record, err := a.conferences.GetConference(ctx, conferenceID)
	if err != nil {
		return role.Conference{}, mapRoleErr(err)
	}
	return role.Conference{
		ID:      record.ID,
		Name:    record.Name,
		EndDate: record.EndDate,
	}, nil
}

func (a *roleStoreAdapter) GetTrack(ctx context.Context, trackID string) (role.Track, error) {
	record, err := a.tracks.GetTrack(ctx, trackID)
	if err != nil {
		return role.Track{}, mapRoleErr(err)
	}
	return role.Track{
		ID:           record.ID,
		ConferenceID: record.ConferenceID,
		Name:         record.Name,
	}, nil
}

func (a *roleStoreAdapter) PutRole(ctx context.Context, grant role.Role) error {
	return a.roles.PutRole(ctx, storage.RoleRecord{
		ID:           grant.ID,
		ConferenceID: grant.ConferenceID,
		TrackID:      grant.TrackID,
		Position:     string(grant.Position),
		Active:       grant.Active,
		CreatedAt:    grant.CreatedAt,
		UpdatedAt:    grant.CreatedAt,
	})
}

func (a *roleStoreAdapter) GetRole(ctx context.Context, roleID string) (role.Role, error) {
	record, err := a.roles.GetRole(ctx, roleID)
	if err != nil {
		return role.Role{}, mapRoleErr(err)
	}
	position, err := role.ParsePosition(record.Position)
	if err != nil {
		return role.Role{}, err
	}
	return role.Role{
		ID:           record.ID,
		ConferenceID: record.ConferenceID,
		TrackID:      record.TrackID,
		Position:     position,
		Active:       record.Active,
		CreatedAt:    record.CreatedAt,
	}, nil
}

func (a *roleStoreAdapter) SetRoleActive(ctx context.Context, roleID string, active bool) error {
	if err := a.roles.SetRoleActive(ctx, roleID, active, a.clock().UTC()); err != nil {
		return mapRoleErr(err)
	}
	return nil
}

func (a *roleStoreAdapter) AttachRoleToUser(ctx context.Context, userID string, roleID string) (bool, error) {
	attached, err := a.users.AttachRoleToUser(ctx, userID, roleID)
	if err != nil {
		return false, mapRoleErr(err)
	}
	return attached, nil
}

func (a *roleStoreAdapter) DetachRolesFromUser(ctx context.Context, userID string, roleIDs []string) error {
	return mapRoleErr(a.users.DetachRolesFromUser(ctx, userID, roleIDs))
}

func (a *roleStoreAdapter) AddSuperchair(ctx context.Context, conferenceID string, userID string) error {
	return mapRoleErr(a.conferences.AddSuperchair(ctx, conferenceID, userID))
}

func (a *roleStoreAdapter) AddTrackChair(ctx context.Context, trackID string, userID string) error {
	return mapRoleErr(a.tracks.AddTrackChair(ctx, trackID, userID))
}

func (a *roleStoreAdapter) AddTrackMember(ctx context.Context, trackID string, userID string) error {
	return mapRoleErr(a.tracks.AddTrackMember(ctx, trackID, userID))
}

func (a *roleStoreAdapter) ListUsersWithRoles(ctx context.Context) ([]role.User, error) {
	records, err := a.users.ListUsersWithRoles(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]role.User, 0, len(records))
	for _, record := range records {
		users = append(users, role.User{
			ID:      record.ID,
			Email:   record.Email,
			Name:    record.Name,
			RoleIDs: record.RoleIDs,
		})
	}
	return users, nil
}

func mapRoleErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return role.ErrNotFound
	}
	return err
}

// settingsStoreAdapter bridges the settings domain onto the storage contracts.
type settingsStoreAdapter struct {
	conferences storage.ConferenceStore
	tracks      storage.TrackStore
}

func (a *settingsStoreAdapter) GetConferenceSettings(ctx context.Context, conferenceID string) (settings.Conference, error) {
	record, err := a.conferences.GetConference(ctx, conferenceID)
	if err != nil {
		return settings.Conference{}, mapSettingsErr(err)
	}
	return settings.Conference{
		ID:       record.ID,
		Settings: settingsFromRecords(record.Settings),
	}, nil
}

func (a *settingsStoreAdapter) PutConferenceSettings(ctx context.Context, conferenceID string, values settings.Map) error {
	return mapSettingsErr(a.conferences.UpdateConferenceSettings(ctx, conferenceID, settingsToRecords(values)))
}

func (a *settingsStoreAdapter) ListTracksByConference(ctx context.Context, conferenceID string) ([]settings.Track, error) {
	records, err := a.tracks.ListTracksByConference(ctx, conferenceID)
	if err != nil {
		return nil, err
	}
	tracks := make([]settings.Track, 0, len(records))
	for _, record := range records {
		tracks = append(tracks, settings.Track{
			ID:       record.ID,
			Settings: settingsFromRecords(record.Settings),
		})
	}
	return tracks, nil
}

func (a *settingsStoreAdapter) PutTrackSettings(ctx context.Context, trackID string, values settings.Map) error {
	return mapSettingsErr(a.tracks.UpdateTrackSettings(ctx, trackID, settingsToRecords(values)))
}

func (a *settingsStoreAdapter) GetTrackSettings(ctx context.Context, trackID string) (settings.Track, string, error) {
	record, err := a.tracks.GetTrack(ctx, trackID)
	if err != nil {
		return settings.Track{}, "", mapSettingsErr(err)
	}
	return settings.Track{
		ID:       record.ID,
		Settings: settingsFromRecords(record.Settings),
	}, record.ConferenceID, nil
}

func mapSettingsErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return settings.ErrNotFound
	}
	return err
}

func settingsToRecords(values settings.Map) map[string]storage.SettingRecord {
	records := make(map[string]storage.SettingRecord, len(values))
	for key, value := range values {
		records[key] = storage.SettingRecord{Value: value.Value, Scope: string(value.Scope)}
	}
	return records
}

func settingsFromRecords(records map[string]storage.SettingRecord) settings.Map {
	values := make(settings.Map, len(records))
	for key, record := range records {
		values[key] = settings.ScopedValue{Value: record.Value, Scope: settings.Scope(record.Scope)}
	}
	return values
}

// conflictStoreAdapter bridges conflict detection onto the storage contracts.
type conflictStoreAdapter struct {
	users  storage.UserStore
	tracks storage.TrackStore
	papers storage.PaperStore
}

func (a *conflictStoreAdapter) ListTrackMembers(ctx context.Context, trackID string) ([]conflict.Profile, error) {
	records, err := a.tracks.ListTrackMemberProfiles(ctx, trackID)
	if err != nil {
		return nil, err
	}
	profiles := make([]conflict.Profile, 0, len(records))
	for _, record := range records {
		profiles = append(profiles, toConflictProfile(record))
	}
	return profiles, nil
}

func (a *conflictStoreAdapter) ListTrackPapers(ctx context.Context, trackID string) ([]conflict.Paper, error) {
	records, err := a.papers.ListPapersByTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	papers := make([]conflict.Paper, 0, len(records))
	for _, record := range records {
		papers = append(papers, conflict.Paper{
			ID:         record.ID,
			Title:      record.Title,
			RawAuthors: record.RawAuthors,
		})
	}
	return papers, nil
}

func (a *conflictStoreAdapter) GetUserByEmail(ctx context.Context, email string) (conflict.Profile, error) {
	record, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return conflict.Profile{}, conflict.ErrNotFound
		}
		return conflict.Profile{}, err
	}
	return toConflictProfile(record), nil
}

func toConflictProfile(record storage.UserRecord) conflict.Profile {
	return conflict.Profile{
		ID:               record.ID,
		Name:             record.Name,
		Email:            record.Email,
		Affiliation:      record.Affiliation,
		PastAffiliations: record.PastAffiliations,
	}
}

// notifyStoreAdapter bridges the inbox domain onto the storage contracts.
type notifyStoreAdapter struct {
	notifications storage.NotificationStore
}

func (a *notifyStoreAdapter) GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID string, dedupeKey string) (notify.Notification, error) {
	record, err := a.notifications.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
	if err != nil {
		return notify.Notification{}, mapNotifyErr(err)
	}
	return toDomainNotification(record), nil
}

func (a *notifyStoreAdapter) PutNotification(ctx context.Context, notification notify.Notification) error {
	return mapNotifyErr(a.notifications.PutNotification(ctx, storage.NotificationRecord{
		ID:              notification.ID,
		RecipientUserID: notification.RecipientUserID,
		Title:           notification.Title,
		Body:            notification.Body,
		Link:            notification.Link,
		DedupeKey:       notification.DedupeKey,
		CreatedAt:       notification.CreatedAt,
		ReadAt:          notification.ReadAt,
	}))
}

func (a *notifyStoreAdapter) ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (notify.Page, error) {
	page, err := a.notifications.ListNotificationsByRecipient(ctx, recipientUserID, pageSize, pageToken)
	if err != nil {
		return notify.Page{}, err
	}
	out := notify.Page{
		Notifications: make([]notify.Notification, 0, len(page.Notifications)),
		NextPageToken: page.NextPageToken,
	}
	for _, record := range page.Notifications {
		out.Notifications = append(out.Notifications, toDomainNotification(record))
	}
	return out, nil
}

func (a *notifyStoreAdapter) MarkAllNotificationsRead(ctx context.Context, recipientUserID string, readAt time.Time) (int, error) {
	return a.notifications.MarkAllNotificationsRead(ctx, recipientUserID, readAt)
}

func toDomainNotification(record storage.NotificationRecord) notify.Notification {
	return notify.Notification{
		ID:              record.ID,
		RecipientUserID: record.RecipientUserID,
		Title:           record.Title,
		Body:            record.Body,
		Link:            record.Link,
		DedupeKey:       record.DedupeKey,
		CreatedAt:       record.CreatedAt,
		ReadAt:          record.ReadAt,
	}
}

func mapNotifyErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return notify.ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return notify.ErrConflict
	default:
		return err
	}
}

// inboxNotifier delivers role appointment notifications into the inbox.
type inboxNotifier struct {
	inbox *notify.Service
}

func (n *inboxNotifier) Send(ctx context.Context, to string, title string, content string) error {
	_, err := n.inbox.Send(ctx, notify.SendInput{
		RecipientUserID: to,
		Title:           title,
		Body:            content,
	})
	return err
}
