// Package sqlite provides SQLite-backed persistence for conference state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/openconf/openconf/internal/platform/storage/sqlitemigrate"
	"github.com/openconf/openconf/internal/services/conference/storage"
	"github.com/openconf/openconf/internal/services/conference/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for every conference record type.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a conference SQLite store at the provided path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutUser upserts one user row.
func (s *Store) PutUser(ctx context.Context, record storage.UserRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("user id is required")
	}
	pastAffiliations, err := marshalStrings(record.PastAffiliations)
	if err != nil {
		return fmt.Errorf("encode past affiliations: %w", err)
	}
	roleIDs, err := marshalStrings(record.RoleIDs)
	if err != nil {
		return fmt.Errorf("encode role ids: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, name, email, affiliation, past_affiliations, role_ids, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	email = excluded.email,
	affiliation = excluded.affiliation,
	past_affiliations = excluded.past_affiliations,
	role_ids = excluded.role_ids,
	updated_at = excluded.updated_at
`,
		record.ID,
		strings.TrimSpace(record.Name),
		strings.ToLower(strings.TrimSpace(record.Email)),
		strings.TrimSpace(record.Affiliation),
		pastAffiliations,
		roleIDs,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

const userColumns = "id, name, email, affiliation, past_affiliations, role_ids, created_at, updated_at"

// GetUser loads one user row by id.
func (s *Store) GetUser(ctx context.Context, userID string) (storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.UserRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	record, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UserRecord{}, storage.ErrNotFound
		}
		return storage.UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	return record, nil
}

// GetUserByEmail loads one user row by lowercased email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.UserRecord{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return storage.UserRecord{}, storage.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	record, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UserRecord{}, storage.ErrNotFound
		}
		return storage.UserRecord{}, fmt.Errorf("get user by email: %w", err)
	}
	return record, nil
}

// AttachRoleToUser appends one role id to the user's role list with set
// semantics. Returns false without error when the id was already present.
func (s *Store) AttachRoleToUser(ctx context.Context, userID string, roleID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return false, fmt.Errorf("role id is required")
	}
	changed := false
	err := s.mutateUserRoleIDs(ctx, userID, func(roleIDs []string) []string {
		for _, existing := range roleIDs {
			if existing == roleID {
				return roleIDs
			}
		}
		changed = true
		return append(roleIDs, roleID)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// DetachRolesFromUser removes the given role ids from the user's role list.
func (s *Store) DetachRolesFromUser(ctx context.Context, userID string, roleIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roleIDs) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		drop[id] = true
	}
	return s.mutateUserRoleIDs(ctx, userID, func(current []string) []string {
		kept := current[:0]
		for _, id := range current {
			if !drop[id] {
				kept = append(kept, id)
			}
		}
		return kept
	})
}

func (s *Store) mutateUserRoleIDs(ctx context.Context, userID string, mutate func([]string) []string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin role list update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var encoded string
	if err := tx.QueryRowContext(ctx, `SELECT role_ids FROM users WHERE id = ?`, userID).Scan(&encoded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("load role ids: %w", err)
	}
	roleIDs, err := unmarshalStrings(encoded)
	if err != nil {
		return fmt.Errorf("decode role ids: %w", err)
	}
	updated, err := marshalStrings(mutate(roleIDs))
	if err != nil {
		return fmt.Errorf("encode role ids: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET role_ids = ?, updated_at = ? WHERE id = ?`,
		updated, toMillis(time.Now()), userID); err != nil {
		return fmt.Errorf("store role ids: %w", err)
	}
	return tx.Commit()
}

// ListUsersWithRoles returns every user whose role list is non-empty.
func (s *Store) ListUsersWithRoles(ctx context.Context) ([]storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE role_ids <> '[]' AND role_ids <> ''
ORDER BY id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list users with roles: %w", err)
	}
	defer rows.Close()

	var records []storage.UserRecord
	for rows.Next() {
		record, scanErr := scanUser(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan user row: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return records, nil
}

// PutConference upserts one conference row.
func (s *Store) PutConference(ctx context.Context, record storage.ConferenceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("conference id is required")
	}
	superchairs, err := marshalStrings(record.SuperchairIDs)
	if err != nil {
		return fmt.Errorf("encode superchair ids: %w", err)
	}
	settings, err := marshalSettings(record.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	var endDate sql.NullInt64
	if record.EndDate != nil {
		endDate = sql.NullInt64{Int64: toMillis(*record.EndDate), Valid: true}
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO conferences (id, name, creator_user_id, superchair_ids, settings, end_date, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	creator_user_id = excluded.creator_user_id,
	superchair_ids = excluded.superchair_ids,
	settings = excluded.settings,
	end_date = excluded.end_date,
	updated_at = excluded.updated_at
`,
		record.ID,
		strings.TrimSpace(record.Name),
		strings.TrimSpace(record.CreatorUserID),
		superchairs,
		settings,
		endDate,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put conference: %w", err)
	}
	return nil
}

// GetConference loads one conference row by id.
func (s *Store) GetConference(ctx context.Context, conferenceID string) (storage.ConferenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ConferenceRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, creator_user_id, superchair_ids, settings, end_date, created_at, updated_at
FROM conferences
WHERE id = ?
`, conferenceID)
	record, err := scanConference(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ConferenceRecord{}, storage.ErrNotFound
		}
		return storage.ConferenceRecord{}, fmt.Errorf("get conference: %w", err)
	}
	return record, nil
}

// UpdateConferenceSettings replaces the settings document of one conference.
func (s *Store) UpdateConferenceSettings(ctx context.Context, conferenceID string, settings map[string]storage.SettingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := marshalSettings(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	result, err := s.sqlDB.ExecContext(ctx, `UPDATE conferences SET settings = ?, updated_at = ? WHERE id = ?`,
		encoded, toMillis(time.Now()), conferenceID)
	if err != nil {
		return fmt.Errorf("update conference settings: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update conference settings rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddSuperchair appends one user id to the conference superchair list.
func (s *Store) AddSuperchair(ctx context.Context, conferenceID string, userID string) error {
	return s.appendToList(ctx, "conferences", "superchair_ids", conferenceID, userID)
}

// PutTrack upserts one track row.
func (s *Store) PutTrack(ctx context.Context, record storage.TrackRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("track id is required")
	}
	chairs, err := marshalStrings(record.ChairIDs)
	if err != nil {
		return fmt.Errorf("encode chair ids: %w", err)
	}
	members, err := marshalStrings(record.MemberIDs)
	if err != nil {
		return fmt.Errorf("encode member ids: %w", err)
	}
	settings, err := marshalSettings(record.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO tracks (id, conference_id, name, chair_ids, member_ids, settings, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	conference_id = excluded.conference_id,
	name = excluded.name,
	chair_ids = excluded.chair_ids,
	member_ids = excluded.member_ids,
	settings = excluded.settings,
	updated_at = excluded.updated_at
`,
		record.ID,
		strings.TrimSpace(record.ConferenceID),
		strings.TrimSpace(record.Name),
		chairs,
		members,
		settings,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put track: %w", err)
	}
	return nil
}

const trackColumns = "id, conference_id, name, chair_ids, member_ids, settings, created_at, updated_at"

// GetTrack loads one track row by id.
func (s *Store) GetTrack(ctx context.Context, trackID string) (storage.TrackRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TrackRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, trackID)
	record, err := scanTrack(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TrackRecord{}, storage.ErrNotFound
		}
		return storage.TrackRecord{}, fmt.Errorf("get track: %w", err)
	}
	return record, nil
}

// ListTracksByConference lists every track of one conference.
func (s *Store) ListTracksByConference(ctx context.Context, conferenceID string) ([]storage.TrackRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE conference_id = ? ORDER BY id ASC`, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var records []storage.TrackRecord
	for rows.Next() {
		record, scanErr := scanTrack(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan track row: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate track rows: %w", err)
	}
	return records, nil
}

// UpdateTrackSettings replaces the settings document of one track.
func (s *Store) UpdateTrackSettings(ctx context.Context, trackID string, settings map[string]storage.SettingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := marshalSettings(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	result, err := s.sqlDB.ExecContext(ctx, `UPDATE tracks SET settings = ?, updated_at = ? WHERE id = ?`,
		encoded, toMillis(time.Now()), trackID)
	if err != nil {
		return fmt.Errorf("update track settings: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update track settings rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddTrackChair appends one user id to the track chair list.
func (s *Store) AddTrackChair(ctx context.Context, trackID string, userID string) error {
	return s.appendToList(ctx, "tracks", "chair_ids", trackID, userID)
}

// AddTrackMember appends one user id to the track member roster.
func (s *Store) AddTrackMember(ctx context.Context, trackID string, userID string) error {
	return s.appendToList(ctx, "tracks", "member_ids", trackID, userID)
}

// ListTrackMemberProfiles resolves the track member roster to user rows via
// the JSON1 extension, silently skipping dangling member ids.
func (s *Store) ListTrackMemberProfiles(ctx context.Context, trackID string) ([]storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT u.id, u.name, u.email, u.affiliation, u.past_affiliations, u.role_ids, u.created_at, u.updated_at
FROM users u
WHERE u.id IN (
	SELECT value FROM json_each((SELECT member_ids FROM tracks WHERE id = ?))
)
ORDER BY u.id ASC
`, trackID)
	if err != nil {
		return nil, fmt.Errorf("list track member profiles: %w", err)
	}
	defer rows.Close()

	var records []storage.UserRecord
	for rows.Next() {
		record, scanErr := scanUser(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan member profile row: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member profile rows: %w", err)
	}
	return records, nil
}

// PutPaper upserts one paper row.
func (s *Store) PutPaper(ctx context.Context, record storage.PaperRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("paper id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO papers (id, track_id, title, raw_authors, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	track_id = excluded.track_id,
	title = excluded.title,
	raw_authors = excluded.raw_authors,
	updated_at = excluded.updated_at
`,
		record.ID,
		strings.TrimSpace(record.TrackID),
		strings.TrimSpace(record.Title),
		record.RawAuthors,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put paper: %w", err)
	}
	return nil
}

// ListPapersByTrack lists every paper submitted to one track.
func (s *Store) ListPapersByTrack(ctx context.Context, trackID string) ([]storage.PaperRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, track_id, title, raw_authors, created_at, updated_at
FROM papers
WHERE track_id = ?
ORDER BY id ASC
`, trackID)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	var records []storage.PaperRecord
	for rows.Next() {
		var record storage.PaperRecord
		var createdAt, updatedAt int64
		if scanErr := rows.Scan(&record.ID, &record.TrackID, &record.Title, &record.RawAuthors, &createdAt, &updatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan paper row: %w", scanErr)
		}
		record.CreatedAt = fromMillis(createdAt)
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paper rows: %w", err)
	}
	return records, nil
}

// PutRole upserts one role grant row.
func (s *Store) PutRole(ctx context.Context, record storage.RoleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("role id is required")
	}
	active := 0
	if record.Active {
		active = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO roles (id, conference_id, track_id, position, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	conference_id = excluded.conference_id,
	track_id = excluded.track_id,
	position = excluded.position,
	active = excluded.active,
	updated_at = excluded.updated_at
`,
		record.ID,
		strings.TrimSpace(record.ConferenceID),
		strings.TrimSpace(record.TrackID),
		strings.TrimSpace(record.Position),
		active,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put role: %w", err)
	}
	return nil
}

// GetRole loads one role grant row by id.
func (s *Store) GetRole(ctx context.Context, roleID string) (storage.RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.RoleRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, conference_id, track_id, position, active, created_at, updated_at
FROM roles
WHERE id = ?
`, roleID)
	var record storage.RoleRecord
	var active int
	var createdAt, updatedAt int64
	if err := row.Scan(&record.ID, &record.ConferenceID, &record.TrackID, &record.Position, &active, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RoleRecord{}, storage.ErrNotFound
		}
		return storage.RoleRecord{}, fmt.Errorf("get role: %w", err)
	}
	record.Active = active == 1
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// SetRoleActive flips one role grant's active flag.
func (s *Store) SetRoleActive(ctx context.Context, roleID string, active bool, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := 0
	if active {
		value = 1
	}
	result, err := s.sqlDB.ExecContext(ctx, `UPDATE roles SET active = ?, updated_at = ? WHERE id = ?`,
		value, toMillis(updatedAt), roleID)
	if err != nil {
		return fmt.Errorf("set role active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set role active rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PutNotification persists one notification inbox row.
func (s *Store) PutNotification(ctx context.Context, record storage.NotificationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("notification id is required")
	}
	var readAt sql.NullInt64
	if record.ReadAt != nil {
		readAt = sql.NullInt64{Int64: toMillis(*record.ReadAt), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notifications (id, recipient_user_id, title, body, link, dedupe_key, created_at, read_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	recipient_user_id = excluded.recipient_user_id,
	title = excluded.title,
	body = excluded.body,
	link = excluded.link,
	dedupe_key = excluded.dedupe_key,
	read_at = excluded.read_at
`,
		record.ID,
		strings.TrimSpace(record.RecipientUserID),
		strings.TrimSpace(record.Title),
		record.Body,
		record.Link,
		strings.TrimSpace(record.DedupeKey),
		toMillis(record.CreatedAt),
		readAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put notification: %w", err)
	}
	return nil
}

const notificationColumns = "id, recipient_user_id, title, body, link, dedupe_key, created_at, read_at"

// GetNotificationByRecipientAndDedupeKey loads one recipient notification by dedupe key.
func (s *Store) GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID string, dedupeKey string) (storage.NotificationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.NotificationRecord{}, err
	}
	dedupeKey = strings.TrimSpace(dedupeKey)
	if dedupeKey == "" {
		return storage.NotificationRecord{}, storage.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE recipient_user_id = ? AND dedupe_key = ?
`, strings.TrimSpace(recipientUserID), dedupeKey)
	record, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NotificationRecord{}, storage.ErrNotFound
		}
		return storage.NotificationRecord{}, fmt.Errorf("get notification by dedupe key: %w", err)
	}
	return record, nil
}

// ListNotificationsByRecipient lists one recipient inbox newest-first with
// cursor pagination.
func (s *Store) ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (storage.NotificationPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.NotificationPage{}, err
	}
	if pageSize <= 0 {
		return storage.NotificationPage{}, fmt.Errorf("page size must be greater than zero")
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	pageToken = strings.TrimSpace(pageToken)

	limit := pageSize + 1
	var rows *sql.Rows
	var err error
	if pageToken == "" {
		rows, err = s.sqlDB.QueryContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE recipient_user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, recipientUserID, limit)
	} else {
		var tokenCreatedAt int64
		scanErr := s.sqlDB.QueryRowContext(ctx,
			`SELECT created_at FROM notifications WHERE recipient_user_id = ? AND id = ?`,
			recipientUserID, pageToken).Scan(&tokenCreatedAt)
		if scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return storage.NotificationPage{}, nil
			}
			return storage.NotificationPage{}, fmt.Errorf("lookup notification cursor: %w", scanErr)
		}
		rows, err = s.sqlDB.QueryContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE recipient_user_id = ?
  AND (created_at < ? OR (created_at = ? AND id < ?))
ORDER BY created_at DESC, id DESC
LIMIT ?
`, recipientUserID, tokenCreatedAt, tokenCreatedAt, pageToken, limit)
	}
	if err != nil {
		return storage.NotificationPage{}, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	page := storage.NotificationPage{
		Notifications: make([]storage.NotificationRecord, 0, pageSize),
	}
	for rows.Next() {
		record, scanErr := scanNotification(rows.Scan)
		if scanErr != nil {
			return storage.NotificationPage{}, fmt.Errorf("scan notification row: %w", scanErr)
		}
		page.Notifications = append(page.Notifications, record)
	}
	if err := rows.Err(); err != nil {
		return storage.NotificationPage{}, fmt.Errorf("iterate notification rows: %w", err)
	}
	if len(page.Notifications) > pageSize {
		page.NextPageToken = page.Notifications[pageSize-1].ID
		page.Notifications = page.Notifications[:pageSize]
	}
	return page, nil
}

// MarkAllNotificationsRead flips every unread row for one recipient and
// reports the number flipped.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientUserID string, readAt time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notifications
SET read_at = ?
WHERE recipient_user_id = ? AND read_at IS NULL
`, toMillis(readAt), strings.TrimSpace(recipientUserID))
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows affected: %w", err)
	}
	return int(affected), nil
}

// appendToList adds a value to a JSON string-array column with set semantics.
func (s *Store) appendToList(ctx context.Context, table string, column string, rowID string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("value is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s append: %w", column, err)
	}
	defer func() { _ = tx.Rollback() }()

	var encoded string
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", column, table)
	if err := tx.QueryRowContext(ctx, query, rowID).Scan(&encoded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("load %s: %w", column, err)
	}
	values, err := unmarshalStrings(encoded)
	if err != nil {
		return fmt.Errorf("decode %s: %w", column, err)
	}
	for _, existing := range values {
		if existing == value {
			return tx.Commit()
		}
	}
	updated, err := marshalStrings(append(values, value))
	if err != nil {
		return fmt.Errorf("encode %s: %w", column, err)
	}
	update := fmt.Sprintf("UPDATE %s SET %s = ?, updated_at = ? WHERE id = ?", table, column)
	if _, err := tx.ExecContext(ctx, update, updated, toMillis(time.Now()), rowID); err != nil {
		return fmt.Errorf("store %s: %w", column, err)
	}
	return tx.Commit()
}

type scanner func(dest ...any) error

func scanUser(scan scanner) (storage.UserRecord, error) {
	var record storage.UserRecord
	var pastAffiliations, roleIDs string
	var createdAt, updatedAt int64
	if err := scan(
		&record.ID,
		&record.Name,
		&record.Email,
		&record.Affiliation,
		&pastAffiliations,
		&roleIDs,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.UserRecord{}, err
	}
	var err error
	if record.PastAffiliations, err = unmarshalStrings(pastAffiliations); err != nil {
		return storage.UserRecord{}, fmt.Errorf("decode past affiliations: %w", err)
	}
	if record.RoleIDs, err = unmarshalStrings(roleIDs); err != nil {
		return storage.UserRecord{}, fmt.Errorf("decode role ids: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanConference(scan scanner) (storage.ConferenceRecord, error) {
	var record storage.ConferenceRecord
	var superchairs, settings string
	var endDate sql.NullInt64
	var createdAt, updatedAt int64
	if err := scan(
		&record.ID,
		&record.Name,
		&record.CreatorUserID,
		&superchairs,
		&settings,
		&endDate,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.ConferenceRecord{}, err
	}
	var err error
	if record.SuperchairIDs, err = unmarshalStrings(superchairs); err != nil {
		return storage.ConferenceRecord{}, fmt.Errorf("decode superchair ids: %w", err)
	}
	if record.Settings, err = unmarshalSettings(settings); err != nil {
		return storage.ConferenceRecord{}, fmt.Errorf("decode settings: %w", err)
	}
	if endDate.Valid {
		value := fromMillis(endDate.Int64)
		record.EndDate = &value
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanTrack(scan scanner) (storage.TrackRecord, error) {
	var record storage.TrackRecord
	var chairs, members, settings string
	var createdAt, updatedAt int64
	if err := scan(
		&record.ID,
		&record.ConferenceID,
		&record.Name,
		&chairs,
		&members,
		&settings,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.TrackRecord{}, err
	}
	var err error
	if record.ChairIDs, err = unmarshalStrings(chairs); err != nil {
		return storage.TrackRecord{}, fmt.Errorf("decode chair ids: %w", err)
	}
	if record.MemberIDs, err = unmarshalStrings(members); err != nil {
		return storage.TrackRecord{}, fmt.Errorf("decode member ids: %w", err)
	}
	if record.Settings, err = unmarshalSettings(settings); err != nil {
		return storage.TrackRecord{}, fmt.Errorf("decode settings: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanNotification(scan scanner) (storage.NotificationRecord, error) {
	var record storage.NotificationRecord
	var createdAt int64
	var readAt sql.NullInt64
	if err := scan(
		&record.ID,
		&record.RecipientUserID,
		&record.Title,
		&record.Body,
		&record.Link,
		&record.DedupeKey,
		&createdAt,
		&readAt,
	); err != nil {
		return storage.NotificationRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	if readAt.Valid {
		value := fromMillis(readAt.Int64)
		record.ReadAt = &value
	}
	return record, nil
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func unmarshalStrings(encoded string) ([]string, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(encoded), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func marshalSettings(settings map[string]storage.SettingRecord) (string, error) {
	if settings == nil {
		settings = map[string]storage.SettingRecord{}
	}
	encoded, err := json.Marshal(settings)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func unmarshalSettings(encoded string) (map[string]storage.SettingRecord, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, nil
	}
	var settings map[string]storage.SettingRecord
	if err := json.Unmarshal([]byte(encoded), &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
