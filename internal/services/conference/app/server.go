// Package server wires the conference domains onto storage and exposes the
// operations consumed by transport layers.
package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
	"github.com/openconf/openconf/internal/platform/id"
	"github.com/openconf/openconf/internal/platform/requestctx"
	"github.com/openconf/openconf/internal/services/conference/domain/conflict"
	"github.com/openconf/openconf/internal/services/conference/domain/notify"
	"github.com/openconf/openconf/internal/services/conference/domain/role"
	"github.com/openconf/openconf/internal/services/conference/domain/settings"
	"github.com/openconf/openconf/internal/services/conference/storage"
	storagesqlite "github.com/openconf/openconf/internal/services/conference/storage/sqlite"
)

const tracerName = "openconf/conference"

// Stores groups the persistence contracts the server needs.
type Stores struct {
	Users         storage.UserStore
	Conferences   storage.ConferenceStore
	Tracks        storage.TrackStore
	Papers        storage.PaperStore
	Roles         storage.RoleStore
	Notifications storage.NotificationStore
}

// Server hosts the conference service operations.
type Server struct {
	stores    Stores
	roles     *role.Service
	settings  *settings.Service
	conflicts *conflict.Service
	inbox     *notify.Service
	tracer    trace.Tracer
	clock     func() time.Time
	newID     func() (string, error)
}

// New creates a configured server on top of the given stores. clock and
// newID may be nil for production defaults.
func New(stores Stores, clock func() time.Time, newID func() (string, error)) *Server {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}

	inbox := notify.NewService(&notifyStoreAdapter{notifications: stores.Notifications}, clock, newID)
	roles := role.NewService(
		&roleStoreAdapter{
			users:       stores.Users,
			conferences: stores.Conferences,
			tracks:      stores.Tracks,
			roles:       stores.Roles,
			clock:       clock,
		},
		&inboxNotifier{inbox: inbox},
		clock,
		newID,
	)
	settingsService := settings.NewService(&settingsStoreAdapter{
		conferences: stores.Conferences,
		tracks:      stores.Tracks,
	})
	conflicts := conflict.NewService(&conflictStoreAdapter{
		users:  stores.Users,
		tracks: stores.Tracks,
		papers: stores.Papers,
	})

	return &Server{
		stores:    stores,
		roles:     roles,
		settings:  settingsService,
		conflicts: conflicts,
		inbox:     inbox,
		tracer:    otel.Tracer(tracerName),
		clock:     clock,
		newID:     newID,
	}
}

// Open opens the SQLite-backed server using OPENCONF_DB_PATH. The returned
// close function releases the underlying store.
func Open() (*Server, func() error, error) {
	path := strings.TrimSpace(os.Getenv("OPENCONF_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "conference.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := storagesqlite.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	stores := Stores{
		Users:         store,
		Conferences:   store,
		Tracks:        store,
		Papers:        store,
		Roles:         store,
		Notifications: store,
	}
	return New(stores, nil, nil), store.Close, nil
}

func (s *Server) principal(ctx context.Context) (requestctx.Principal, error) {
	principal, ok := requestctx.PrincipalFromContext(ctx)
	if !ok {
		return requestctx.Principal{}, apperrors.New(apperrors.CodeUnauthenticated, "request is not authenticated")
	}
	return principal, nil
}

// AssignRoleRequest describes one role appointment request.
type AssignRoleRequest struct {
	UserID       string
	ConferenceID string
	TrackID      string
	Position     string
}

// AssignRole appoints a user to a role. The caller must be authenticated.
func (s *Server) AssignRole(ctx context.Context, req AssignRoleRequest) (role.Role, error) {
	ctx, span := s.tracer.Start(ctx, "AssignRole", trace.WithAttributes(
		attribute.String("conference.id", req.ConferenceID),
		attribute.String("role.position", req.Position),
	))
	defer span.End()

	if _, err := s.principal(ctx); err != nil {
		return role.Role{}, err
	}
	return s.roles.Assign(ctx, role.AssignInput{
		UserID:       req.UserID,
		ConferenceID: req.ConferenceID,
		TrackID:      req.TrackID,
		Position:     role.Position(req.Position),
	})
}

// RevokeRole deactivates one role grant, keeping it for history.
func (s *Server) RevokeRole(ctx context.Context, roleID string) (role.Role, error) {
	ctx, span := s.tracer.Start(ctx, "RevokeRole")
	defer span.End()

	if _, err := s.principal(ctx); err != nil {
		return role.Role{}, err
	}
	return s.roles.Revoke(ctx, roleID)
}

// GetRoleStatus resolves the calling user's grants into active and past
// roles, with display names for each conference and track.
func (s *Server) GetRoleStatus(ctx context.Context) (role.Status, error) {
	ctx, span := s.tracer.Start(ctx, "GetRoleStatus")
	defer span.End()

	principal, err := s.principal(ctx)
	if err != nil {
		return role.Status{}, err
	}
	return s.roles.RoleStatus(ctx, principal.UserID)
}

// GetRelevantPeople lists every user holding an active grant on the track.
func (s *Server) GetRelevantPeople(ctx context.Context, trackID string) ([]role.RelevantPerson, error) {
	ctx, span := s.tracer.Start(ctx, "GetRelevantPeople", trace.WithAttributes(
		attribute.String("track.id", trackID),
	))
	defer span.End()

	if _, err := s.principal(ctx); err != nil {
		return nil, err
	}
	return s.roles.RelevantPeople(ctx, trackID)
}

// CreateConferenceRequest describes a new conference.
type CreateConferenceRequest struct {
	Name    string
	EndDate *time.Time
}

// CreateConference creates a conference seeded with default settings and
// appoints the caller as its first superchair.
func (s *Server) CreateConference(ctx context.Context, req CreateConferenceRequest) (storage.ConferenceRecord, error) {
	ctx, span := s.tracer.Start(ctx, "CreateConference")
	defer span.End()

	principal, err := s.principal(ctx)
	if err != nil {
		return storage.ConferenceRecord{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return storage.ConferenceRecord{}, apperrors.New(apperrors.CodeConferenceNameEmpty, "conference name is required")
	}

	conferenceID, err := s.newID()
	if err != nil {
		return storage.ConferenceRecord{}, fmt.Errorf("generate conference id: %w", err)
	}
	now := s.clock().UTC()
	record := storage.ConferenceRecord{
		ID:            conferenceID,
		Name:          name,
		CreatorUserID: principal.UserID,
		SuperchairIDs: []string{principal.UserID},
		Settings:      settingsToRecords(settings.Defaults()),
		EndDate:       req.EndDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.stores.Conferences.PutConference(ctx, record); err != nil {
		return storage.ConferenceRecord{}, fmt.Errorf("persist conference: %w", err)
	}

	if _, err := s.roles.Assign(ctx, role.AssignInput{
		UserID:       principal.UserID,
		ConferenceID: conferenceID,
		Position:     role.PositionSuperchair,
	}); err != nil {
		return storage.ConferenceRecord{}, fmt.Errorf("appoint creator superchair: %w", err)
	}
	return s.stores.Conferences.GetConference(ctx, conferenceID)
}

// CreateTrackRequest describes a new track inside a conference.
type CreateTrackRequest struct {
	ConferenceID string
	Name         string
}

// CreateTrack creates a track seeded with the conference's track-scoped
// setting values.
func (s *Server) CreateTrack(ctx context.Context, req CreateTrackRequest) (storage.TrackRecord, error) {
	ctx, span := s.tracer.Start(ctx, "CreateTrack", trace.WithAttributes(
		attribute.String("conference.id", req.ConferenceID),
	))
	defer span.End()

	if _, err := s.principal(ctx); err != nil {
		return storage.TrackRecord{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return storage.TrackRecord{}, apperrors.New(apperrors.CodeTrackNameEmpty, "track name is required")
	}
	if strings.TrimSpace(req.ConferenceID) == "" {
		return storage.TrackRecord{}, apperrors.New(apperrors.CodeTrackEmptyConference, "conference id is required")
	}

	conference, err := s.stores.Conferences.GetConference(ctx, req.ConferenceID)
	if err != nil {
		return storage.TrackRecord{}, fmt.Errorf("load owning conference: %w", err)
	}

	trackID, err := s.newID()
	if err != nil {
		return storage.TrackRecord{}, fmt.Errorf("generate track id: %w", err)
	}
	now := s.clock().UTC()
	seed := settings.TrackScoped(settingsFromRecords(conference.Settings))
	record := storage.TrackRecord{
		ID:           trackID,
		ConferenceID: conference.ID,
		Name:         name,
		Settings:     settingsToRecords(seed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.stores.Tracks.PutTrack(ctx, record); err != nil {
		return storage.TrackRecord{}, fmt.Errorf("persist track: %w", err)
	}
	return s.stores.Tracks.GetTrack(ctx, trackID)
}

// UpdateConferenceSettings commits a settings update on the conference and
// reconciles every child track.
func (s *Server) UpdateConferenceSettings(ctx context.Context, conferenceID string, values settings.Map) (settings.Reconciliation, error) {
	ctx, span := s.tracer.Start(ctx, "UpdateConferenceSettings", trace.WithAttributes(
		attribute.String("conference.id", conferenceID),
		attribute.Int("settings.count", len(values)),
	))
	defer span.End()

	if _, err := s.principal(ctx); err != nil {
		return settings.Reconciliation{}, err
	}
	return s.settings.ApplyConferenceUpdate(ctx, conferenceID, values)
}

// GetEffectiveTrackSettings merges conference defaults with track overrides.
func (s *Server) GetEffectiveTrackSettings(ctx context.Context, trackID string) (settings.Map, error) {
	ctx, span := s.tracer.Start(ctx, "GetEffectiveTrackSettings", trace.WithAttributes(
		attribute.String("track.id", trackID),
	))
	defer span.End()

	if _, err := s.principal(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(trackID) == "" {
		return nil, apperrors.New(apperrors.CodeTrackIDRequired, "track id is required")
	}
	return s.settings.EffectiveTrackSettings(ctx, trackID)
}

// DetectConflicts reports affiliation overlaps between the track's program
// committee and paper authors.
func (s *Server) DetectConflicts(ctx context.Context, trackID string) ([]conflict.Conflict, error) {
	ctx, span := s.tracer.Start(ctx, "DetectConflicts", trace.WithAttributes(
		attribute.String("track.id", trackID),
	))
	defer span.End()

	if _, err := s.principal(ctx); err != nil {
		return nil, err
	}
	return s.conflicts.Detect(ctx, trackID)
}

// SubmitPaperRequest describes one paper submission.
type SubmitPaperRequest struct {
	TrackID    string
	Title      string
	RawAuthors string
}

// SubmitPaper stores a submission and grants the caller an author role on
// the owning conference when they do not already hold one.
func (s *Server) SubmitPaper(ctx context.Context, req SubmitPaperRequest) (storage.PaperRecord, error) {
	ctx, span := s.tracer.Start(ctx, "SubmitPaper", trace.WithAttributes(
		attribute.String("track.id", req.TrackID),
	))
	defer span.End()

	principal, err := s.principal(ctx)
	if err != nil {
		return storage.PaperRecord{}, err
	}
	if strings.TrimSpace(req.TrackID) == "" {
		return storage.PaperRecord{}, apperrors.New(apperrors.CodeTrackIDRequired, "track id is required")
	}
	track, err := s.stores.Tracks.GetTrack(ctx, req.TrackID)
	if err != nil {
		return storage.PaperRecord{}, fmt.Errorf("load track: %w", err)
	}

	paperID, err := s.newID()
	if err != nil {
		return storage.PaperRecord{}, fmt.Errorf("generate paper id: %w", err)
	}
	now := s.clock().UTC()
	record := storage.PaperRecord{
		ID:         paperID,
		TrackID:    track.ID,
		Title:      strings.TrimSpace(req.Title),
		RawAuthors: req.RawAuthors,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.stores.Papers.PutPaper(ctx, record); err != nil {
		return storage.PaperRecord{}, fmt.Errorf("persist paper: %w", err)
	}

	_, err = s.roles.Assign(ctx, role.AssignInput{
		UserID:       principal.UserID,
		ConferenceID: track.ConferenceID,
		Position:     role.PositionAuthor,
	})
	if err != nil && !apperrors.HasCode(err, apperrors.CodeRoleAlreadyGranted) {
		return storage.PaperRecord{}, fmt.Errorf("grant author role: %w", err)
	}
	return record, nil
}

// ListInbox lists the calling user's notifications newest first.
func (s *Server) ListInbox(ctx context.Context, pageSize int, pageToken string) (notify.Page, error) {
	ctx, span := s.tracer.Start(ctx, "ListInbox")
	defer span.End()

	principal, err := s.principal(ctx)
	if err != nil {
		return notify.Page{}, err
	}
	return s.inbox.ListInbox(ctx, notify.ListInboxInput{
		RecipientUserID: principal.UserID,
		PageSize:        pageSize,
		PageToken:       pageToken,
	})
}

// MarkInboxRead acknowledges every unread notification of the calling user.
func (s *Server) MarkInboxRead(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "MarkInboxRead")
	defer span.End()

	principal, err := s.principal(ctx)
	if err != nil {
		return 0, err
	}
	return s.inbox.MarkAllRead(ctx, principal.UserID)
}
