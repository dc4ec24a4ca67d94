package role

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
	"github.com/openconf/openconf/internal/platform/id"
)

// ErrNotFound is returned by stores when a referenced record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Store is the persistence boundary for role grants and their side effects.
type Store interface {
	GetUser(ctx context.Context, userID string) (User, error)
	GetConference(ctx context.Context, conferenceID string) (Conference, error)
	GetTrack(ctx context.Context, trackID string) (Track, error)

	PutRole(ctx context.Context, grant Role) error
	GetRole(ctx context.Context, roleID string) (Role, error)
	SetRoleActive(ctx context.Context, roleID string, active bool) error

	// AttachRoleToUser appends the role id to the user's role list with set
	// semantics and reports whether the user record was actually updated.
	AttachRoleToUser(ctx context.Context, userID string, roleID string) (bool, error)
	// DetachRolesFromUser removes the given role ids from the user's role
	// list; used by repair-on-read.
	DetachRolesFromUser(ctx context.Context, userID string, roleIDs []string) error

	AddSuperchair(ctx context.Context, conferenceID string, userID string) error
	AddTrackChair(ctx context.Context, trackID string, userID string) error
	AddTrackMember(ctx context.Context, trackID string, userID string) error

	// ListUsersWithRoles returns every user holding at least one role id.
	ListUsersWithRoles(ctx context.Context) ([]User, error)
}

// Notifier delivers appointment notifications. A send failure aborts the
// enclosing appointment.
type Notifier interface {
	Send(ctx context.Context, to string, title string, content string) error
}

// Service orchestrates role assignment, revocation and resolution.
type Service struct {
	store    Store
	notifier Notifier
	clock    func() time.Time
	newID    func() (string, error)
}

// NewService constructs role use-cases.
func NewService(store Store, notifier Notifier, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:    store,
		notifier: notifier,
		clock:    clock,
		newID:    newID,
	}
}

// AssignInput describes one role appointment.
type AssignInput struct {
	UserID       string
	ConferenceID string
	TrackID      string
	Position     Position
}

// Assign creates a role grant and attaches it to the target user.
//
// Position side effects: a superchair is appended to the conference's
// superchair list; a track chair or track member is appended to the track's
// roster and notified. The role record is written before side effects, and
// it is deliberately not rolled back when a later step fails - an unreferenced
// grant is harmless and the caller resubmits.
func (s *Service) Assign(ctx context.Context, input AssignInput) (Role, error) {
	if s == nil || s.store == nil {
		return Role{}, fmt.Errorf("role store is not configured")
	}
	if input.UserID == "" {
		return Role{}, apperrors.New(apperrors.CodeRoleEmptyUserID, "user id is required")
	}
	if input.ConferenceID == "" {
		return Role{}, apperrors.New(apperrors.CodeRoleEmptyConference, "conference id is required")
	}
	position, err := ParsePosition(string(input.Position))
	if err != nil {
		return Role{}, err
	}

	user, err := s.store.GetUser(ctx, input.UserID)
	if err != nil {
		return Role{}, fmt.Errorf("load user: %w", err)
	}
	conference, err := s.store.GetConference(ctx, input.ConferenceID)
	if err != nil {
		return Role{}, fmt.Errorf("load conference: %w", err)
	}
	var track Track
	if input.TrackID != "" {
		track, err = s.store.GetTrack(ctx, input.TrackID)
		if err != nil {
			return Role{}, fmt.Errorf("load track: %w", err)
		}
		if track.ConferenceID != conference.ID {
			return Role{}, apperrors.WithMetadata(apperrors.CodeRoleTrackMismatch, "track belongs to another conference", map[string]string{
				"track_id":      track.ID,
				"conference_id": conference.ID,
			})
		}
	}

	if err := s.checkDuplicateGrant(ctx, user, input.ConferenceID, input.TrackID, position); err != nil {
		return Role{}, err
	}

	roleID, err := s.newID()
	if err != nil {
		return Role{}, fmt.Errorf("generate role id: %w", err)
	}
	grant := Role{
		ID:           roleID,
		ConferenceID: conference.ID,
		TrackID:      input.TrackID,
		Position:     position,
		Active:       true,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.store.PutRole(ctx, grant); err != nil {
		return Role{}, fmt.Errorf("persist role grant: %w", err)
	}

	if err := s.applySideEffects(ctx, grant, user, track); err != nil {
		return Role{}, err
	}

	attached, err := s.store.AttachRoleToUser(ctx, user.ID, grant.ID)
	if err != nil {
		return Role{}, fmt.Errorf("attach role to user: %w", err)
	}
	if !attached {
		return Role{}, apperrors.WithMetadata(apperrors.CodeRoleNotAttached, "role created but user was not updated", map[string]string{
			"role_id": grant.ID,
			"user_id": user.ID,
		})
	}
	return grant, nil
}

func (s *Service) checkDuplicateGrant(ctx context.Context, user User, conferenceID, trackID string, position Position) error {
	for _, existingID := range user.RoleIDs {
		existing, err := s.store.GetRole(ctx, existingID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Corrupt reference; repair happens on the read path.
				continue
			}
			return fmt.Errorf("inspect existing grant %s: %w", existingID, err)
		}
		if existing.Active &&
			existing.ConferenceID == conferenceID &&
			existing.TrackID == trackID &&
			existing.Position == position {
			return apperrors.WithMetadata(apperrors.CodeRoleAlreadyGranted, "user already holds this role", map[string]string{
				"role_id": existing.ID,
			})
		}
	}
	return nil
}

func (s *Service) applySideEffects(ctx context.Context, grant Role, user User, track Track) error {
	switch grant.Position {
	case PositionSuperchair:
		if err := s.store.AddSuperchair(ctx, grant.ConferenceID, user.ID); err != nil {
			return fmt.Errorf("append superchair: %w", err)
		}

	case PositionTrackChair:
		if err := s.store.AddTrackChair(ctx, grant.TrackID, user.ID); err != nil {
			return fmt.Errorf("append track chair: %w", err)
		}
		if err := s.notifyAppointment(ctx, user.ID, "Track Chair Appointment",
			fmt.Sprintf("You have been appointed as a track chair for track %s.", track.Name)); err != nil {
			return err
		}

	case PositionTrackMember:
		if err := s.store.AddTrackMember(ctx, grant.TrackID, user.ID); err != nil {
			return fmt.Errorf("append track member: %w", err)
		}
		if err := s.notifyAppointment(ctx, user.ID, "Track Member Appointment",
			fmt.Sprintf("You have been added to the program committee of track %s.", track.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) notifyAppointment(ctx context.Context, to string, title string, content string) error {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.Send(ctx, to, title, content); err != nil {
		return apperrors.Wrap(apperrors.CodeNotificationSendFailed, "appointment notification failed", err)
	}
	return nil
}

// Revoke deactivates a role grant. The record is kept for history.
func (s *Service) Revoke(ctx context.Context, roleID string) (Role, error) {
	if s == nil || s.store == nil {
		return Role{}, fmt.Errorf("role store is not configured")
	}
	grant, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Role{}, apperrors.WithMetadata(apperrors.CodeRoleGrantUnavailable, "role grant does not exist", map[string]string{
				"role_id": roleID,
			})
		}
		return Role{}, fmt.Errorf("load role grant: %w", err)
	}
	if !grant.Active {
		return Role{}, apperrors.WithMetadata(apperrors.CodeRoleAlreadyRevoked, "role grant is already revoked", map[string]string{
			"role_id": roleID,
		})
	}
	if err := s.store.SetRoleActive(ctx, roleID, false); err != nil {
		return Role{}, fmt.Errorf("deactivate role grant: %w", err)
	}
	grant.Active = false
	return grant, nil
}
