package role

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
)

// Placeholder names keep aggregate reads total when a referenced document is
// missing rather than failing the whole response.
const (
	UnknownConferenceName = "Unknown Conference"
	UnknownTrackName      = "Unknown Track"
)

// StatusEntry is one resolved role grant in a user's role status.
type StatusEntry struct {
	RoleID         string
	ConferenceName string
	// TrackName is empty for conference-wide grants.
	TrackName string
	Position  Position
}

// Status partitions a user's resolved grants into current and historical.
type Status struct {
	ActiveRoles []StatusEntry
	PastRoles   []StatusEntry
}

// RelevantPerson is one (user, position) pair holding a grant on a track.
type RelevantPerson struct {
	UserID   string
	Position Position
}

// RoleStatus resolves every grant on the user's role list and classifies it
// as active or past by the owning conference's end date: no end date or a
// future end date means active; revoked grants always land in the past list.
//
// Role ids that no longer resolve to a stored grant are treated as corrupt
// and pruned from the user's role list as a side effect of the read.
func (s *Service) RoleStatus(ctx context.Context, userID string) (Status, error) {
	if s == nil || s.store == nil {
		return Status{}, fmt.Errorf("role store is not configured")
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("load user: %w", err)
	}

	var status Status
	var corrupt []string
	now := s.clock().UTC()

	for _, roleID := range user.RoleIDs {
		grant, err := s.store.GetRole(ctx, roleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				corrupt = append(corrupt, roleID)
				continue
			}
			return Status{}, fmt.Errorf("resolve role %s: %w", roleID, err)
		}

		entry := StatusEntry{
			RoleID:         grant.ID,
			ConferenceName: UnknownConferenceName,
			Position:       grant.Position,
		}

		active := grant.Active
		conference, err := s.store.GetConference(ctx, grant.ConferenceID)
		switch {
		case err == nil:
			entry.ConferenceName = conference.Name
			if conference.EndDate != nil && conference.EndDate.Before(now) {
				active = false
			}
		case errors.Is(err, ErrNotFound):
			// Keep the placeholder; a grant without a conference is not current.
			active = false
		default:
			return Status{}, fmt.Errorf("resolve conference %s: %w", grant.ConferenceID, err)
		}

		if grant.TrackID != "" {
			entry.TrackName = UnknownTrackName
			track, err := s.store.GetTrack(ctx, grant.TrackID)
			switch {
			case err == nil:
				entry.TrackName = track.Name
			case errors.Is(err, ErrNotFound):
				// Placeholder stands in.
			default:
				return Status{}, fmt.Errorf("resolve track %s: %w", grant.TrackID, err)
			}
		}

		if active {
			status.ActiveRoles = append(status.ActiveRoles, entry)
		} else {
			status.PastRoles = append(status.PastRoles, entry)
		}
	}

	if len(corrupt) > 0 {
		if err := s.store.DetachRolesFromUser(ctx, user.ID, corrupt); err != nil {
			return Status{}, fmt.Errorf("prune corrupt role ids: %w", err)
		}
	}
	return status, nil
}

// RelevantPeople scans all users holding roles and returns the (user,
// position) pairs whose active grants reference the given track.
//
// This is a deliberate full scan; rosters are conference-sized and the role
// store carries no secondary index by track.
func (s *Service) RelevantPeople(ctx context.Context, trackID string) ([]RelevantPerson, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("role store is not configured")
	}
	if trackID == "" {
		return nil, apperrors.New(apperrors.CodeTrackIDRequired, "track id is required")
	}

	users, err := s.store.ListUsersWithRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users with roles: %w", err)
	}

	var people []RelevantPerson
	for _, user := range users {
		for _, roleID := range user.RoleIDs {
			grant, err := s.store.GetRole(ctx, roleID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					// Corrupt reference; repaired when the owner reads status.
					continue
				}
				return nil, fmt.Errorf("resolve role %s: %w", roleID, err)
			}
			if grant.Active && grant.TrackID == trackID {
				people = append(people, RelevantPerson{UserID: user.ID, Position: grant.Position})
			}
		}
	}
	return people, nil
}
