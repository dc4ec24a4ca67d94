// Package role manages typed role grants scoped to conferences and tracks.
//
// A role is a (conference, optional track, position) grant held by a user.
// Grants are never hard-deleted: revoking flips the active flag so the
// assignment history stays intact.
package role

import (
	"strings"
	"time"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
)

// Position is a role position tag.
type Position string

const (
	// PositionSuperchair administers a whole conference.
	PositionSuperchair Position = "superchair"
	// PositionTrackChair administers one track.
	PositionTrackChair Position = "track_chair"
	// PositionTrackMember serves on a track's program committee.
	PositionTrackMember Position = "track_member"
	// PositionAuthor submitted a paper to the conference.
	PositionAuthor Position = "author"
	// PositionReviewer reviews submissions.
	PositionReviewer Position = "reviewer"
)

// ErrInvalidPosition indicates an unrecognized position tag.
var ErrInvalidPosition = apperrors.New(apperrors.CodeRoleInvalidPosition, "position is not recognized")

// ParsePosition normalizes a position tag. The legacy "pc_member" tag is
// accepted as an alias of track_member.
func ParsePosition(value string) (Position, error) {
	switch Position(strings.ToLower(strings.TrimSpace(value))) {
	case PositionSuperchair:
		return PositionSuperchair, nil
	case PositionTrackChair:
		return PositionTrackChair, nil
	case PositionTrackMember, Position("pc_member"):
		return PositionTrackMember, nil
	case PositionAuthor:
		return PositionAuthor, nil
	case PositionReviewer:
		return PositionReviewer, nil
	default:
		return "", ErrInvalidPosition
	}
}

// Role is one persisted role grant.
type Role struct {
	ID           string
	ConferenceID string
	// TrackID is empty for conference-wide grants. When set, the referenced
	// track must belong to ConferenceID.
	TrackID   string
	Position  Position
	Active    bool
	CreatedAt time.Time
}

// User is the role-facing view of a user record.
type User struct {
	ID      string
	Email   string
	Name    string
	RoleIDs []string
}

// Conference is the role-facing view of a conference record.
type Conference struct {
	ID      string
	Name    string
	EndDate *time.Time
}

// Track is the role-facing view of a track record.
type Track struct {
	ID           string
	ConferenceID string
	Name         string
}
