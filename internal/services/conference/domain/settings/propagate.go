package settings

import (
	"context"
	"fmt"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
)

// TrackAction identifies one structural mutation applied to a track override.
type TrackAction string

const (
	// TrackActionRemove drops a key from track settings after the setting
	// moved back to conference scope.
	TrackActionRemove TrackAction = "remove"
	// TrackActionInsert adds a track override after the setting moved to
	// track scope.
	TrackActionInsert TrackAction = "insert"
	// TrackActionUpdate replaces an existing override value in place.
	TrackActionUpdate TrackAction = "update"
)

// Change records the old and new scope/value of one setting key across a
// conference update.
type Change struct {
	Key      string
	OldScope Scope
	NewScope Scope
	OldValue any
	NewValue any
}

// TrackChange records one mutation applied to one track during reconciliation.
type TrackChange struct {
	TrackID string
	Key     string
	Action  TrackAction
}

// Reconciliation summarizes a conference settings update: the per-key diff
// plus every track-level mutation it caused.
type Reconciliation struct {
	Changes      []Change
	TrackChanges []TrackChange
}

// Conference is the settings-facing view of a conference document.
type Conference struct {
	ID       string
	Settings Map
}

// Track is the settings-facing view of a track document.
type Track struct {
	ID       string
	Settings Map
}

// Store is the persistence boundary for settings propagation.
type Store interface {
	GetConferenceSettings(ctx context.Context, conferenceID string) (Conference, error)
	PutConferenceSettings(ctx context.Context, conferenceID string, values Map) error
	ListTracksByConference(ctx context.Context, conferenceID string) ([]Track, error)
	PutTrackSettings(ctx context.Context, trackID string, values Map) error
	GetTrackSettings(ctx context.Context, trackID string) (Track, string, error)
}

// ErrNotFound is returned by stores when the referenced document is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Service applies conference settings updates and reconciles track overrides.
type Service struct {
	store Store
}

// NewService constructs the settings propagation use-cases.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Diff compares the previously committed settings with the update payload,
// key by key, yielding one Change per configurable key in the update.
// Keys whose new value lacks scope metadata are non-configurable and are
// excluded from the diff.
func Diff(old Map, updated Map) []Change {
	changes := make([]Change, 0, len(updated))
	for key, newValue := range updated {
		if newValue.Scope == "" {
			continue
		}
		change := Change{
			Key:      key,
			NewScope: newValue.Scope,
			NewValue: newValue.Value,
		}
		if oldValue, ok := old[key]; ok {
			change.OldScope = oldValue.Scope
			change.OldValue = oldValue.Value
		}
		changes = append(changes, change)
	}
	return changes
}

// applyToTrack applies one change to a track's settings in place and reports
// the mutation performed, if any.
//
// Scope transitions map to track mutations as follows:
//
//	track      -> conference  remove the override if present
//	conference -> track       insert an override with the new value
//	track      -> track       update the override value, inserting if absent
//	conference -> conference  nothing to do
func applyToTrack(trackSettings Map, change Change) (TrackAction, bool) {
	switch {
	case change.OldScope == ScopeTrack && change.NewScope == ScopeConference:
		if _, ok := trackSettings[change.Key]; ok {
			delete(trackSettings, change.Key)
			return TrackActionRemove, true
		}

	case change.OldScope == ScopeConference && change.NewScope == ScopeTrack:
		trackSettings[change.Key] = ScopedValue{Value: change.NewValue, Scope: ScopeTrack}
		return TrackActionInsert, true

	case change.OldScope == ScopeTrack && change.NewScope == ScopeTrack:
		if existing, ok := trackSettings[change.Key]; ok {
			if !valueEqual(existing.Value, change.NewValue) {
				trackSettings[change.Key] = ScopedValue{Value: change.NewValue, Scope: ScopeTrack}
				return TrackActionUpdate, true
			}
		} else {
			// Override missing from this track; repair it now.
			trackSettings[change.Key] = ScopedValue{Value: change.NewValue, Scope: ScopeTrack}
			return TrackActionInsert, true
		}
	}
	return "", false
}

// ApplyConferenceUpdate commits new settings values on the conference and
// reconciles every child track against the committed state.
//
// The conference document is written first; tracks are then reconciled from
// a fresh read of the committed settings, so propagation always reflects the
// final conference state. The sequence is not atomic across documents:
// re-running the same update is idempotent, which is the recovery path after
// a partial failure.
func (s *Service) ApplyConferenceUpdate(ctx context.Context, conferenceID string, newValues Map) (Reconciliation, error) {
	if s == nil || s.store == nil {
		return Reconciliation{}, fmt.Errorf("settings store is not configured")
	}
	if err := Validate(newValues); err != nil {
		return Reconciliation{}, err
	}

	before, err := s.store.GetConferenceSettings(ctx, conferenceID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("load conference before update: %w", err)
	}

	committed := Clone(before.Settings)
	if committed == nil {
		committed = make(Map, len(newValues))
	}
	for key, value := range newValues {
		committed[key] = value
	}
	if err := s.store.PutConferenceSettings(ctx, conferenceID, committed); err != nil {
		return Reconciliation{}, fmt.Errorf("commit conference settings: %w", err)
	}

	// Re-read so reconciliation works from the committed document, not the
	// in-memory intermediate.
	after, err := s.store.GetConferenceSettings(ctx, conferenceID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("reload conference after update: %w", err)
	}

	updated := make(Map, len(newValues))
	for key := range newValues {
		if value, ok := after.Settings[key]; ok {
			updated[key] = value
		}
	}
	changes := Diff(before.Settings, updated)
	summary := Reconciliation{Changes: changes}
	if len(changes) == 0 {
		return summary, nil
	}

	tracks, err := s.store.ListTracksByConference(ctx, conferenceID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("list tracks for reconciliation: %w", err)
	}
	for _, track := range tracks {
		trackSettings := Clone(track.Settings)
		if trackSettings == nil {
			trackSettings = make(Map)
		}
		modified := false
		for _, change := range changes {
			action, changed := applyToTrack(trackSettings, change)
			if changed {
				modified = true
				summary.TrackChanges = append(summary.TrackChanges, TrackChange{
					TrackID: track.ID,
					Key:     change.Key,
					Action:  action,
				})
			}
		}
		if modified {
			if err := s.store.PutTrackSettings(ctx, track.ID, trackSettings); err != nil {
				return Reconciliation{}, fmt.Errorf("reconcile track %s: %w", track.ID, err)
			}
		}
	}
	return summary, nil
}

// EffectiveTrackSettings merges the owning conference's defaults with the
// track's overrides for read purposes.
func (s *Service) EffectiveTrackSettings(ctx context.Context, trackID string) (Map, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("settings store is not configured")
	}
	track, conferenceID, err := s.store.GetTrackSettings(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("load track settings: %w", err)
	}
	conference, err := s.store.GetConferenceSettings(ctx, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("load owning conference settings: %w", err)
	}
	return Merge(conference.Settings, track.Settings), nil
}
