// Package settings models scoped conference configuration and its
// propagation to tracks.
//
// Every configurable setting lives on the conference as a {value, scope}
// pair. A "conference" scope means the conference value is authoritative for
// all tracks; a "track" scope means each track may carry its own override in
// Track.Settings. Changing a setting's scope must be reconciled across every
// child track.
package settings

import (
	"reflect"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
)

// Scope identifies where a setting's authoritative value lives.
type Scope string

const (
	// ScopeConference means the conference value applies to every track.
	ScopeConference Scope = "conference"
	// ScopeTrack means tracks may override the value individually.
	ScopeTrack Scope = "track"
)

// ScopedValue is one configurable setting value tagged with its scope.
//
// A zero Scope marks a value without scope metadata; such keys are treated
// as non-configurable and never propagate to tracks.
type ScopedValue struct {
	Value any   `json:"value"`
	Scope Scope `json:"scope,omitempty"`
}

// Map holds the settings of a conference or track keyed by setting name.
type Map map[string]ScopedValue

// Known setting keys. The set is closed: operations reject keys outside it.
const (
	KeyDoubleBlindReview           = "double_blind_review"
	KeyCanPCSeeUnassigned          = "can_pc_see_unassigned_submissions"
	KeyAbstractBeforeFull          = "abstract_before_full"
	KeyAbstractSectionHidden       = "abstract_section_hidden"
	KeyMultipleAuthorsAllowed      = "multiple_authors_allowed"
	KeyMaxAbstractLength           = "max_abstract_length"
	KeySubmissionInstructions      = "submission_instructions"
	KeyAdditionalFieldsEnabled     = "additional_fields_enabled"
	KeyFileUploadFields            = "file_upload_fields"
	KeyPresenterSelectionRequired  = "presenter_selection_required"
	KeySubmissionUpdatesAllowed    = "submission_updates_allowed"
	KeyNewSubmissionAllowed        = "new_submission_allowed"
	KeyAutoUpdateSubmissionDates   = "auto_update_submission_dates"
	KeyUseBiddingOrRelevance       = "use_bidding_or_relevance"
	KeyBiddingEnabled              = "bidding_enabled"
	KeyChairsCanViewBids           = "chairs_can_view_bids"
	KeyReviewersPerPaper           = "reviewers_per_paper"
	KeyCanPCSeeReviewerNames       = "can_pc_see_reviewer_names"
	KeyStatusMenuEnabled           = "status_menu_enabled"
	KeyPCCanEnterReview            = "pc_can_enter_review"
	KeyPCCanAccessReviews          = "pc_can_access_reviews"
	KeyDecisionRange               = "decision_range"
	KeySubreviewersAllowed         = "subreviewers_allowed"
	KeySubreviewerAnonymous        = "subreviewer_anonymous"
	KeyTrackChairNotifications     = "track_chair_notifications"
)

var knownKeys = map[string]struct{}{
	KeyDoubleBlindReview:          {},
	KeyCanPCSeeUnassigned:         {},
	KeyAbstractBeforeFull:         {},
	KeyAbstractSectionHidden:      {},
	KeyMultipleAuthorsAllowed:     {},
	KeyMaxAbstractLength:          {},
	KeySubmissionInstructions:     {},
	KeyAdditionalFieldsEnabled:    {},
	KeyFileUploadFields:           {},
	KeyPresenterSelectionRequired: {},
	KeySubmissionUpdatesAllowed:   {},
	KeyNewSubmissionAllowed:       {},
	KeyAutoUpdateSubmissionDates:  {},
	KeyUseBiddingOrRelevance:      {},
	KeyBiddingEnabled:             {},
	KeyChairsCanViewBids:          {},
	KeyReviewersPerPaper:          {},
	KeyCanPCSeeReviewerNames:      {},
	KeyStatusMenuEnabled:          {},
	KeyPCCanEnterReview:           {},
	KeyPCCanAccessReviews:         {},
	KeyDecisionRange:              {},
	KeySubreviewersAllowed:        {},
	KeySubreviewerAnonymous:       {},
	KeyTrackChairNotifications:    {},
}

// Defaults returns the settings seeded onto a newly created conference.
func Defaults() Map {
	return Map{
		KeyDoubleBlindReview:          {Value: false, Scope: ScopeConference},
		KeyCanPCSeeUnassigned:         {Value: false, Scope: ScopeConference},
		KeyAbstractBeforeFull:         {Value: true, Scope: ScopeConference},
		KeyAbstractSectionHidden:      {Value: false, Scope: ScopeTrack},
		KeyMultipleAuthorsAllowed:     {Value: true, Scope: ScopeTrack},
		KeyMaxAbstractLength:          {Value: 300, Scope: ScopeTrack},
		KeySubmissionInstructions:     {Value: "no", Scope: ScopeTrack},
		KeyAdditionalFieldsEnabled:    {Value: true, Scope: ScopeTrack},
		KeyFileUploadFields:           {Value: "paper, additional", Scope: ScopeTrack},
		KeyPresenterSelectionRequired: {Value: false, Scope: ScopeTrack},
		KeySubmissionUpdatesAllowed:   {Value: false, Scope: ScopeTrack},
		KeyNewSubmissionAllowed:       {Value: false, Scope: ScopeConference},
		KeyUseBiddingOrRelevance:      {Value: "relevance", Scope: ScopeTrack},
		KeyBiddingEnabled:             {Value: false, Scope: ScopeTrack},
		KeyChairsCanViewBids:          {Value: false, Scope: ScopeTrack},
		KeyReviewersPerPaper:          {Value: 5, Scope: ScopeTrack},
		KeyCanPCSeeReviewerNames:      {Value: false, Scope: ScopeTrack},
		KeyStatusMenuEnabled:          {Value: true, Scope: ScopeTrack},
		KeyPCCanEnterReview:           {Value: false, Scope: ScopeTrack},
		KeyPCCanAccessReviews:         {Value: false, Scope: ScopeTrack},
		KeyDecisionRange:              {Value: 10, Scope: ScopeTrack},
		KeySubreviewersAllowed:        {Value: true, Scope: ScopeTrack},
		KeySubreviewerAnonymous:       {Value: true, Scope: ScopeTrack},
		KeyTrackChairNotifications:    {Value: false, Scope: ScopeTrack},
	}
}

// KnownKey reports whether key belongs to the closed setting key set.
func KnownKey(key string) bool {
	_, ok := knownKeys[key]
	return ok
}

// ValidScope reports whether scope is one of the recognized scope tags.
func ValidScope(scope Scope) bool {
	return scope == ScopeConference || scope == ScopeTrack
}

// Validate checks every entry of a settings update payload.
func Validate(values Map) error {
	for key, value := range values {
		if !KnownKey(key) {
			return apperrors.WithMetadata(apperrors.CodeSettingsUnknownKey, "setting key is not recognized", map[string]string{
				"key": key,
			})
		}
		if value.Scope != "" && !ValidScope(value.Scope) {
			return apperrors.WithMetadata(apperrors.CodeSettingsInvalidScope, "setting scope must be conference or track", map[string]string{
				"key":   key,
				"scope": string(value.Scope),
			})
		}
	}
	return nil
}

// Clone returns a deep-enough copy of a settings map for safe mutation.
// Values are treated as immutable; only the map structure is copied.
func Clone(values Map) Map {
	if values == nil {
		return nil
	}
	out := make(Map, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}

// Merge computes the effective settings of a track: conference defaults with
// track overrides applied on top. Only keys currently track-scoped on the
// conference honor an override; stale track keys are ignored.
func Merge(conference Map, track Map) Map {
	effective := make(Map, len(conference))
	for key, value := range conference {
		effective[key] = value
	}
	for key, override := range track {
		base, ok := conference[key]
		if !ok || base.Scope != ScopeTrack {
			continue
		}
		effective[key] = ScopedValue{Value: override.Value, Scope: ScopeTrack}
	}
	return effective
}

// TrackScoped returns the subset of conference settings currently scoped to
// tracks, used to seed Track.Settings at track creation.
func TrackScoped(conference Map) Map {
	seed := make(Map)
	for key, value := range conference {
		if value.Scope == ScopeTrack {
			seed[key] = value
		}
	}
	return seed
}

func valueEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
