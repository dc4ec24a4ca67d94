// Package errors provides structured error handling for conference operations.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Authentication errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"

	// Role errors
	CodeRoleInvalidPosition  Code = "ROLE_INVALID_POSITION"
	CodeRoleEmptyUserID      Code = "ROLE_EMPTY_USER_ID"
	CodeRoleEmptyConference  Code = "ROLE_EMPTY_CONFERENCE_ID"
	CodeRoleTrackMismatch    Code = "ROLE_TRACK_CONFERENCE_MISMATCH"
	CodeRoleAlreadyGranted   Code = "ROLE_ALREADY_GRANTED"
	CodeRoleNotAttached      Code = "ROLE_NOT_ATTACHED"
	CodeRoleAlreadyRevoked   Code = "ROLE_ALREADY_REVOKED"
	CodeRoleGrantUnavailable Code = "ROLE_GRANT_UNAVAILABLE"

	// Conference errors
	CodeConferenceNameEmpty    Code = "CONFERENCE_NAME_EMPTY"
	CodeConferenceCreatorEmpty Code = "CONFERENCE_CREATOR_EMPTY"

	// Track errors
	CodeTrackNameEmpty       Code = "TRACK_NAME_EMPTY"
	CodeTrackEmptyConference Code = "TRACK_EMPTY_CONFERENCE_ID"
	CodeTrackIDRequired      Code = "TRACK_ID_REQUIRED"

	// Settings errors
	CodeSettingsInvalidScope Code = "SETTINGS_INVALID_SCOPE"
	CodeSettingsUnknownKey   Code = "SETTINGS_UNKNOWN_KEY"

	// Notification errors
	CodeNotificationSendFailed     Code = "NOTIFICATION_SEND_FAILED"
	CodeNotificationEmptyRecipient Code = "NOTIFICATION_EMPTY_RECIPIENT"
	CodeNotificationEmptyTitle     Code = "NOTIFICATION_EMPTY_TITLE"

	// Session grant errors
	CodeSessionGrantInvalid Code = "SESSION_GRANT_INVALID"
	CodeSessionGrantExpired Code = "SESSION_GRANT_EXPIRED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeRoleInvalidPosition,
		CodeRoleEmptyUserID,
		CodeRoleEmptyConference,
		CodeRoleTrackMismatch,
		CodeConferenceNameEmpty,
		CodeConferenceCreatorEmpty,
		CodeTrackNameEmpty,
		CodeTrackEmptyConference,
		CodeTrackIDRequired,
		CodeSettingsInvalidScope,
		CodeSettingsUnknownKey,
		CodeNotificationEmptyRecipient,
		CodeNotificationEmptyTitle,
		CodeSessionGrantInvalid:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeRoleNotAttached,
		CodeRoleAlreadyRevoked,
		CodeSessionGrantExpired:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeRoleGrantUnavailable:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeRoleAlreadyGranted:
		return codes.AlreadyExists

	// Unauthenticated - no acting principal
	case CodeUnauthenticated:
		return codes.Unauthenticated

	// Internal - notification collaborator failures
	case CodeNotificationSendFailed:
		return codes.Internal

	default:
		return codes.Internal
	}
}
