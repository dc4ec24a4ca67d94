package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	a := New(CodeRoleInvalidPosition, "position is not recognized")
	b := New(CodeRoleInvalidPosition, "different message, same code")

	if !errors.Is(a, b) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(a, New(CodeNotFound, "record not found")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestErrorUnwrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("write role: disk full")
	wrapped := Wrap(CodeRoleGrantUnavailable, "persist role grant", cause)

	if !errors.Is(wrapped, cause) {
		t.Fatal("expected wrapped error chain to include cause")
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeUnauthenticated, codes.Unauthenticated},
		{CodeNotFound, codes.NotFound},
		{CodeRoleGrantUnavailable, codes.NotFound},
		{CodeRoleInvalidPosition, codes.InvalidArgument},
		{CodeSettingsInvalidScope, codes.InvalidArgument},
		{CodeRoleNotAttached, codes.FailedPrecondition},
		{CodeRoleAlreadyGranted, codes.AlreadyExists},
		{CodeNotificationSendFailed, codes.Internal},
		{CodeUnknown, codes.Internal},
	}
	for _, tt := range tests {
		if got := tt.code.GRPCCode(); got != tt.want {
			t.Errorf("GRPCCode(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestToGRPCStatusCarriesReason(t *testing.T) {
	t.Parallel()

	err := WithMetadata(CodeRoleTrackMismatch, "track belongs to another conference", map[string]string{
		"track_id": "track-1",
	}).ToGRPCStatus()

	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected a grpc status error")
	}
	if st.Code() != codes.InvalidArgument {
		t.Fatalf("status code = %v, want InvalidArgument", st.Code())
	}
	if len(st.Details()) == 0 {
		t.Fatal("expected error details to be attached")
	}
}
