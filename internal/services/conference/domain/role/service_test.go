package role

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
)

type fakeStore struct {
	users       map[string]User
	conferences map[string]Conference
	tracks      map[string]Track
	roles       map[string]Role

	superchairs  map[string][]string
	trackChairs  map[string][]string
	trackMembers map[string][]string

	attachFails bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        map[string]User{},
		conferences:  map[string]Conference{},
		tracks:       map[string]Track{},
		roles:        map[string]Role{},
		superchairs:  map[string][]string{},
		trackChairs:  map[string][]string{},
		trackMembers: map[string][]string{},
	}
}

func (f *fakeStore) GetUser(_ context.Context, userID string) (User, error) {
	user, ok := f.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) GetConference(_ context.Context, conferenceID string) (Conference, error) {
	conference, ok := f.conferences[conferenceID]
	if !ok {
		return Conference{}, ErrNotFound
	}
	return conference, nil
}

func (f *fakeStore) GetTrack(_ context.Context, trackID string) (Track, error) {
	track, ok := f.tracks[trackID]
	if !ok {
		return Track{}, ErrNotFound
	}
	return track, nil
}

func (f *fakeStore) PutRole(_ context.Context, grant Role) error {
	f.roles[grant.ID] = grant
	return nil
}

func (f *fakeStore) GetRole(_ context.Context, roleID string) (Role, error) {
	grant, ok := f.roles[roleID]
	if !ok {
		return Role{}, ErrNotFound
	}
	return grant, nil
}

func (f *fakeStore) SetRoleActive(_ context.Context, roleID string, active bool) error {
	grant, ok := f.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	grant.Active = active
	f.roles[roleID] = grant
	return nil
}

func (f *fakeStore) AttachRoleToUser(_ context.Context, userID string, roleID string) (bool, error) {
	if f.attachFails {
		return false, nil
	}
	user, ok := f.users[userID]
	if !ok {
		return false, nil
	}
	for _, existing := range user.RoleIDs {
		if existing == roleID {
			return true, nil
		}
	}
	user.RoleIDs = append(user.RoleIDs, roleID)
	f.users[userID] = user
	return true, nil
}

func (f *fakeStore) DetachRolesFromUser(_ context.Context, userID string, roleIDs []string) error {
	user, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	drop := make(map[string]struct{}, len(roleIDs))
	for _, roleID := range roleIDs {
		drop[roleID] = struct{}{}
	}
	kept := user.RoleIDs[:0]
	for _, roleID := range user.RoleIDs {
		if _, gone := drop[roleID]; !gone {
			kept = append(kept, roleID)
		}
	}
	user.RoleIDs = kept
	f.users[userID] = user
	return nil
}

func (f *fakeStore) AddSuperchair(_ context.Context, conferenceID string, userID string) error {
	f.superchairs[conferenceID] = append(f.superchairs[conferenceID], userID)
	return nil
}

func (f *fakeStore) AddTrackChair(_ context.Context, trackID string, userID string) error {
	f.trackChairs[trackID] = append(f.trackChairs[trackID], userID)
	return nil
}

func (f *fakeStore) AddTrackMember(_ context.Context, trackID string, userID string) error {
	f.trackMembers[trackID] = append(f.trackMembers[trackID], userID)
	return nil
}

func (f *fakeStore) ListUsersWithRoles(_ context.Context) ([]User, error) {
	var out []User
	for _, user := range f.users {
		if len(user.RoleIDs) > 0 {
			out = append(out, user)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	sent []string
	fail bool
}

func (f *fakeNotifier) Send(_ context.Context, to string, title string, _ string) error {
	if f.fail {
		return fmt.Errorf("smtp unavailable")
	}
	f.sent = append(f.sent, to+":"+title)
	return nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDGenerator(ids ...string) func() (string, error) {
	index := 0
	return func() (string, error) {
		if index >= len(ids) {
			return "", fmt.Errorf("id sequence exhausted")
		}
		value := ids[index]
		index++
		return value, nil
	}
}

func seedWorld(store *fakeStore) {
	store.users["user-1"] = User{ID: "user-1", Email: "ada@example.org", Name: "Ada"}
	store.conferences["conf-1"] = Conference{ID: "conf-1", Name: "ICSEw"}
	store.tracks["track-1"] = Track{ID: "track-1", ConferenceID: "conf-1", Name: "Testing"}
}

func TestAssignSuperchair(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedWorld(store)
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier, fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)), sequentialIDGenerator("role-1"))

	grant, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		Position:     PositionSuperchair,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if grant.ID != "role-1" || !grant.Active {
		t.Fatalf("unexpected grant: %+v", grant)
	}
	if grant.ConferenceID == "" {
		t.Fatal("grant must reference a conference")
	}
	if got := store.users["user-1"].RoleIDs; len(got) != 1 || got[0] != "role-1" {
		t.Fatalf("user role list = %v, want [role-1]", got)
	}
	if got := store.superchairs["conf-1"]; len(got) != 1 || got[0] != "user-1" {
		t.Fatalf("superchair list = %v, want [user-1]", got)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("superchair appointment must not notify, sent %v", notifier.sent)
	}
}

func TestAssignTrackChairNotifiesAndFillsRoster(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedWorld(store)
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier, nil, sequentialIDGenerator("role-1"))

	grant, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		TrackID:      "track-1",
		Position:     PositionTrackChair,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if grant.TrackID != "track-1" {
		t.Fatalf("grant track = %q, want track-1", grant.TrackID)
	}
	if got := store.trackChairs["track-1"]; len(got) != 1 || got[0] != "user-1" {
		t.Fatalf("track chair roster = %v", got)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %v", notifier.sent)
	}
}

func TestAssignAcceptsPCMemberAlias(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedWorld(store)
	svc := NewService(store, &fakeNotifier{}, nil, sequentialIDGenerator("role-1"))

	grant, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		TrackID:      "track-1",
		Position:     Position("pc_member"),
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if grant.Position != PositionTrackMember {
		t.Fatalf("position = %q, want track_member", grant.Position)
	}
	if got := store.trackMembers["track-1"]; len(got) != 1 {
		t.Fatalf("track member roster = %v", got)
	}
}

func TestAssignRejectsTrackFromAnotherConference(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedWorld(store)
	store.conferences["conf-2"] = Conference{ID: "conf-2", Name: "Other"}
	svc := NewService(store, &fakeNotifier{}, nil, sequentialIDGenerator("role-1"))

	_, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-2",
		TrackID:      "track-1",
		Position:     PositionTrackChair,
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeRoleTrackMismatch, "")) {
		t.Fatalf("expected ROLE_TRACK_CONFERENCE_MISMATCH, got %v", err)
	}
	if len(store.roles) != 0 {
		t.Fatal("mismatched track must not create a grant")
	}
}

func TestAssignRejectsDuplicateActiveGrant(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedWorld(store)
	svc := NewService(store, &fakeNotifier{}, nil, sequentialIDGenerator("role-1", "role-2"))

	if _, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		Position:     PositionSuperchair,
	}); err != nil {
		t.Fatalf("first assign: %v", err)
	}

	_, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		Position:     PositionSuperchair,
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeRoleAlreadyGranted, "")) {
		t.Fatalf("expected ROLE_ALREADY_GRANTED, got %v", err)
	}
}

func TestAssignAllowsRegrantAfterRevoke(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedWorld(store)
	svc := NewService(store, &fakeNotifier{}, nil, sequentialIDGenerator("role-1", "role-2"))

	first, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		Position:     PositionSuperchair,
	})
	if err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if _, err := svc.Revoke(context.Background(), first.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if _, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		Position:     PositionSuperchair,
	}); err != nil {
		t.Fatalf("regrant after revoke: %v", err)
	}
}

func TestAssignNotificationFailureAborts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedWorld(store)
	notifier := &fakeNotifier{fail: true}
	svc := NewService(store, notifier, nil, sequentialIDGenerator("role-1"))

	_, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		TrackID:      "track-1",
		Position:     PositionTrackMember,
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeNotificationSendFailed, "")) {
		t.Fatalf("expected NOTIFICATION_SEND_FAILED, got %v", err)
	}
	// The grant record stays behind unreferenced; the user list is untouched.
	if got := store.users["user-1"].RoleIDs; len(got) != 0 {
		t.Fatalf("user role list = %v, want empty", got)
	}
}

func TestAssignUserNotAttachedKeepsOrphanGrant(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedWorld(store)
	store.attachFails = true
	svc := NewService(store, &fakeNotifier{}, nil, sequentialIDGenerator("role-1"))

	_, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		Position:     PositionSuperchair,
	})
	if !errors.Is(err, apperrors.New(apperrors.CodeRoleNotAttached, "")) {
		t.Fatalf("expected ROLE_NOT_ATTACHED, got %v", err)
	}
	if _, ok := store.roles["role-1"]; !ok {
		t.Fatal("created grant must not be rolled back")
	}
}

func TestAssignUnknownPosition(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedWorld(store)
	svc := NewService(store, &fakeNotifier{}, nil, sequentialIDGenerator("role-1"))

	_, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		Position:     Position("emperor"),
	})
	if !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected invalid position error, got %v", err)
	}
}

func TestRevokeMissingGrant(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, &fakeNotifier{}, nil, nil)

	_, err := svc.Revoke(context.Background(), "role-missing")
	if !errors.Is(err, apperrors.New(apperrors.CodeRoleGrantUnavailable, "")) {
		t.Fatalf("expected ROLE_GRANT_UNAVAILABLE, got %v", err)
	}
}

func TestRevokeTwice(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedWorld(store)
	svc := NewService(store, &fakeNotifier{}, nil, sequentialIDGenerator("role-1"))

	grant, err := svc.Assign(context.Background(), AssignInput{
		UserID:       "user-1",
		ConferenceID: "conf-1",
		Position:     PositionSuperchair,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.Revoke(context.Background(), grant.ID); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	_, err = svc.Revoke(context.Background(), grant.ID)
	if !errors.Is(err, apperrors.New(apperrors.CodeRoleAlreadyRevoked, "")) {
		t.Fatalf("expected ROLE_ALREADY_REVOKED, got %v", err)
	}
}
