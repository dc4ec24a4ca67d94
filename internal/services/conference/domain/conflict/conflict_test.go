package conflict

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
)

type fakeStore struct {
	members map[string][]Profile
	papers  map[string][]Paper
	users   map[string]Profile
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members: make(map[string][]Profile),
		papers:  make(map[string][]Paper),
		users:   make(map[string]Profile),
	}
}

func (f *fakeStore) ListTrackMembers(_ context.Context, trackID string) ([]Profile, error) {
	return f.members[trackID], nil
}

func (f *fakeStore) ListTrackPapers(_ context.Context, trackID string) ([]Paper, error) {
	return f.papers[trackID], nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (Profile, error) {
	profile, ok := f.users[email]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return profile, nil
}

func TestDetectAffiliationOverlap(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.members["track-1"] = []Profile{
		{ID: "u-1", Name: "Ana Silva", Email: "ana@example.org", Affiliation: "MIT CSAIL"},
		{ID: "u-2", Name: "Bo Chen", Email: "bo@example.org", Affiliation: "ETH Zurich"},
	}
	store.papers["track-1"] = []Paper{
		{
			ID:         "p-1",
			Title:      "Substructural Widgets",
			RawAuthors: `[{"name":"Cara Diaz","email":"cara@example.org","affiliation":"mit"}]`,
		},
	}

	conflicts, err := NewService(store).Detect(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1: %+v", len(conflicts), conflicts)
	}
	c := conflicts[0]
	if c.MemberID != "u-1" || c.AuthorEmail != "cara@example.org" {
		t.Errorf("conflict pairs %s with %s", c.MemberID, c.AuthorEmail)
	}
	if len(c.PaperIDs) != 1 || c.PaperIDs[0] != "p-1" {
		t.Errorf("evidence papers = %v, want [p-1]", c.PaperIDs)
	}
}

func TestDetectMemberNeverConflictsWithSelf(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.members["track-1"] = []Profile{
		{ID: "u-1", Name: "Ana Silva", Email: "ana@example.org", Affiliation: "MIT"},
	}
	store.papers["track-1"] = []Paper{
		{ID: "p-1", RawAuthors: `[{"email":"Ana@example.org","affiliation":"MIT"}]`},
	}

	conflicts, err := NewService(store).Detect(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("got %d conflicts, want 0: %+v", len(conflicts), conflicts)
	}
}

func TestDetectResolvesBareEmailsThroughProfiles(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.members["track-1"] = []Profile{
		{ID: "u-1", Name: "Ana Silva", Email: "ana@example.org", Affiliation: "MIT CSAIL"},
	}
	store.papers["track-1"] = []Paper{
		{ID: "p-1", RawAuthors: `["cara@example.org", "ghost@example.org"]`},
	}
	store.users["cara@example.org"] = Profile{
		ID: "u-3", Name: "Cara Diaz", Email: "cara@example.org", Affiliation: "MIT",
	}

	conflicts, err := NewService(store).Detect(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1: %+v", len(conflicts), conflicts)
	}
	if conflicts[0].AuthorName != "Cara Diaz" {
		t.Errorf("author name = %q, want Cara Diaz", conflicts[0].AuthorName)
	}
}

func TestDetectMatchesPastAffiliations(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.members["track-1"] = []Profile{
		{
			ID:               "u-1",
			Name:             "Ana Silva",
			Email:            "ana@example.org",
			Affiliation:      "ETH Zurich",
			PastAffiliations: []string{"MIT CSAIL"},
		},
	}
	store.papers["track-1"] = []Paper{
		{ID: "p-1", RawAuthors: `[{"email":"cara@example.org","affiliation":"MIT"}]`},
	}

	conflicts, err := NewService(store).Detect(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	if conflicts[0].MemberAffiliation != "MIT CSAIL" {
		t.Errorf("matched affiliation = %q, want MIT CSAIL", conflicts[0].MemberAffiliation)
	}
}

func TestDetectEmptyAffiliationsNeverMatch(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.members["track-1"] = []Profile{
		{ID: "u-1", Email: "ana@example.org", Affiliation: ""},
	}
	store.papers["track-1"] = []Paper{
		{ID: "p-1", RawAuthors: `["cara@example.org"]`},
	}

	conflicts, err := NewService(store).Detect(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("got %d conflicts, want 0", len(conflicts))
	}
}

func TestDetectRequiresTrackID(t *testing.T) {
	t.Parallel()

	_, err := NewService(newFakeStore()).Detect(context.Background(), "")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeTrackIDRequired {
		t.Fatalf("Detect() error = %v, want TRACK_ID_REQUIRED", err)
	}
}
