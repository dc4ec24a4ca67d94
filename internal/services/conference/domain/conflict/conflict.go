package conflict

import (
	"context"
	"sort"
	"strings"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
)

// Profile is the member-facing view of a stored user used for matching.
type Profile struct {
	ID               string
	Name             string
	Email            string
	Affiliation      string
	PastAffiliations []string
}

// Paper is a submission attached to a track. RawAuthors keeps the stored
// author blob verbatim so evidence matching can scan it directly.
type Paper struct {
	ID         string
	Title      string
	RawAuthors string
}

// Conflict pairs a track member with a paper author whose affiliations
// overlap, plus the papers that author appears on.
type Conflict struct {
	MemberID          string
	MemberName        string
	MemberAffiliation string
	AuthorName        string
	AuthorEmail       string
	AuthorAffiliation string
	PaperIDs          []string
}

// Store is the read surface conflict detection needs.
type Store interface {
	ListTrackMembers(ctx context.Context, trackID string) ([]Profile, error)
	ListTrackPapers(ctx context.Context, trackID string) ([]Paper, error)
	GetUserByEmail(ctx context.Context, email string) (Profile, error)
}

// ErrNotFound is returned by Store implementations when a lookup misses.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "not found")

// Service computes conflicts on demand.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Detect cross-references the track's member roster against every author of
// every paper on the track and reports affiliation overlaps.
//
// This is a permissive heuristic: two affiliation strings conflict when one
// contains the other case-insensitively, so "MIT" matches "MIT CSAIL" but
// also produces false positives on short substrings. The result is advisory
// and never blocks an assignment. Cost is member count times author count,
// plus one pass over the papers per conflict for evidence.
func (s *Service) Detect(ctx context.Context, trackID string) ([]Conflict, error) {
	if trackID == "" {
		return nil, apperrors.New(apperrors.CodeTrackIDRequired, "track id is required")
	}

	members, err := s.store.ListTrackMembers(ctx, trackID)
	if err != nil {
		return nil, err
	}
	papers, err := s.store.ListTrackPapers(ctx, trackID)
	if err != nil {
		return nil, err
	}

	authors := s.resolveAuthors(ctx, papers)

	var conflicts []Conflict
	for _, member := range members {
		for _, author := range authors {
			if author.Email == normalizeEmail(member.Email) {
				// A member never conflicts with their own submissions.
				continue
			}
			affiliation, ok := matchAffiliation(member, author.Affiliation)
			if !ok {
				continue
			}
			conflicts = append(conflicts, Conflict{
				MemberID:          member.ID,
				MemberName:        member.Name,
				MemberAffiliation: affiliation,
				AuthorName:        author.Name,
				AuthorEmail:       author.Email,
				AuthorAffiliation: author.Affiliation,
				PaperIDs:          evidencePapers(papers, author.Email),
			})
		}
	}
	return conflicts, nil
}

// resolveAuthors flattens every paper's author blob into a distinct set and
// backfills missing affiliations from stored profiles. Authors with no
// matching profile stay as bare emails; with an empty affiliation they can
// never match, which is the fail-soft outcome we want for unknown people.
func (s *Service) resolveAuthors(ctx context.Context, papers []Paper) []Author {
	var all []Author
	for _, paper := range papers {
		all = append(all, ParseAuthors(paper.RawAuthors)...)
	}
	authors := Distinct(all)
	for i, author := range authors {
		if author.Affiliation != "" {
			continue
		}
		profile, err := s.store.GetUserByEmail(ctx, author.Email)
		if err != nil {
			continue
		}
		authors[i].Affiliation = profile.Affiliation
		if authors[i].Name == "" {
			authors[i].Name = profile.Name
		}
	}
	return authors
}

// matchAffiliation checks the author affiliation against the member's
// current and past affiliations and reports the member-side string that
// matched.
func matchAffiliation(member Profile, authorAffiliation string) (string, bool) {
	if affiliationsOverlap(member.Affiliation, authorAffiliation) {
		return member.Affiliation, true
	}
	for _, past := range member.PastAffiliations {
		if affiliationsOverlap(past, authorAffiliation) {
			return past, true
		}
	}
	return "", false
}

func affiliationsOverlap(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// evidencePapers lists the papers whose raw author blob mentions the email.
// The scan is over the stored blob rather than the parsed set so papers with
// malformed entries still surface when the email is present verbatim.
func evidencePapers(papers []Paper, email string) []string {
	var ids []string
	for _, paper := range papers {
		if strings.Contains(strings.ToLower(paper.RawAuthors), email) {
			ids = append(ids, paper.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
