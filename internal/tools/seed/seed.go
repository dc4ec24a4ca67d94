// Package seed populates a local development database with demo conference
// data by exercising the app server operations end to end.
package seed

import (
	"context"
	"fmt"
	"io"
	"time"

	platformid "github.com/openconf/openconf/internal/platform/id"
	"github.com/openconf/openconf/internal/platform/requestctx"
	server "github.com/openconf/openconf/internal/services/conference/app"
	"github.com/openconf/openconf/internal/services/conference/domain/settings"
	"github.com/openconf/openconf/internal/services/conference/storage"
	storagesqlite "github.com/openconf/openconf/internal/services/conference/storage/sqlite"
)

// Config controls what the seeder creates and where.
type Config struct {
	DBPath  string
	Verbose bool
}

// demoUser describes one seeded account.
type demoUser struct {
	name        string
	email       string
	affiliation string
}

var demoUsers = []demoUser{
	{name: "Ana Moreira", email: "ana@example.org", affiliation: "University of Lisbon"},
	{name: "Ben Okafor", email: "ben@example.org", affiliation: "ETH Zurich"},
	{name: "Carla Diaz", email: "carla@example.org", affiliation: "MIT CSAIL"},
	{name: "Deniz Kaya", email: "deniz@example.org", affiliation: "MIT"},
}

// Run seeds the database at cfg.DBPath with a demo conference, two tracks,
// a program committee, and submissions that exercise conflict detection.
func Run(ctx context.Context, out io.Writer, cfg Config) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	store, err := storagesqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	srv := server.New(server.Stores{
		Users:         store,
		Conferences:   store,
		Tracks:        store,
		Papers:        store,
		Roles:         store,
		Notifications: store,
	}, nil, nil)

	logf := func(format string, args ...any) {
		if cfg.Verbose && out != nil {
			fmt.Fprintf(out, format+"\n", args...)
		}
	}

	userIDs := make([]string, 0, len(demoUsers))
	for _, user := range demoUsers {
		userID, err := platformid.NewID()
		if err != nil {
			return fmt.Errorf("generate user id: %w", err)
		}
		now := time.Now().UTC()
		if err := store.PutUser(ctx, storage.UserRecord{
			ID:          userID,
			Name:        user.name,
			Email:       user.email,
			Affiliation: user.affiliation,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return fmt.Errorf("seed user %s: %w", user.email, err)
		}
		userIDs = append(userIDs, userID)
		logf("user %s <%s>", user.name, user.email)
	}

	chairCtx := requestctx.WithPrincipal(ctx, requestctx.Principal{
		UserID: userIDs[0],
		Email:  demoUsers[0].email,
	})

	endDate := time.Now().AddDate(0, 6, 0).UTC()
	conference, err := srv.CreateConference(chairCtx, server.CreateConferenceRequest{
		Name:    "OpenConf Demo 2026",
		EndDate: &endDate,
	})
	if err != nil {
		return fmt.Errorf("create conference: %w", err)
	}
	logf("conference %s (%s)", conference.Name, conference.ID)

	trackNames := []string{"Systems", "Theory"}
	trackIDs := make([]string, 0, len(trackNames))
	for _, name := range trackNames {
		track, err := srv.CreateTrack(chairCtx, server.CreateTrackRequest{
			ConferenceID: conference.ID,
			Name:         name,
		})
		if err != nil {
			return fmt.Errorf("create track %s: %w", name, err)
		}
		trackIDs = append(trackIDs, track.ID)
		logf("track %s (%s)", track.Name, track.ID)
	}

	// Ben chairs Systems; Carla serves on its committee.
	if _, err := srv.AssignRole(chairCtx, server.AssignRoleRequest{
		UserID:       userIDs[1],
		ConferenceID: conference.ID,
		TrackID:      trackIDs[0],
		Position:     "track_chair",
	}); err != nil {
		return fmt.Errorf("assign track chair: %w", err)
	}
	if _, err := srv.AssignRole(chairCtx, server.AssignRoleRequest{
		UserID:       userIDs[2],
		ConferenceID: conference.ID,
		TrackID:      trackIDs[0],
		Position:     "track_member",
	}); err != nil {
		return fmt.Errorf("assign track member: %w", err)
	}

	// Deniz submits to Systems; the shared MIT affiliation with Carla gives
	// conflict detection something to find.
	authorCtx := requestctx.WithPrincipal(ctx, requestctx.Principal{
		UserID: userIDs[3],
		Email:  demoUsers[3].email,
	})
	if _, err := srv.SubmitPaper(authorCtx, server.SubmitPaperRequest{
		TrackID:    trackIDs[0],
		Title:      "Deterministic Replay for Distributed Snapshots",
		RawAuthors: fmt.Sprintf("[%q]", demoUsers[3].email),
	}); err != nil {
		return fmt.Errorf("submit paper: %w", err)
	}
	logf("submission by %s", demoUsers[3].email)

	// Flip one setting to track scope so per-track overrides are visible.
	if _, err := srv.UpdateConferenceSettings(chairCtx, conference.ID, settings.Map{
		settings.KeyDoubleBlindReview: {Value: true, Scope: settings.ScopeTrack},
	}); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}

	logf("seed complete")
	return nil
}
