// Package httpapi exposes the conference service as a JSON HTTP API.
//
// Every route runs behind session grant verification: requests carry the
// grant as a bearer token, and the resolved principal travels to the app
// layer on the request context. Requests without a grant still reach the
// app layer, which rejects them with UNAUTHENTICATED.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
	"github.com/openconf/openconf/internal/platform/requestctx"
	"github.com/openconf/openconf/internal/services/conference/api/session"
	server "github.com/openconf/openconf/internal/services/conference/app"
	"github.com/openconf/openconf/internal/services/conference/domain/notify"
	"github.com/openconf/openconf/internal/services/conference/domain/settings"
	"github.com/openconf/openconf/internal/services/conference/storage"
)

// Handler serves the conference HTTP API.
type Handler struct {
	server *server.Server
	grants session.Config
}

// New creates a handler over the app server with the given grant verifier
// configuration.
func New(srv *server.Server, grants session.Config) *Handler {
	return &Handler{server: srv, grants: grants}
}

// Routes builds the route table for the conference API.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/conferences", h.withPrincipal(h.handleConferences))
	mux.HandleFunc("/v1/conferences/", h.withPrincipal(h.handleConferencePath))
	mux.HandleFunc("/v1/tracks", h.withPrincipal(h.handleTracks))
	mux.HandleFunc("/v1/tracks/", h.withPrincipal(h.handleTrackPath))
	mux.HandleFunc("/v1/roles", h.withPrincipal(h.handleRoles))
	mux.HandleFunc("/v1/roles/status", h.withPrincipal(h.handleRoleStatus))
	mux.HandleFunc("/v1/roles/", h.withPrincipal(h.handleRolePath))
	mux.HandleFunc("/v1/papers", h.withPrincipal(h.handlePapers))
	mux.HandleFunc("/v1/inbox", h.withPrincipal(h.handleInbox))
	mux.HandleFunc("/v1/inbox/read", h.withPrincipal(h.handleInboxRead))
	return mux
}

// withPrincipal resolves the bearer session grant, when present, into the
// request context principal.
func (h *Handler) withPrincipal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next(w, r)
			return
		}
		grant, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, apperrors.New(apperrors.CodeSessionGrantInvalid, "authorization header must use the Bearer scheme"))
			return
		}
		principal, err := session.Verify(grant, h.grants)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(requestctx.WithPrincipal(r.Context(), principal)))
	}
}

type settingPayload struct {
	Value any    `json:"value"`
	Scope string `json:"scope,omitempty"`
}

type conferencePayload struct {
	ID            string                    `json:"id"`
	Name          string                    `json:"name"`
	SuperchairIDs []string                  `json:"superchair_ids"`
	Settings      map[string]settingPayload `json:"settings"`
	EndDate       *time.Time                `json:"end_date,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

type trackPayload struct {
	ID           string                    `json:"id"`
	ConferenceID string                    `json:"conference_id"`
	Name         string                    `json:"name"`
	ChairIDs     []string                  `json:"chair_ids"`
	MemberIDs    []string                  `json:"member_ids"`
	Settings     map[string]settingPayload `json:"settings"`
	CreatedAt    time.Time                 `json:"created_at"`
}

type rolePayload struct {
	ID           string    `json:"id"`
	ConferenceID string    `json:"conference_id"`
	TrackID      string    `json:"track_id,omitempty"`
	Position     string    `json:"position"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type statusEntryPayload struct {
	RoleID         string `json:"role_id"`
	ConferenceName string `json:"conference_name"`
	TrackName      string `json:"track_name,omitempty"`
	Position       string `json:"position"`
}

type roleStatusPayload struct {
	ActiveRoles []statusEntryPayload `json:"active_roles"`
	PastRoles   []statusEntryPayload `json:"past_roles"`
}

type relevantPersonPayload struct {
	UserID   string `json:"user_id"`
	Position string `json:"position"`
}

type conflictPayload struct {
	MemberID          string   `json:"member_id"`
	MemberName        string   `json:"member_name"`
	MemberAffiliation string   `json:"member_affiliation"`
	AuthorName        string   `json:"author_name,omitempty"`
	AuthorEmail       string   `json:"author_email,omitempty"`
	AuthorAffiliation string   `json:"author_affiliation"`
	PaperIDs          []string `json:"paper_ids"`
}

type paperPayload struct {
	ID         string    `json:"id"`
	TrackID    string    `json:"track_id"`
	Title      string    `json:"title"`
	RawAuthors string    `json:"raw_authors"`
	CreatedAt  time.Time `json:"created_at"`
}

type notificationPayload struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

type inboxPayload struct {
	Notifications []notificationPayload `json:"notifications"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type createConferenceRequest struct {
	Name    string     `json:"name"`
	EndDate *time.Time `json:"end_date,omitempty"`
}

type createTrackRequest struct {
	ConferenceID string `json:"conference_id"`
	Name         string `json:"name"`
}

type assignRoleRequest struct {
	UserID       string `json:"user_id"`
	ConferenceID string `json:"conference_id"`
	TrackID      string `json:"track_id,omitempty"`
	Position     string `json:"position"`
}

type submitPaperRequest struct {
	TrackID    string `json:"track_id"`
	Title      string `json:"title"`
	RawAuthors string `json:"raw_authors"`
}

type updateSettingsRequest struct {
	Settings map[string]settingPayload `json:"settings"`
}

type settingChangePayload struct {
	Key      string `json:"key"`
	OldScope string `json:"old_scope,omitempty"`
	NewScope string `json:"new_scope,omitempty"`
	OldValue any    `json:"old_value,omitempty"`
	NewValue any    `json:"new_value,omitempty"`
}

type trackChangePayload struct {
	TrackID string `json:"track_id"`
	Key     string `json:"key"`
	Action  string `json:"action"`
}

type reconciliationPayload struct {
	Changes      []settingChangePayload `json:"changes"`
	TrackChanges []trackChangePayload   `json:"track_changes"`
}

func (h *Handler) handleConferences(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req createConferenceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	record, err := h.server.CreateConference(r.Context(), server.CreateConferenceRequest{
		Name:    req.Name,
		EndDate: req.EndDate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conferencePayload{
		ID:            record.ID,
		Name:          record.Name,
		SuperchairIDs: record.SuperchairIDs,
		Settings:      settingsPayloadFromRecords(record.Settings),
		EndDate:       record.EndDate,
		CreatedAt:     record.CreatedAt,
	})
}

// handleConferencePath dispatches /v1/conferences/{id}/... subroutes.
func (h *Handler) handleConferencePath(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/conferences/"))
	if len(parts) == 2 && parts[1] == "settings" {
		h.handleUpdateConferenceSettings(w, r, parts[0])
		return
	}
	http.NotFound(w, r)
}

func (h *Handler) handleUpdateConferenceSettings(w http.ResponseWriter, r *http.Request, conferenceID string) {
	if !requireMethod(w, r, http.MethodPatch) {
		return
	}
	var req updateSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	values := make(settings.Map, len(req.Settings))
	for key, value := range req.Settings {
		values[key] = settings.ScopedValue{Value: value.Value, Scope: settings.Scope(value.Scope)}
	}
	summary, err := h.server.UpdateConferenceSettings(r.Context(), conferenceID, values)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := reconciliationPayload{
		Changes:      make([]settingChangePayload, 0, len(summary.Changes)),
		TrackChanges: make([]trackChangePayload, 0, len(summary.TrackChanges)),
	}
	for _, change := range summary.Changes {
		payload.Changes = append(payload.Changes, settingChangePayload{
			Key:      change.Key,
			OldScope: string(change.OldScope),
			NewScope: string(change.NewScope),
			OldValue: change.OldValue,
			NewValue: change.NewValue,
		})
	}
	for _, change := range summary.TrackChanges {
		payload.TrackChanges = append(payload.TrackChanges, trackChangePayload{
			TrackID: change.TrackID,
			Key:     change.Key,
			Action:  string(change.Action),
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleTracks(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req createTrackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	record, err := h.server.CreateTrack(r.Context(), server.CreateTrackRequest{
		ConferenceID: req.ConferenceID,
		Name:         req.Name,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trackPayload{
		ID:           record.ID,
		ConferenceID: record.ConferenceID,
		Name:         record.Name,
		ChairIDs:     record.ChairIDs,
		MemberIDs:    record.MemberIDs,
		Settings:     settingsPayloadFromRecords(record.Settings),
		CreatedAt:    record.CreatedAt,
	})
}

// handleTrackPath dispatches /v1/tracks/{id}/... subroutes.
func (h *Handler) handleTrackPath(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/tracks/"))
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	switch parts[1] {
	case "settings":
		h.handleEffectiveTrackSettings(w, r, parts[0])
	case "conflicts":
		h.handleTrackConflicts(w, r, parts[0])
	case "people":
		h.handleTrackPeople(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleEffectiveTrackSettings(w http.ResponseWriter, r *http.Request, trackID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	effective, err := h.server.GetEffectiveTrackSettings(r.Context(), trackID)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make(map[string]settingPayload, len(effective))
	for key, value := range effective {
		payload[key] = settingPayload{Value: value.Value, Scope: string(value.Scope)}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleTrackConflicts(w http.ResponseWriter, r *http.Request, trackID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	conflicts, err := h.server.DetectConflicts(r.Context(), trackID)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]conflictPayload, 0, len(conflicts))
	for _, found := range conflicts {
		payload = append(payload, conflictPayload{
			MemberID:          found.MemberID,
			MemberName:        found.MemberName,
			MemberAffiliation: found.MemberAffiliation,
			AuthorName:        found.AuthorName,
			AuthorEmail:       found.AuthorEmail,
			AuthorAffiliation: found.AuthorAffiliation,
			PaperIDs:          found.PaperIDs,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleTrackPeople(w http.ResponseWriter, r *http.Request, trackID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	people, err := h.server.GetRelevantPeople(r.Context(), trackID)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]relevantPersonPayload, 0, len(people))
	for _, person := range people {
		payload = append(payload, relevantPersonPayload{
			UserID:   person.UserID,
			Position: string(person.Position),
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleRoles(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req assignRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	grant, err := h.server.AssignRole(r.Context(), server.AssignRoleRequest{
		UserID:       req.UserID,
		ConferenceID: req.ConferenceID,
		TrackID:      req.TrackID,
		Position:     req.Position,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rolePayloadFrom(grant.ID, grant.ConferenceID, grant.TrackID, string(grant.Position), grant.Active, grant.CreatedAt))
}

func (h *Handler) handleRoleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	status, err := h.server.GetRoleStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	payload := roleStatusPayload{
		ActiveRoles: make([]statusEntryPayload, 0, len(status.ActiveRoles)),
		PastRoles:   make([]statusEntryPayload, 0, len(status.PastRoles)),
	}
	for _, entry := range status.ActiveRoles {
		payload.ActiveRoles = append(payload.ActiveRoles, statusEntryPayload{
			RoleID:         entry.RoleID,
			ConferenceName: entry.ConferenceName,
			TrackName:      entry.TrackName,
			Position:       string(entry.Position),
		})
	}
	for _, entry := range status.PastRoles {
		payload.PastRoles = append(payload.PastRoles, statusEntryPayload{
			RoleID:         entry.RoleID,
			ConferenceName: entry.ConferenceName,
			TrackName:      entry.TrackName,
			Position:       string(entry.Position),
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleRolePath dispatches /v1/roles/{id}/... subroutes.
func (h *Handler) handleRolePath(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/roles/"))
	if len(parts) == 2 && parts[1] == "revoke" {
		h.handleRevokeRole(w, r, parts[0])
		return
	}
	http.NotFound(w, r)
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request, roleID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	grant, err := h.server.RevokeRole(r.Context(), roleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rolePayloadFrom(grant.ID, grant.ConferenceID, grant.TrackID, string(grant.Position), grant.Active, grant.CreatedAt))
}

func (h *Handler) handlePapers(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req submitPaperRequest
	if !decodeBody(w, r, &req) {
		return
	}
	record, err := h.server.SubmitPaper(r.Context(), server.SubmitPaperRequest{
		TrackID:    req.TrackID,
		Title:      req.Title,
		RawAuthors: req.RawAuthors,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, paperPayload{
		ID:         record.ID,
		TrackID:    record.TrackID,
		Title:      record.Title,
		RawAuthors: record.RawAuthors,
		CreatedAt:  record.CreatedAt,
	})
}

func (h *Handler) handleInbox(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	pageSize := 0
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorPayload{
				Code:    "INVALID_PAGE_SIZE",
				Message: "page_size must be an integer",
			})
			return
		}
		pageSize = parsed
	}
	page, err := h.server.ListInbox(r.Context(), pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inboxPayloadFrom(page))
}

func (h *Handler) handleInboxRead(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	count, err := h.server.MarkInboxRead(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked_read": count})
}

func rolePayloadFrom(id, conferenceID, trackID, position string, active bool, createdAt time.Time) rolePayload {
	return rolePayload{
		ID:           id,
		ConferenceID: conferenceID,
		TrackID:      trackID,
		Position:     position,
		Active:       active,
		CreatedAt:    createdAt,
	}
}

func inboxPayloadFrom(page notify.Page) inboxPayload {
	payload := inboxPayload{
		Notifications: make([]notificationPayload, 0, len(page.Notifications)),
		NextPageToken: page.NextPageToken,
	}
	for _, notification := range page.Notifications {
		payload.Notifications = append(payload.Notifications, notificationPayload{
			ID:        notification.ID,
			Title:     notification.Title,
			Body:      notification.Body,
			Link:      notification.Link,
			CreatedAt: notification.CreatedAt,
			ReadAt:    notification.ReadAt,
		})
	}
	return payload
}

func settingsPayloadFromRecords(records map[string]storage.SettingRecord) map[string]settingPayload {
	payload := make(map[string]settingPayload, len(records))
	for key, record := range records {
		payload[key] = settingPayload{Value: record.Value, Scope: record.Scope}
	}
	return payload
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeJSON(w, http.StatusMethodNotAllowed, errorPayload{
			Code:    "METHOD_NOT_ALLOWED",
			Message: "method " + r.Method + " is not allowed",
		})
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Code:    "INVALID_BODY",
			Message: "request body is not valid JSON: " + err.Error(),
		})
		return false
	}
	return true
}

type errorPayload struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, errorPayload{
			Code:    string(apperrors.CodeUnknown),
			Message: "internal error",
		})
		return
	}
	writeJSON(w, httpStatus(appErr.Code), errorPayload{
		Code:     string(appErr.Code),
		Message:  appErr.Message,
		Metadata: appErr.Metadata,
	})
}

// httpStatus maps domain error codes to HTTP statuses. Session grant
// failures surface as 401 regardless of their gRPC classification so that
// clients refresh credentials instead of fixing the request.
func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.CodeSessionGrantInvalid, apperrors.CodeSessionGrantExpired:
		return http.StatusUnauthorized
	}
	switch code.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
