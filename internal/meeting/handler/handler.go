// Package handler exposes the meeting workflow as JSON over net/http. Every route expects the
// caller identity set by middleware.Auth.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"emeet/backend/internal/meeting/domain"
	"emeet/backend/internal/meeting/service"
	"emeet/backend/internal/server/middleware"
)

const maxBodyBytes = 16 << 10

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Service is the slice of service.MeetingService the handler needs.
type Service interface {
	RequestMeeting(ctx context.Context, requesterID, hostID, justification string) (*domain.MeetingRequest, error)
	Accept(ctx context.Context, requestID, hostID string, startAt time.Time, durationMinutes int) (*domain.Session, error)
	Decline(ctx context.Context, requestID, hostID, reason string) (*domain.MeetingRequest, error)
	ListRequests(ctx context.Context, userID string) ([]*domain.MeetingRequest, error)
	GetMeeting(ctx context.Context, sessionID string) (*service.Meeting, error)
	EndMeeting(ctx context.Context, sessionID, userID string) error
}

// Refresher brings a session's status up to date before it is shown or ended (sweep.MeetingJob).
type Refresher interface {
	Refresh(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error)
}

// Handler serves the meeting API.
type Handler struct {
	svc       Service
	refresher Refresher
	now       func() time.Time
}

// NewHandler returns a Handler. refresher may be nil; stored statuses are then shown as is.
func NewHandler(svc Service, refresher Refresher) *Handler {
	return &Handler{svc: svc, refresher: refresher, now: func() time.Time { return time.Now().UTC() }}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/requests", h.createRequest)
	mux.HandleFunc("GET /api/requests", h.listRequests)
	mux.HandleFunc("POST /api/requests/{id}/accept", h.acceptRequest)
	mux.HandleFunc("POST /api/requests/{id}/decline", h.declineRequest)
	mux.HandleFunc("GET /api/meetings/{id}", h.getMeeting)
	mux.HandleFunc("POST /api/meetings/{id}/end", h.endMeeting)
}

type requestJSON struct {
	ID            string     `json:"id"`
	RequesterID   string     `json:"requesterId"`
	HostID        string     `json:"hostId"`
	Justification string     `json:"justification"`
	Status        string     `json:"status"`
	DeclineReason string     `json:"declineReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
}

func toRequestJSON(r *domain.MeetingRequest) requestJSON {
	return requestJSON{
		ID:            r.ID,
		RequesterID:   r.RequesterID,
		HostID:        r.HostID,
		Justification: r.Justification,
		Status:        string(r.Status),
		DeclineReason: r.DeclineReason,
		CreatedAt:     r.CreatedAt,
		DecidedAt:     r.DecidedAt,
	}
}

type meetingJSON struct {
	ID              string    `json:"id"`
	RequestID       string    `json:"requestId"`
	RoomID          string    `json:"roomId"`
	StartAt         time.Time `json:"startAt"`
	EndAt           time.Time `json:"endAt"`
	DurationMinutes int       `json:"durationMinutes"`
	Status          string    `json:"status"`
	Secret          string    `json:"secret,omitempty"`
}

func toMeetingJSON(s *domain.Session, secret string) meetingJSON {
	return meetingJSON{
		ID:              s.ID,
		RequestID:       s.RequestID,
		RoomID:          s.RoomID(),
		StartAt:         s.StartAt,
		EndAt:           s.EndAt(),
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		Secret:          secret,
	}
}

type createRequestBody struct {
	HostID        string `json:"hostId" validate:"required,max=128"`
	Justification string `json:"justification" validate:"max=2000"`
}

type acceptRequestBody struct {
	StartAt         time.Time `json:"startAt" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"required"`
}

type declineRequestBody struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if !decode(w, r, &body) {
		return
	}
	req, err := h.svc.RequestMeeting(r.Context(), middleware.UserID(r.Context()), body.HostID, body.Justification)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestJSON(req))
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.svc.ListRequests(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]requestJSON, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toRequestJSON(req))
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (h *Handler) acceptRequest(w http.ResponseWriter, r *http.Request) {
	var body acceptRequestBody
	if !decode(w, r, &body) {
		return
	}
	s, err := h.svc.Accept(r.Context(), r.PathValue("id"), middleware.UserID(r.Context()), body.StartAt, body.DurationMinutes)
	if err != nil {
		writeError(w, err)
		return
	}
	// the host is a participant, so the secret is included
	writeJSON(w, http.StatusCreated, toMeetingJSON(s, s.Secret))
}

func (h *Handler) declineRequest(w http.ResponseWriter, r *http.Request) {
	var body declineRequestBody
	if !decode(w, r, &body) {
		return
	}
	req, err := h.svc.Decline(r.Context(), r.PathValue("id"), middleware.UserID(r.Context()), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestJSON(req))
}

func (h *Handler) getMeeting(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.refresh(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.svc.GetMeeting(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingJSON(m.Session, m.SecretFor(middleware.UserID(r.Context()))))
}

func (h *Handler) endMeeting(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.refresh(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.EndMeeting(r.Context(), id, middleware.UserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// refresh advances the stored status so a lagging sweep does not show (or refuse to end) a
// meeting in a stale state. A missing session is reported by the service call that follows.
func (h *Handler) refresh(ctx context.Context, sessionID string) error {
	if h.refresher == nil {
		return nil
	}
	if _, err := h.refresher.Refresh(ctx, sessionID, h.now()); err != nil {
		return errors.Join(domain.ErrPersistence, err)
	}
	return nil
}

// decode reads a JSON body into v and checks its field tags. Range rules such as the
// allowed meeting duration stay with the service.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid JSON body"})
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return "invalid request body"
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field()+" ("+f.Tag()+")")
	}
	return "invalid fields: " + strings.Join(names, ", ")
}

type errorJSON struct {
	Error string `json:"error"`
}

// statusFor maps the domain error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		log.Printf("meeting: handler: %v", err)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, errorJSON{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("meeting: handler: encode response: %v", err)
	}
}
