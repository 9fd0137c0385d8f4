package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	appNegotiation "github.com/accord-hub/accord/internal/application/negotiation"
	"github.com/accord-hub/accord/internal/domain/negotiation"
	"github.com/accord-hub/accord/internal/infrastructure/ical"
)

const idempotencyKeyHeader = "Idempotency-Key"

type negotiationCreateRequest struct {
	ID             *uuid.UUID               `json:"id,omitempty"`
	Title          string                   `json:"title"`
	IntentCategory string                   `json:"intentCategory,omitempty"`
	ParticipantIDs []string                 `json:"participantIds"`
	Slots          []negotiation.SlotInput  `json:"slots"`
	Venues         []negotiation.VenueInput `json:"venues,omitempty"`
	ExpiresAt      *time.Time               `json:"expiresAt,omitempty"`
	AgentMode      bool                     `json:"agentMode,omitempty"`
	Draft          bool                     `json:"draft,omitempty"`
}

type replyRequest struct {
	Action        negotiation.Action       `json:"action"`
	CounterSlots  []negotiation.SlotInput  `json:"counterSlots,omitempty"`
	CounterVenues []negotiation.VenueInput `json:"counterVenues,omitempty"`
}

type negotiationListResponse struct {
	Items      []*negotiation.Negotiation `json:"items"`
	NextCursor string                     `json:"next_cursor,omitempty"`
}

func (s *Server) createNegotiation(w http.ResponseWriter, r *http.Request) {
	var req negotiationCreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	in := appNegotiation.CreateInput{
		Owner:          callerFromContext(r.Context()),
		Title:          req.Title,
		IntentCategory: req.IntentCategory,
		ParticipantIDs: req.ParticipantIDs,
		Slots:          req.Slots,
		Venues:         req.Venues,
		ExpiresAt:      req.ExpiresAt,
		AgentMode:      req.AgentMode,
		Draft:          req.Draft,
	}
	if req.ID != nil {
		in.ID = *req.ID
	}
	n, err := s.negotiationSvc.Create(r.Context(), in)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, n)
}

func (s *Server) listNegotiations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	q := r.URL.Query()
	in := appNegotiation.ListInput{
		UserID: callerFromContext(r.Context()),
		Cursor: q.Get("cursor"),
		Limit:  limit,
	}
	if v := strings.TrimSpace(q.Get("state")); v != "" {
		state := negotiation.State(v)
		in.State = &state
	}
	if v := strings.TrimSpace(q.Get("role")); v != "" {
		role := negotiation.Role(v)
		in.Role = &role
	}
	page, err := s.negotiationSvc.List(r.Context(), in)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	items := page.Items
	if items == nil {
		items = []*negotiation.Negotiation{}
	}
	respondJSON(w, http.StatusOK, negotiationListResponse{Items: items, NextCursor: page.NextCursor})
}

func (s *Server) getNegotiation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "negotiationId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	n, err := s.negotiationSvc.Get(r.Context(), id, callerFromContext(r.Context()))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (s *Server) replyNegotiation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "negotiationId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var req replyRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	n, err := s.negotiationSvc.Reply(r.Context(), appNegotiation.ReplyInput{
		NegotiationID:  id,
		UserID:         callerFromContext(r.Context()),
		Action:         req.Action,
		CounterSlots:   req.CounterSlots,
		CounterVenues:  req.CounterVenues,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (s *Server) sendInvites(w http.ResponseWriter, r *http.Request) {
	s.ownerAction(w, r, s.negotiationSvc.SendInvites)
}

func (s *Server) finalizeInvites(w http.ResponseWriter, r *http.Request) {
	s.ownerAction(w, r, s.negotiationSvc.FinalizeInvites)
}

func (s *Server) cancelNegotiation(w http.ResponseWriter, r *http.Request) {
	s.ownerAction(w, r, s.negotiationSvc.Cancel)
}

type ownerActionFunc func(ctx context.Context, id uuid.UUID, callerID string) (*negotiation.Negotiation, error)

func (s *Server) ownerAction(w http.ResponseWriter, r *http.Request, fn ownerActionFunc) {
	id, err := parseUUIDParam(r, "negotiationId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	n, err := fn(r.Context(), id, callerFromContext(r.Context()))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "negotiationId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	transitions, err := s.negotiationSvc.ListTransitions(r.Context(), id, callerFromContext(r.Context()))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if transitions == nil {
		transitions = []*negotiation.Transition{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transitions": transitions})
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "negotiationId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	e, err := s.negotiationSvc.GetEvent(r.Context(), id, callerFromContext(r.Context()))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) getEventICS(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "negotiationId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	e, err := s.negotiationSvc.GetEvent(r.Context(), id, callerFromContext(r.Context()))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	body, err := ical.Render(e)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+e.ID.String()+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
