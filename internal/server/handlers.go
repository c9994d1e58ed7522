package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tributary-ai/diag-router/internal/routing"
	"github.com/tributary-ai/diag-router/internal/types"
)

// consultPayload is the request body shared by the consult, consensus,
// and routing-decision endpoints.
type consultPayload struct {
	ID             string            `json:"id,omitempty"`
	Text           string            `json:"text"`
	Attachment     string            `json:"attachment,omitempty"` // base64
	AttachmentMIME string            `json:"attachment_mime,omitempty"`
	Backend        string            `json:"backend,omitempty"`
	Params         map[string]string `json:"params,omitempty"`
	Backends       []string          `json:"backends,omitempty"`
	Assess         bool              `json:"assess,omitempty"`
}

type assessPayload struct {
	Text     string         `json:"text"`
	Category types.Category `json:"category,omitempty"`
}

func (p *consultPayload) toRequest() (*types.ConsultRequest, error) {
	req := &types.ConsultRequest{
		ID:             p.ID,
		Text:           p.Text,
		AttachmentMIME: p.AttachmentMIME,
		Timestamp:      time.Now(),
	}
	if p.Attachment != "" {
		data, err := base64.StdEncoding.DecodeString(p.Attachment)
		if err != nil {
			return nil, fmt.Errorf("attachment is not valid base64: %w", err)
		}
		req.Attachment = data
	}
	return req, nil
}

func (p *consultPayload) override() *routing.Override {
	if p.Backend == "" && len(p.Params) == 0 {
		return nil
	}
	return &routing.Override{BackendID: p.Backend, Params: p.Params}
}

// handleConsult is the single-backend path: route, execute with
// fallback, optionally assess the answer.
func (s *Server) handleConsult(w http.ResponseWriter, r *http.Request) {
	var payload consultPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if payload.Text == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "text is required")
		return
	}

	req, err := payload.toRequest()
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	result, decision, err := s.orchestrator.RouteAndInvoke(r.Context(), req, payload.override())
	if err != nil {
		if errors.Is(err, routing.ErrUnknownBackend) {
			s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeErrorResponse(w, http.StatusServiceUnavailable, fmt.Sprintf("Consult failed: %v", err))
		return
	}

	response := map[string]interface{}{
		"request_id": req.ID,
		"decision":   decision,
		"result":     result,
	}

	if payload.Assess && result.Succeeded {
		validation, scorecard := s.orchestrator.ValidateAndScore(result.RawText, decision.Category)
		response["validation"] = validation
		response["scorecard"] = scorecard
	}

	statusCode := http.StatusOK
	if !result.Succeeded {
		// Every candidate in the chain failed; the attempt trail in the
		// body says why.
		statusCode = http.StatusBadGateway
	}
	s.writeJSON(w, statusCode, response)
}

// handleConsensus fans the request out to a backend panel and merges
// the answers.
func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	var payload consultPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if payload.Text == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "text is required")
		return
	}

	req, err := payload.toRequest()
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.orchestrator.RouteAndConsensus(r.Context(), req, payload.Backends)
	if err != nil {
		if errors.Is(err, routing.ErrUnknownBackend) {
			s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeErrorResponse(w, http.StatusServiceUnavailable, fmt.Sprintf("Consensus failed: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": req.ID,
		"consensus":  result,
	})
}

// handleAssess validates and scores an answer supplied by the caller,
// independent of which backend produced it.
func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var payload assessPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if payload.Text == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "text is required")
		return
	}

	category := payload.Category
	if category == "" {
		category = types.CategoryGeneral
	}

	validation, scorecard := s.orchestrator.ValidateAndScore(payload.Text, category)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"category":   category,
		"validation": validation,
		"scorecard":  scorecard,
	})
}

// handleRoutingDecision returns the routing decision without executing it
func (s *Server) handleRoutingDecision(w http.ResponseWriter, r *http.Request) {
	var payload consultPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	decision, err := s.orchestrator.Decide(payload.Text, payload.override())
	if err != nil {
		if errors.Is(err, routing.ErrUnknownBackend) {
			s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeErrorResponse(w, http.StatusServiceUnavailable, fmt.Sprintf("Routing failed: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, decision)
}

// handleListBackends lists the configured backend catalogue
func (s *Server) handleListBackends(w http.ResponseWriter, r *http.Request) {
	descriptors := s.orchestrator.Registry().Descriptors()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backends": descriptors,
		"count":    len(descriptors),
	})
}

// handleGetBackend returns one backend descriptor
func (s *Server) handleGetBackend(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	descriptor, ok := s.orchestrator.Registry().Descriptor(id)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Backend %s not found", id))
		return
	}

	s.writeJSON(w, http.StatusOK, descriptor)
}

// handleHealthCheck reports process liveness and catalogue size
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"backends":  len(s.orchestrator.Registry().IDs()),
		"timestamp": time.Now().Unix(),
	})
}
