package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"dreamkeys/apperr"
	"dreamkeys/policy"
	"dreamkeys/property"
)

type createPropertyRequest struct {
	Title       string `json:"title"`
	Location    string `json:"location"`
	ImageURL    string `json:"imageUrl"`
	AgentName   string `json:"agentName"`
	AgentImage  string `json:"agentImage"`
	PriceMin    int64  `json:"priceMin"`
	PriceMax    int64  `json:"priceMax"`
	Description string `json:"description"`
}

func (s *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.authorize(w, r, policy.AgentInGoodStanding()...)
	if !ok {
		return
	}
	var req createPropertyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.properties.Create(r.Context(), sub, property.CreateParams{
		AgentName:   req.AgentName,
		AgentImage:  req.AgentImage,
		Title:       req.Title,
		Location:    req.Location,
		ImageURL:    req.ImageURL,
		PriceMin:    req.PriceMin,
		PriceMax:    req.PriceMax,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{Message: "property added", InsertedID: p.ID, Data: p})
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := property.ListFilter{AgentEmail: strings.TrimSpace(q.Get("agentEmail"))}

	if v := strings.TrimSpace(q.Get("status")); v != "" {
		st := property.Status(strings.ToLower(v))
		if !st.Valid() {
			writeError(w, r, apperr.InvalidArgument("invalid status %q", v))
			return
		}
		filter.Status = st
	}
	if v := strings.TrimSpace(q.Get("advertised")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, apperr.InvalidArgument("advertised must be a boolean"))
			return
		}
		filter.Advertised = &b
	}

	list, err := s.properties.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := s.properties.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updatePropertyRequest struct {
	Title       *string `json:"title"`
	Location    *string `json:"location"`
	ImageURL    *string `json:"imageUrl"`
	PriceMin    *int64  `json:"priceMin"`
	PriceMax    *int64  `json:"priceMax"`
	Description *string `json:"description"`
}

func (s *Server) handleUpdateProperty(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.authorize(w, r, policy.Authenticated())
	if !ok {
		return
	}
	var req updatePropertyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.properties.Update(r.Context(), sub, chi.URLParam(r, "id"), property.UpdateParams{
		Title:       req.Title,
		Location:    req.Location,
		ImageURL:    req.ImageURL,
		PriceMin:    req.PriceMin,
		PriceMax:    req.PriceMax,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMutation(w, "property updated", p)
}

func (s *Server) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	p, err := s.properties.Delete(r.Context(), subject(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "property deleted", "deletedCount": 1, "data": p})
}

type verifyRequest struct {
	VerificationStatus string  `json:"verificationStatus"`
	Expected           *string `json:"expected"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.authorize(w, r, policy.AdminOnly()...)
	if !ok {
		return
	}
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := property.ParseOutcome(req.VerificationStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var opts property.VerifyOptions
	if req.Expected != nil {
		st := property.Status(strings.ToLower(strings.TrimSpace(*req.Expected)))
		if !st.Valid() {
			writeError(w, r, apperr.InvalidArgument("invalid expected status %q", *req.Expected))
			return
		}
		opts.Expected = &st
	}

	p, err := s.properties.Verify(r.Context(), sub, chi.URLParam(r, "id"), outcome, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMutation(w, "verification status updated", p)
}

func (s *Server) handleAdvertise(advertised bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.properties.SetAdvertised(r.Context(), subject(r), chi.URLParam(r, "id"), advertised)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, "advertising updated", p)
	}
}

func (s *Server) handlePurgeAgent(w http.ResponseWriter, r *http.Request) {
	n, err := s.properties.DeleteAllByAgent(r.Context(), subject(r), chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "agent properties deleted", "deletedCount": n})
}

type reportRequest struct {
	ReporterName      string `json:"reporterName"`
	ReportDescription string `json:"reportDescription"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.authorize(w, r, policy.Authenticated())
	if !ok {
		return
	}
	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := s.properties.Report(r.Context(), sub, chi.URLParam(r, "id"), property.ReportParams{
		ReporterName: req.ReporterName,
		Description:  req.ReportDescription,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{Message: "property reported", InsertedID: rep.ID, Data: rep})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	list, err := s.properties.ListReports(r.Context(), subject(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
