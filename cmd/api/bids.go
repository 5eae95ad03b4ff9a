package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dreamkeys/apperr"
	"dreamkeys/bid"
	"dreamkeys/policy"
)

type createBidRequest struct {
	PropertyID  string `json:"propertyId"`
	OfferAmount int64  `json:"offerAmount"`
	BuyerName   string `json:"buyerName"`
	// BuyingDate accepts YYYY-MM-DD or RFC 3339.
	BuyingDate string `json:"buyingDate"`

	// Sent by clients but never trusted: the buyer comes from the token,
	// title and agent from the listing.
	BuyerEmail    string `json:"buyerEmail"`
	PropertyTitle string `json:"propertyTitle"`
	AgentEmail    string `json:"agentEmail"`
}

func parseBuyingDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperr.InvalidArgument("buyingDate must be YYYY-MM-DD or RFC 3339")
}

func (s *Server) handleCreateBid(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.authorize(w, r, policy.Authenticated(), policy.InGoodStanding())
	if !ok {
		return
	}
	var req createBidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := parseBuyingDate(req.BuyingDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.bids.Create(r.Context(), sub, bid.CreateParams{
		PropertyID:  req.PropertyID,
		OfferAmount: req.OfferAmount,
		BuyingDate:  date,
		BuyerName:   req.BuyerName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{Message: "bid added", InsertedID: b.ID, Data: b})
}

func (s *Server) handleGetBid(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, policy.Authenticated()); !ok {
		return
	}
	b, err := s.bids.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBuyerBids(w http.ResponseWriter, r *http.Request) {
	views, err := s.bids.ListForBuyer(r.Context(), subject(r), chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAgentBids(w http.ResponseWriter, r *http.Request) {
	views, err := s.bids.ListForAgent(r.Context(), subject(r), chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDecideBid(to bid.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decide := s.bids.Accept
		if to == bid.StatusRejected {
			decide = s.bids.Reject
		}
		b, err := decide(r.Context(), subject(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, "bid "+string(b.Status), b)
	}
}
