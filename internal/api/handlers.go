package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/call-scanner/internal/report"
	"github.com/call-scanner/internal/types"
	"github.com/gorilla/mux"
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"trackedAddresses": s.registry.Len(),
	})
}

// handleLeaderboard handles GET /api/v1/leaderboard
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": report.Leaderboard(s.registry),
	})
}

// handleUserPerformance handles GET /api/v1/users/:id/performance
func (s *Server) handleUserPerformance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["id"]

	if userID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "User ID required", nil)
		return
	}

	respondJSON(w, http.StatusOK, report.PerformanceOf(s.registry, userID))
}

// handleListCalls handles GET /api/v1/calls - all tracked calls, newest first
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	snapshot := s.registry.Snapshot()

	calls := make([]*types.CallRecord, 0, len(snapshot))
	for _, record := range snapshot {
		calls = append(calls, record)
	}
	sort.Slice(calls, func(i, j int) bool {
		return calls[i].FirstSeenAt.After(calls[j].FirstSeenAt)
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"calls": calls,
		"count": len(calls),
	})
}

// handleGetCall handles GET /api/v1/calls/:address
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	record, ok := s.registry.Get(address)
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Address not tracked", map[string]interface{}{
			"address": address,
		})
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// handleInboundMessage handles POST /api/v1/messages - the chat gateway
// delivers messages here. Processing is asynchronous; delivery is accepted
// as soon as the payload parses.
func (s *Server) handleInboundMessage(w http.ResponseWriter, r *http.Request) {
	var msg types.Message
	if err := parseJSONBody(r, &msg); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if msg.AuthorID == "" || msg.ChannelID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "authorId and channelId are required", nil)
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	// The request context dies as soon as this handler returns; enrichment
	// must outlive it.
	go s.messageHandler.HandleMessage(context.WithoutCancel(r.Context()), msg)

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
