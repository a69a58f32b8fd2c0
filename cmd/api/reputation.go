package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// ReputationResponse is the GET /reputation/{domain} response.
type ReputationResponse struct {
	Domain         string `json:"domain"`
	Degraded       bool   `json:"degraded"`
	Bounces        int64  `json:"bounces"`
	FalsePositives int64  `json:"false_positives"`
	ConfidenceCap  int    `json:"confidence_cap"`
}

func reputationHandler(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]

	snap, err := repMonitor.GetReputation(r.Context(), domain)
	if err != nil {
		http.Error(w, "Failed to read reputation", http.StatusInternalServerError)
		return
	}

	resp := ReputationResponse{
		Domain:         snap.Domain,
		Degraded:       snap.Degraded,
		Bounces:        snap.Bounces,
		FalsePositives: snap.FalsePositives,
		ConfidenceCap:  snap.ConfidenceCap,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
