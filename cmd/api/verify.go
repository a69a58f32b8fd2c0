package main

import (
	"encoding/json"
	"net/http"
	"time"

	"mailvetter/internal/orchestrator"
)

// VerifyRequest is the POST /verify body.
type VerifyRequest struct {
	Emails     []string `json:"emails"`
	CustomerID string   `json:"customer_id"`
	UseProbe   bool     `json:"use_probe"`
	IPIndex    *int     `json:"ip_index,omitempty"`
}

// VerifyResultJSON is the wire shape of one orchestrator.VerifyResult.
type VerifyResultJSON struct {
	Email       string  `json:"email"`
	Status      string  `json:"status"`
	Deliverable *bool   `json:"deliverable,omitempty"`
	Confidence  int     `json:"confidence"`
	CatchAll    *bool   `json:"catch_all,omitempty"`
	RetryAfter  *int    `json:"retry_after,omitempty"`
	Source      string  `json:"source"`
	Reason      string  `json:"reason"`
}

// VerifyResponse is the POST /verify response body.
type VerifyResponse struct {
	Results          []VerifyResultJSON `json:"results"`
	TotalProcessed   int                `json:"total_processed"`
	TotalErrors      int                `json:"total_errors"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
}

const maxBatchSize = 1000

func allQuotaExceeded(results []orchestrator.VerifyResult) bool {
	for _, r := range results {
		if r.Reason != "quota_exceeded" {
			return false
		}
	}
	return true
}

func verifyHandler(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Malformed JSON body", http.StatusBadRequest)
		return
	}

	if len(req.Emails) < 1 || len(req.Emails) > maxBatchSize {
		http.Error(w, "emails must contain between 1 and 1000 addresses", http.StatusBadRequest)
		return
	}
	if len(req.CustomerID) < 1 || len(req.CustomerID) > 255 {
		http.Error(w, "customer_id must be 1-255 characters", http.StatusBadRequest)
		return
	}

	start := time.Now()
	results := orch.VerifyBatch(r.Context(), req.CustomerID, req.Emails)

	// If every address in the batch was gated by quota_exceeded, treat the
	// whole request as quota-exceeded rather than returning 200 with an
	// all-risky body.
	if len(results) > 0 && allQuotaExceeded(results) {
		first := results[0]
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"detail": map[string]interface{}{
				"error":    "quota exceeded",
				"limit":    first.QuotaLimit,
				"used":     first.QuotaUsed,
				"reset_in": first.RetryAfter,
			},
		})
		return
	}

	totalErrors := 0
	out := make([]VerifyResultJSON, len(results))
	for i, res := range results {
		if res.Status == "invalid" || res.Status == "unknown" {
			totalErrors++
		}
		var retryAfter *int
		if res.RetryAfter > 0 {
			ra := res.RetryAfter
			retryAfter = &ra
		}
		out[i] = VerifyResultJSON{
			Email:       res.Email,
			Status:      string(res.Status),
			Deliverable: res.Deliverable,
			Confidence:  res.Confidence,
			CatchAll:    res.CatchAll,
			RetryAfter:  retryAfter,
			Source:      string(res.Source),
			Reason:      res.Reason,
		}
	}

	resp := VerifyResponse{
		Results:          out,
		TotalProcessed:   len(out),
		TotalErrors:      totalErrors,
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
