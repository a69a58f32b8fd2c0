package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// QuotaUsageResponse is the GET /quota/{customer_id}/{domain} response.
type QuotaUsageResponse struct {
	CustomerUsed    int64 `json:"customer_used"`
	CustomerLimit   int   `json:"customer_limit"`
	GlobalUsed      int64 `json:"global_used"`
	GlobalLimit     int   `json:"global_limit"`
	CustomerResetIn int   `json:"customer_reset_in"`
	GlobalResetIn   int   `json:"global_reset_in"`
}

func quotaHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	customerID := vars["customer_id"]
	domain := vars["domain"]

	usage, err := quotaMgr.GetUsage(r.Context(), customerID, domain, "default")
	if err != nil {
		http.Error(w, "Failed to read quota usage", http.StatusInternalServerError)
		return
	}

	resp := QuotaUsageResponse{
		CustomerUsed:    usage.CustomerUsed,
		CustomerLimit:   usage.CustomerLimit,
		GlobalUsed:      usage.GlobalUsed,
		GlobalLimit:     usage.GlobalLimit,
		CustomerResetIn: int(usage.CustomerResetIn.Seconds()),
		GlobalResetIn:   int(usage.GlobalResetIn.Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
