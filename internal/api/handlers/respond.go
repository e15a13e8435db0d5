package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/platewise/billing-service/internal/service"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeReason(w http.ResponseWriter, code int, reason service.Reason) {
	writeJSON(w, code, map[string]string{"reason": string(reason)})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
