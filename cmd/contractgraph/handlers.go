package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brunobiangulo/contractgraph"
	"github.com/brunobiangulo/contractgraph/contract"
)

const (
	askTimeout   = 2 * time.Minute
	maxBodyBytes = 64 << 10
)

// engine is the part of *contractgraph.Engine the HTTP surface needs.
type engine interface {
	Ask(ctx context.Context, question string) (*contractgraph.Answer, error)
	Contracts() []*contract.Contract
	Contract(id string) (*contract.Contract, bool)
}

type handler struct {
	eng engine
}

func newRouter(eng engine, apiKey, corsOrigins string) http.Handler {
	h := &handler{eng: eng}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /ask", h.ask)
	mux.HandleFunc("GET /contracts", h.listContracts)
	mux.HandleFunc("GET /contracts/{id}", h.getContract)
	return chain(mux, recoveryMiddleware, corsMiddleware(corsOrigins), authMiddleware(apiKey), logMiddleware)
}

type askRequest struct {
	Query    string `json:"query"`
	Question string `json:"question"`
}

func (h *handler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	q := strings.TrimSpace(req.Query)
	if q == "" {
		q = strings.TrimSpace(req.Question)
	}
	if q == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), askTimeout)
	defer cancel()

	ans, err := h.eng.Ask(ctx, q)
	if err != nil {
		status := statusFor(err)
		slog.Error("ask failed", "query", q, "status", status, "error", err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

type contractSummary struct {
	ID           string   `json:"id"`
	ContractType string   `json:"contract_type,omitempty"`
	GoverningLaw string   `json:"governing_law,omitempty"`
	Parties      []string `json:"parties"`
	Embedded     bool     `json:"embedded"`
}

func (h *handler) listContracts(w http.ResponseWriter, r *http.Request) {
	all := h.eng.Contracts()
	out := make([]contractSummary, 0, len(all))
	for _, c := range all {
		out = append(out, contractSummary{
			ID:           c.ID,
			ContractType: contract.Deref(c.ContractType),
			GoverningLaw: contract.Deref(c.GoverningLaw),
			Parties:      c.PartyNames(),
			Embedded:     c.HasEmbedding(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getContract(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := h.eng.Contract(id)
	if !ok {
		writeError(w, http.StatusNotFound, "contract not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"contracts": len(h.eng.Contracts()),
	})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, contractgraph.ErrModelUnreachable),
		errors.Is(err, contractgraph.ErrEngineClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
