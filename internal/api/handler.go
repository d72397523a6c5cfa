// Package api exposes the HTTP surface: transaction ingestion, assessment
// and case retrieval, analyst actions, portfolio metrics and health.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wekeza/riskengine/internal/domain"
	"github.com/wekeza/riskengine/internal/engine"
	"github.com/wekeza/riskengine/internal/portfolio"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	engine     *engine.Engine
	aggregator *portfolio.Aggregator
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Engine, aggregator *portfolio.Aggregator, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		engine:     eng,
		aggregator: aggregator,
		version:    version,
	}
}

// TransactionRequest is the request body for POST /transactions.
type TransactionRequest struct {
	ID               string          `json:"id,omitempty"`
	CustomerID       string          `json:"customerId"`
	AccountNumber    string          `json:"accountNumber,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Type             string          `json:"type"`
	MerchantName     string          `json:"merchantName,omitempty"`
	MerchantCategory string          `json:"merchantCategory,omitempty"`
	Location         string          `json:"location,omitempty"`
	Channel          string          `json:"channel"`
	Timestamp        *time.Time      `json:"timestamp,omitempty"`
}

// IngestResponse is the response for POST /transactions.
type IngestResponse struct {
	ID     string                   `json:"id"`
	Status domain.TransactionStatus `json:"status"`
}

// IngestTransaction handles POST /transactions. The transaction is stored
// PENDING; scoring happens on the next processing cycle.
func (h *Handler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	txType := domain.ParseTransactionType(req.Type)
	if req.Type != "" && txType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown transaction type: " + req.Type,
		})
		return
	}

	channel := domain.ParseChannel(req.Channel)
	if req.Channel != "" && channel == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown channel: " + req.Channel,
		})
		return
	}

	now := time.Now().UTC()
	timestamp := now
	if req.Timestamp != nil {
		timestamp = req.Timestamp.UTC()
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "KES"
	}

	tx := &domain.Transaction{
		ID:               req.ID,
		CustomerID:       req.CustomerID,
		AccountNumber:    req.AccountNumber,
		Amount:           req.Amount,
		Currency:         currency,
		Type:             txType,
		MerchantName:     req.MerchantName,
		MerchantCategory: req.MerchantCategory,
		Location:         req.Location,
		Channel:          channel,
		Timestamp:        timestamp,
		Status:           domain.StatusPending,
		CreatedAt:        now,
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	if err := tx.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveTransaction(ctx, tx); err != nil {
		slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save transaction",
		})
		return
	}

	slog.Info("transaction ingested", "tx_id", tx.ID, "amount", tx.Amount, "type", tx.Type)
	writeJSON(w, http.StatusCreated, IngestResponse{
		ID:     tx.ID,
		Status: tx.Status,
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(ctx, txID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetAssessment retrieves the latest assessment for a transaction.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "txID")

	assessment, err := h.repo.GetAssessmentByTransaction(ctx, txID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no assessment for transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// ListCases retrieves cases, optionally filtered by ?status= and ?limit=.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var status domain.CaseStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = domain.CaseStatus(strings.ToUpper(raw))
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	cases, err := h.repo.ListCases(ctx, status, limit)
	if err != nil {
		slog.Error("failed to list cases", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list cases",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cases": cases,
		"count": len(cases),
	})
}

// GetCase retrieves a case by ID.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	c, err := h.repo.GetCase(ctx, caseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "case not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// CaseActionRequest is the request body for POST /cases/{id}/action.
type CaseActionRequest struct {
	Action    string `json:"action"` // close, escalate, block
	AnalystID string `json:"analystId"`
	Comment   string `json:"comment,omitempty"`
}

// CaseAction applies an analyst decision to a case. Closing a flagged
// transaction approves it; blocking confirms the block.
func (h *Handler) CaseAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req CaseActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "action is required",
		})
		return
	}

	c, err := h.repo.GetCase(ctx, caseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "case not found",
		})
		return
	}

	now := time.Now().UTC()
	if err := c.Apply(domain.CaseAction(req.Action), req.AnalystID, req.Comment, now); err != nil {
		if errors.Is(err, domain.ErrCaseClosed) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.UpdateCase(ctx, c); err != nil {
		slog.Error("failed to update case", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update case",
		})
		return
	}

	h.applyTransactionFollowup(r, c)

	slog.Info("case action applied",
		"case_id", c.ID,
		"action", req.Action,
		"status", c.Status,
		"analyst_id", req.AnalystID,
	)
	writeJSON(w, http.StatusOK, c)
}

// applyTransactionFollowup mirrors the analyst decision onto the flagged
// transaction. A transaction already in a terminal status is left alone.
func (h *Handler) applyTransactionFollowup(r *http.Request, c *domain.Case) {
	var next domain.TransactionStatus
	switch c.Status {
	case domain.CaseClosed:
		next = domain.StatusApproved
	case domain.CaseBlocked:
		next = domain.StatusBlocked
	default:
		return
	}

	tx, err := h.repo.GetTransaction(r.Context(), c.TransactionID)
	if err != nil {
		slog.Warn("case transaction lookup failed",
			"case_id", c.ID,
			"tx_id", c.TransactionID,
			"error", err,
		)
		return
	}
	if !tx.Status.CanTransition(next) {
		return
	}

	if err := h.repo.UpdateTransactionStatus(r.Context(), c.TransactionID, next); err != nil {
		slog.Warn("case transaction status update failed",
			"case_id", c.ID,
			"tx_id", c.TransactionID,
			"status", next,
			"error", err,
		)
	}
}

// GetPortfolio computes the portfolio snapshot on demand.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.aggregator.Aggregate(r.Context())
	if err != nil {
		slog.Error("portfolio aggregation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "portfolio aggregation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// RunCycle triggers a single processing cycle synchronously.
func (h *Handler) RunCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RunOnce(r.Context()); err != nil {
		slog.Error("manual cycle failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "processing cycle failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "processing cycle completed",
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
