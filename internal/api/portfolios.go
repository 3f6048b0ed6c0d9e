package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/milhau/tradesim/internal/domain"
	"github.com/milhau/tradesim/internal/export"
	"github.com/milhau/tradesim/internal/portfolio"
	"github.com/milhau/tradesim/internal/snapshot"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GetPortfolio handles GET /api/v1/portfolios/{user}. Opening the portfolio starts its price refresh.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.portfolios.Open(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		writeDomainError(w, "open portfolio failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ClosePortfolio handles DELETE /api/v1/portfolios/{user}/session.
func (h *Handler) ClosePortfolio(w http.ResponseWriter, r *http.Request) {
	h.portfolios.Close(chi.URLParam(r, "user"))
	w.WriteHeader(http.StatusNoContent)
}

type addHoldingRequest struct {
	ID       string          `json:"id"`
	Address  string          `json:"address"`
	Chain    string          `json:"chain"`
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
}

// AddHolding handles POST /api/v1/portfolios/{user}/holdings. The quote is resolved
// server-side from id or address.
func (h *Handler) AddHolding(w http.ResponseWriter, r *http.Request) {
	var req addHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Quantity.IsPositive() {
		writeDomainError(w, "add holding failed", fmt.Errorf("quantity %s: %w", req.Quantity, domain.ErrInvalidQuantity))
		return
	}

	isAddress := strings.TrimSpace(req.Address) != ""
	identifier := req.ID
	if isAddress {
		identifier = req.Address
	}

	quote, err := h.quotes.Resolve(r.Context(), identifier, isAddress, req.Chain)
	if err != nil {
		writeDomainError(w, "resolving holding quote failed", err)
		return
	}

	holding, err := h.portfolios.AddHolding(r.Context(), chi.URLParam(r, "user"), portfolio.NewHolding{
		Symbol:          req.Symbol,
		Name:            req.Name,
		Quantity:        req.Quantity,
		Quote:           quote,
		Chain:           req.Chain,
		ContractAddress: strings.TrimSpace(req.Address),
	})
	if err != nil {
		writeDomainError(w, "add holding failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, holding)
}

// SetQuantity handles PATCH /api/v1/portfolios/{user}/holdings/{id}.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity decimal.Decimal `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	holding, err := h.portfolios.SetQuantity(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeDomainError(w, "set quantity failed", err)
		return
	}
	writeJSON(w, http.StatusOK, holding)
}

// RemoveHolding handles DELETE /api/v1/portfolios/{user}/holdings/{id}.
func (h *Handler) RemoveHolding(w http.ResponseWriter, r *http.Request) {
	if err := h.portfolios.RemoveHolding(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "remove holding failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTransactions handles GET /api/v1/portfolios/{user}/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.portfolios.Transactions(r.Context(), chi.URLParam(r, "user"), queryLimit(r, 100, 1000))
	if err != nil {
		writeDomainError(w, "list transactions failed", err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// ListSnapshots handles GET /api/v1/portfolios/{user}/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeJSON(w, http.StatusOK, []snapshot.Snapshot{})
		return
	}
	snapshots, err := h.snapshots.List(r.Context(), chi.URLParam(r, "user"), queryLimit(r, 30, 365))
	if err != nil {
		slog.Error("failed to list snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// GetLatestSnapshot handles GET /api/v1/portfolios/{user}/snapshots/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeError(w, http.StatusNotFound, "no snapshots")
		return
	}
	s, err := h.snapshots.GetLatest(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		writeDomainError(w, "get latest snapshot failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ExportXLSX handles GET /api/v1/portfolios/{user}/export.xlsx.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	p, err := h.portfolios.Open(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "open portfolio failed", err)
		return
	}
	txs, err := h.portfolios.Transactions(r.Context(), userID, 1000)
	if err != nil {
		writeDomainError(w, "list transactions failed", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, p, txs); err != nil {
		slog.Error("failed to build xlsx export", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="portfolio-%s.xlsx"`, userID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write xlsx response", "error", err)
	}
}
