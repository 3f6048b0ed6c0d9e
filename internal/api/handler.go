package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/milhau/tradesim/internal/domain"
	"github.com/milhau/tradesim/internal/external"
	"github.com/milhau/tradesim/internal/portfolio"
	"github.com/milhau/tradesim/internal/price"
	"github.com/milhau/tradesim/internal/snapshot"
)

// QuoteService resolves and searches quotes and owns the resolver settings.
type QuoteService interface {
	Resolve(ctx context.Context, identifier string, isAddress bool, chainHint string) (domain.Quote, error)
	Search(ctx context.Context, query string) ([]domain.Quote, error)
	Popular(ctx context.Context, chain string) ([]domain.Quote, error)
	Settings() price.Settings
	UpdateSettings(s price.Settings)
}

// QuoteStore reads the latest stored quotes.
type QuoteStore interface {
	GetAllQuotes(ctx context.Context) ([]external.StoredQuote, error)
}

// PortfolioService manages user portfolios.
type PortfolioService interface {
	Open(ctx context.Context, userID string) (portfolio.Portfolio, error)
	Close(userID string)
	AddHolding(ctx context.Context, userID string, in portfolio.NewHolding) (domain.Holding, error)
	RemoveHolding(ctx context.Context, userID, id string) error
	SetQuantity(ctx context.Context, userID, id string, quantity decimal.Decimal) (domain.Holding, error)
	Transactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
}

// SnapshotLister reads stored daily snapshots.
type SnapshotLister interface {
	GetLatest(ctx context.Context, userID string) (*snapshot.Snapshot, error)
	List(ctx context.Context, userID string, limit int) ([]snapshot.Snapshot, error)
}

// Handler provides HTTP endpoints for the simulator API.
type Handler struct {
	quotes     QuoteService
	store      QuoteStore // optional
	portfolios PortfolioService
	snapshots  SnapshotLister // optional
}

// NewHandler creates a new API handler. store and snapshots may be nil.
func NewHandler(quotes QuoteService, store QuoteStore, portfolios PortfolioService, snapshots SnapshotLister) *Handler {
	return &Handler{quotes: quotes, store: store, portfolios: portfolios, snapshots: snapshots}
}

// SearchQuotes handles GET /api/v1/quotes/search?q=.
func (h *Handler) SearchQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.quotes.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, "search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

// ResolveQuote handles GET /api/v1/quotes/resolve?id=&address=&chain=.
func (h *Handler) ResolveQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	isAddress := false
	if v := q.Get("address"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "address must be a boolean")
			return
		}
		isAddress = b
	}

	quote, err := h.quotes.Resolve(r.Context(), q.Get("id"), isAddress, q.Get("chain"))
	if err != nil {
		writeDomainError(w, "resolve failed", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// PopularQuotes handles GET /api/v1/quotes/popular/{chain}.
func (h *Handler) PopularQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.quotes.Popular(r.Context(), chi.URLParam(r, "chain"))
	if err != nil {
		writeDomainError(w, "popular failed", err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

// LatestQuotes handles GET /api/v1/quotes/latest.
func (h *Handler) LatestQuotes(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusOK, []external.StoredQuote{})
		return
	}
	quotes, err := h.store.GetAllQuotes(r.Context())
	if err != nil {
		slog.Error("failed to get stored quotes", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

type settingsResponse struct {
	DexScreenerEnabled bool `json:"dexScreenerEnabled"`
	CoinGeckoAPIKeySet bool `json:"coinGeckoApiKeySet"`
}

func toSettingsResponse(s price.Settings) settingsResponse {
	return settingsResponse{DexScreenerEnabled: s.DexScreenerEnabled, CoinGeckoAPIKeySet: s.CoinGeckoAPIKey != ""}
}

// GetSettings handles GET /api/v1/settings. The API key itself is never returned.
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSettingsResponse(h.quotes.Settings()))
}

// UpdateSettings handles PUT /api/v1/settings. Omitted fields keep their current value.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DexScreenerEnabled *bool   `json:"dexScreenerEnabled"`
		CoinGeckoAPIKey    *string `json:"coinGeckoApiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s := h.quotes.Settings()
	if req.DexScreenerEnabled != nil {
		s.DexScreenerEnabled = *req.DexScreenerEnabled
	}
	if req.CoinGeckoAPIKey != nil {
		s.CoinGeckoAPIKey = *req.CoinGeckoAPIKey
	}
	h.quotes.UpdateSettings(s)
	slog.Info("settings updated", "dexScreenerEnabled", s.DexScreenerEnabled, "apiKeySet", s.CoinGeckoAPIKey != "")

	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrHoldingNotFound), errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op, "error", err)
		writeError(w, status, "internal error")
		return
	}
	slog.Debug(op, "status", status, "error", err)
	writeError(w, status, err.Error())
}

func queryLimit(r *http.Request, def, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return min(n, maxLimit)
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
