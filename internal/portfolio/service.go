package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/milhau/tradesim/internal/domain"
)

// Portfolio is a read snapshot of one user's holdings with their aggregate.
type Portfolio struct {
	UserID    string           `json:"userId"`
	Holdings  []domain.Holding `json:"holdings"`
	Aggregate domain.Aggregate `json:"aggregate"`
}

type session struct {
	// mu serializes local mutation and remote persistence so rollbacks never interleave.
	mu       sync.Mutex
	valuator *Valuator
}

// Service owns the Valuators of open portfolios and mirrors every mutation to the
// Repository: apply locally, persist, and roll the local change back if persistence fails.
type Service struct {
	repo Repository
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewService creates a new portfolio Service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// open returns the user's session, loading it from the store on first use.
func (s *Service) open(ctx context.Context, userID string) (*session, error) {
	if userID == "" {
		return nil, fmt.Errorf("opening portfolio: empty user: %w", domain.ErrInvalidIdentifier)
	}

	if sess, ok := s.lookup(userID); ok {
		return sess, nil
	}

	// The store is read without s.mu so a slow load never stalls other users.
	holdings, err := s.repo.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading portfolio of %s: %w", userID, err)
	}
	v := NewValuator(holdings...)
	v.now = s.now

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess, nil
	}
	sess := &session{valuator: v}
	s.sessions[userID] = sess
	slog.Info("portfolio opened", "user", userID, "holdings", len(holdings))
	return sess, nil
}

func (s *Service) lookup(userID string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Open loads the user's portfolio (if needed) and starts watching it for price refreshes.
func (s *Service) Open(ctx context.Context, userID string) (Portfolio, error) {
	sess, err := s.open(ctx, userID)
	if err != nil {
		return Portfolio{}, err
	}
	return snapshotOf(userID, sess.valuator), nil
}

// Close stops watching the portfolio. Refresh results arriving later are dropped.
func (s *Service) Close(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID]; ok {
		delete(s.sessions, userID)
		slog.Info("portfolio closed", "user", userID)
	}
}

// Watched returns the users whose portfolios are open, sorted.
func (s *Service) Watched() []string {
	s.mu.Lock()
	users := lo.Keys(s.sessions)
	s.mu.Unlock()
	slices.Sort(users)
	return users
}

// Holdings returns the current holdings of an open portfolio.
func (s *Service) Holdings(userID string) ([]domain.Holding, bool) {
	sess, ok := s.lookup(userID)
	if !ok {
		return nil, false
	}
	return sess.valuator.Holdings(), true
}

// AddHolding opens a position and records a buy.
func (s *Service) AddHolding(ctx context.Context, userID string, in NewHolding) (domain.Holding, error) {
	sess, err := s.open(ctx, userID)
	if err != nil {
		return domain.Holding{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	h, err := sess.valuator.AddHolding(in)
	if err != nil {
		return domain.Holding{}, err
	}

	entry := domain.NewTransaction(uuid.NewString(), userID, domain.TransactionBuy, h, h.CreatedAt)
	if err := s.repo.InsertHolding(ctx, userID, h, entry); err != nil {
		sess.valuator.RemoveHolding(h.ID)
		return domain.Holding{}, fmt.Errorf("persisting new holding: %w", err)
	}

	slog.Info("holding added", "user", userID, "symbol", h.Symbol, "quantity", h.Quantity, "valueUsd", h.ValueUSD)
	return h, nil
}

// RemoveHolding closes a position and records a sell. Unknown ids succeed so retries are safe.
func (s *Service) RemoveHolding(ctx context.Context, userID, id string) error {
	sess, err := s.open(ctx, userID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	h, idx, ok := sess.valuator.remove(id)
	if !ok {
		return nil
	}

	entry := domain.NewTransaction(uuid.NewString(), userID, domain.TransactionSell, h, s.now().UTC())
	if err := s.repo.DeleteHolding(ctx, userID, id, entry); err != nil {
		sess.valuator.insertAt(idx, h)
		return fmt.Errorf("persisting removal: %w", err)
	}

	slog.Info("holding removed", "user", userID, "symbol", h.Symbol)
	return nil
}

// SetQuantity resizes a position.
func (s *Service) SetQuantity(ctx context.Context, userID, id string, quantity decimal.Decimal) (domain.Holding, error) {
	sess, err := s.open(ctx, userID)
	if err != nil {
		return domain.Holding{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	prev, _ := sess.valuator.Holding(id)
	h, err := sess.valuator.SetQuantity(id, quantity)
	if err != nil {
		return domain.Holding{}, err
	}

	if err := s.repo.UpdateQuantity(ctx, userID, h); err != nil {
		sess.valuator.replace(prev)
		return domain.Holding{}, fmt.Errorf("persisting quantity: %w", err)
	}
	return h, nil
}

// ApplyPriceUpdates reprices an open portfolio. Updates for a portfolio that is no
// longer open are dropped and reported as not applied.
func (s *Service) ApplyPriceUpdates(ctx context.Context, userID string, updates []domain.PriceUpdate) (bool, error) {
	sess, ok := s.lookup(userID)
	if !ok {
		slog.Debug("price updates for closed portfolio dropped", "user", userID)
		return false, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	before := lo.KeyBy(sess.valuator.Holdings(), func(h domain.Holding) string { return h.ID })
	changed := sess.valuator.ApplyPriceUpdates(updates)
	if len(changed) == 0 {
		return true, nil
	}

	if err := s.repo.UpdatePrices(ctx, userID, changed); err != nil {
		sess.valuator.replace(lo.Map(changed, func(h domain.Holding, _ int) domain.Holding { return before[h.ID] })...)
		return false, fmt.Errorf("persisting price updates: %w", err)
	}
	return true, nil
}

// Aggregate returns the totals of an open portfolio.
func (s *Service) Aggregate(ctx context.Context, userID string) (domain.Aggregate, error) {
	sess, err := s.open(ctx, userID)
	if err != nil {
		return domain.Aggregate{}, err
	}
	return sess.valuator.Aggregate(), nil
}

// Transactions lists the user's ledger, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, limit)
}

func snapshotOf(userID string, v *Valuator) Portfolio {
	holdings := v.Holdings()
	return Portfolio{
		UserID:    userID,
		Holdings:  holdings,
		Aggregate: domain.ComputeAggregate(holdings),
	}
}
