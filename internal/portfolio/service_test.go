package portfolio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milhau/tradesim/internal/domain"
)

var errStoreDown = errors.New("store down")

type mockRepo struct {
	mu           sync.Mutex
	holdings     map[string][]domain.Holding
	transactions []domain.Transaction
	priceWrites  int
	loads        int
	failInsert   bool
	failDelete   bool
	failUpdate   bool
	failPrices   bool
	// loading, when set, is closed as a load starts; the load then waits for release.
	loading chan struct{}
	release chan struct{}
}

func newMockRepo() *mockRepo {
	return &mockRepo{holdings: make(map[string][]domain.Holding)}
}

func (m *mockRepo) ListHoldings(_ context.Context, userID string) ([]domain.Holding, error) {
	if m.loading != nil {
		close(m.loading)
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return append([]domain.Holding(nil), m.holdings[userID]...), nil
}

func (m *mockRepo) InsertHolding(_ context.Context, userID string, h domain.Holding, entry domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert {
		return errStoreDown
	}
	m.holdings[userID] = append(m.holdings[userID], h)
	m.transactions = append(m.transactions, entry)
	return nil
}

func (m *mockRepo) DeleteHolding(_ context.Context, userID, id string, entry domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete {
		return errStoreDown
	}
	var kept []domain.Holding
	for _, h := range m.holdings[userID] {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	m.holdings[userID] = kept
	m.transactions = append(m.transactions, entry)
	return nil
}

func (m *mockRepo) UpdateQuantity(_ context.Context, _ string, _ domain.Holding) error {
	if m.failUpdate {
		return errStoreDown
	}
	return nil
}

func (m *mockRepo) UpdatePrices(_ context.Context, _ string, _ []domain.Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPrices {
		return errStoreDown
	}
	m.priceWrites++
	return nil
}

func (m *mockRepo) ListTransactions(_ context.Context, _ string, _ int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions, nil
}

func TestServiceOpenLoadsOnce(t *testing.T) {
	repo := newMockRepo()
	repo.holdings["alice"] = []domain.Holding{{ID: "h1", Symbol: "BTC", Quantity: d("0.5"), UnitPriceUSD: d("59777"), ChangePct24h: d("2.4")}}
	svc := NewService(repo)

	p, err := svc.Open(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, p.Holdings, 1)
	assert.True(t, p.Aggregate.TotalValueUSD.Equal(d("29888.5")))

	_, err = svc.Open(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.loads)
	assert.Equal(t, []string{"alice"}, svc.Watched())
}

func TestServiceSlowLoadDoesNotStallOtherUsers(t *testing.T) {
	repo := newMockRepo()
	repo.holdings["bob"] = []domain.Holding{{ID: "h1", Symbol: "ETH", Quantity: d("1"), UnitPriceUSD: d("3000")}}
	svc := NewService(repo)
	_, err := svc.Open(context.Background(), "bob")
	require.NoError(t, err)

	repo.loading = make(chan struct{})
	repo.release = make(chan struct{})
	opened := make(chan error, 1)
	go func() {
		_, err := svc.Open(context.Background(), "alice")
		opened <- err
	}()
	<-repo.loading

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.Equal(t, []string{"bob"}, svc.Watched())
		hs, ok := svc.Holdings("bob")
		assert.True(t, ok)
		assert.Len(t, hs, 1)
		svc.Close("carol")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("other users blocked while a portfolio was loading")
	}

	close(repo.release)
	require.NoError(t, <-opened)
	assert.Equal(t, []string{"alice", "bob"}, svc.Watched())
}

func TestServiceOpenEmptyUser(t *testing.T) {
	svc := NewService(newMockRepo())
	_, err := svc.Open(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestServiceAddHoldingRecordsBuy(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	h, err := svc.AddHolding(context.Background(), "alice", NewHolding{Quantity: d("2"), Quote: quote("ETH", "3000", "1")})
	require.NoError(t, err)

	require.Len(t, repo.transactions, 1)
	entry := repo.transactions[0]
	assert.Equal(t, domain.TransactionBuy, entry.Type)
	assert.Equal(t, "alice", entry.UserID)
	assert.Equal(t, "ETH", entry.Symbol)
	assert.True(t, entry.TotalValueUSD.Equal(d("6000")))
	assert.Len(t, repo.holdings["alice"], 1)
	assert.Equal(t, h.ID, repo.holdings["alice"][0].ID)
}

func TestServiceAddHoldingRollsBackOnStoreFailure(t *testing.T) {
	repo := newMockRepo()
	repo.failInsert = true
	svc := NewService(repo)

	_, err := svc.AddHolding(context.Background(), "alice", NewHolding{Quantity: d("1"), Quote: quote("BTC", "100", "0")})
	require.ErrorIs(t, err, errStoreDown)

	holdings, ok := svc.Holdings("alice")
	require.True(t, ok)
	assert.Empty(t, holdings, "local add must be rolled back")
}

func TestServiceAddHoldingInvalidQuantityNoWrite(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	_, err := svc.AddHolding(context.Background(), "alice", NewHolding{Quantity: d("0"), Quote: quote("BTC", "100", "0")})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.Empty(t, repo.transactions)
}

func TestServiceRemoveHoldingRecordsSell(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	h, err := svc.AddHolding(ctx, "alice", NewHolding{Quantity: d("3"), Quote: quote("SOL", "150", "2")})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveHolding(ctx, "alice", h.ID))
	require.Len(t, repo.transactions, 2)
	sell := repo.transactions[1]
	assert.Equal(t, domain.TransactionSell, sell.Type)
	assert.True(t, sell.Quantity.Equal(d("3")))
	assert.True(t, sell.PriceUSD.Equal(d("150")))

	// Removing again is a no-op success without another ledger entry.
	require.NoError(t, svc.RemoveHolding(ctx, "alice", h.ID))
	assert.Len(t, repo.transactions, 2)
}

func TestServiceRemoveHoldingRollsBackInPlace(t *testing.T) {
	repo := newMockRepo()
	repo.holdings["alice"] = []domain.Holding{
		{ID: "a", Symbol: "BTC", Quantity: d("1"), UnitPriceUSD: d("1")},
		{ID: "b", Symbol: "ETH", Quantity: d("1"), UnitPriceUSD: d("1")},
		{ID: "c", Symbol: "SOL", Quantity: d("1"), UnitPriceUSD: d("1")},
	}
	repo.failDelete = true
	svc := NewService(repo)

	err := svc.RemoveHolding(context.Background(), "alice", "b")
	require.ErrorIs(t, err, errStoreDown)

	holdings, _ := svc.Holdings("alice")
	require.Len(t, holdings, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{holdings[0].ID, holdings[1].ID, holdings[2].ID})
}

func TestServiceSetQuantityRollsBack(t *testing.T) {
	repo := newMockRepo()
	repo.holdings["alice"] = []domain.Holding{{ID: "a", Symbol: "BTC", Quantity: d("1"), UnitPriceUSD: d("100")}}
	repo.failUpdate = true
	svc := NewService(repo)

	_, err := svc.SetQuantity(context.Background(), "alice", "a", d("5"))
	require.ErrorIs(t, err, errStoreDown)

	holdings, _ := svc.Holdings("alice")
	assert.True(t, holdings[0].Quantity.Equal(d("1")))
	assert.True(t, holdings[0].ValueUSD.Equal(d("100")))
}

func TestServiceApplyPriceUpdates(t *testing.T) {
	repo := newMockRepo()
	repo.holdings["alice"] = []domain.Holding{{ID: "a", Symbol: "BTC", Quantity: d("0.5"), UnitPriceUSD: d("59777")}}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Open(ctx, "alice")
	require.NoError(t, err)

	applied, err := svc.ApplyPriceUpdates(ctx, "alice", []domain.PriceUpdate{{Symbol: "BTC", PriceUSD: d("60000"), ChangePct24h: d("1.5")}})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, repo.priceWrites)

	agg, err := svc.Aggregate(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, agg.TotalValueUSD.Equal(d("30000")))
	assert.True(t, agg.WeightedChangePct.Equal(d("1.5")))
}

func TestServiceApplyPriceUpdatesClosedPortfolioDropped(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Open(ctx, "alice")
	require.NoError(t, err)
	svc.Close("alice")

	applied, err := svc.ApplyPriceUpdates(ctx, "alice", []domain.PriceUpdate{{Symbol: "BTC", PriceUSD: d("1")}})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, svc.Watched())
}

func TestServiceApplyPriceUpdatesRollsBack(t *testing.T) {
	repo := newMockRepo()
	repo.holdings["alice"] = []domain.Holding{{ID: "a", Symbol: "BTC", Quantity: d("1"), UnitPriceUSD: d("100"), ChangePct24h: d("1")}}
	repo.failPrices = true
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Open(ctx, "alice")
	require.NoError(t, err)

	applied, err := svc.ApplyPriceUpdates(ctx, "alice", []domain.PriceUpdate{{Symbol: "BTC", PriceUSD: d("200"), ChangePct24h: d("9")}})
	require.ErrorIs(t, err, errStoreDown)
	assert.False(t, applied)

	holdings, _ := svc.Holdings("alice")
	assert.True(t, holdings[0].UnitPriceUSD.Equal(d("100")))
	assert.True(t, holdings[0].ValueUSD.Equal(d("100")))
	assert.True(t, holdings[0].ChangePct24h.Equal(d("1")))
}
