package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the ledger direction of a simulated trade.
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// Transaction is an immutable ledger entry appended when a holding is added or removed.
type Transaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Type            TransactionType `json:"type"`
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	PriceUSD        decimal.Decimal `json:"priceUsd"`
	TotalValueUSD   decimal.Decimal `json:"totalValueUsd"`
	Chain           string          `json:"chain,omitempty"`
	ContractAddress string          `json:"contractAddress,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// NewTransaction builds a ledger entry mirroring the holding's current position.
func NewTransaction(id, userID string, typ TransactionType, h Holding, at time.Time) Transaction {
	return Transaction{
		ID:              id,
		UserID:          userID,
		Type:            typ,
		Symbol:          h.Symbol,
		Name:            h.Name,
		Quantity:        h.Quantity,
		PriceUSD:        h.UnitPriceUSD,
		TotalValueUSD:   h.ValueUSD,
		Chain:           h.Chain,
		ContractAddress: h.ContractAddress,
		CreatedAt:       at,
	}
}
