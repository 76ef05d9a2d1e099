package query

import "github.com/google/uuid"

// BalanceResponse is a trader's cash view for API queries. All responses
// carry as_of_sequence, the last instruction the projection has applied.
type BalanceResponse struct {
	TraderID uuid.UUID `json:"trader_id"`
	Asset    string    `json:"asset"`

	CashBalance        int64 `json:"cash_balance"`
	PendingCashBalance int64 `json:"pending_cash_balance"`
	TotalBalance       int64 `json:"total_balance"` // cash + pending

	AsOfSequence int64 `json:"as_of_sequence"`
}

// GroupTreasuryResponse exposes a market product group's own accounts.
type GroupTreasuryResponse struct {
	GroupID uuid.UUID `json:"group_id"`
	Asset   string    `json:"asset"`

	Vault          int64 `json:"vault"`
	FeePool        int64 `json:"fee_pool"`
	FundingPool    int64 `json:"funding_pool"`
	SocializedLoss int64 `json:"socialized_loss"`
	Insurance      int64 `json:"insurance"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// FundingPaymentResponse is one settled funding transfer for a trader.
// Amount is signed from the trader's perspective.
type FundingPaymentResponse struct {
	TraderID  uuid.UUID `json:"trader_id"`
	MarketID  string    `json:"market_id"`
	Amount    int64     `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// JournalHistoryEntry is a journal entry from the event log.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp_us"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset is an asset whose balances do not sum to zero.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
