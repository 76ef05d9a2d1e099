package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"DexLedger/internal/ledger"
)

// QueryService serves read-only API queries from the PostgreSQL projection
// tables and the event log. Projections lag the core by design; every
// response includes as_of_sequence so callers can reason about freshness.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a trader's cash and pending cash for an asset.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	traderID uuid.UUID,
	asset string,
) (*BalanceResponse, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	cash, err := qs.getProjectedBalance(ctx,
		ledger.NewTraderAccountKey(traderID, ledger.SubTypeCash, assetID).AccountPath())
	if err != nil {
		return nil, err
	}

	pending, err := qs.getProjectedBalance(ctx,
		ledger.NewTraderAccountKey(traderID, ledger.SubTypePendingCash, assetID).AccountPath())
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		TraderID:           traderID,
		Asset:              asset,
		CashBalance:        cash,
		PendingCashBalance: pending,
		TotalBalance:       cash + pending,
		AsOfSequence:       asOfSeq,
	}, nil
}

// GetGroupTreasury returns a market product group's own account balances.
func (qs *QueryService) GetGroupTreasury(
	ctx context.Context,
	groupID uuid.UUID,
	asset string,
) (*GroupTreasuryResponse, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &GroupTreasuryResponse{
		GroupID:      groupID,
		Asset:        asset,
		AsOfSequence: asOfSeq,
	}

	subTypes := []struct {
		sub  ledger.AccountSubType
		dest *int64
	}{
		{ledger.SubTypeVault, &resp.Vault},
		{ledger.SubTypeFeePool, &resp.FeePool},
		{ledger.SubTypeFundingPool, &resp.FundingPool},
		{ledger.SubTypeSocializedLoss, &resp.SocializedLoss},
		{ledger.SubTypeInsurance, &resp.Insurance},
	}
	for _, st := range subTypes {
		bal, err := qs.getProjectedBalance(ctx,
			ledger.NewExchangeAccountKey(groupID, st.sub, assetID).AccountPath())
		if err != nil {
			return nil, err
		}
		*st.dest = bal
	}

	return resp, nil
}

// GetFundingHistory returns settled funding payments for a trader, newest
// first, with cursor pagination on sequence.
func (qs *QueryService) GetFundingHistory(
	ctx context.Context,
	traderID uuid.UUID,
	marketID *string,
	limit int,
	afterSequence *int64,
) ([]FundingPaymentResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT market_id, amount, sequence, timestamp_us
		FROM projections.funding_payments
		WHERE trader_id = $1
	`
	args := []interface{}{traderID}
	argIdx := 2

	if marketID != nil {
		query += fmt.Sprintf(" AND market_id = $%d", argIdx)
		args = append(args, *marketID)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []FundingPaymentResponse
	for rows.Next() {
		var h FundingPaymentResponse
		h.TraderID = traderID
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(&h.MarketID, &h.Amount, &h.Sequence, &h.Timestamp); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetJournalHistory returns journal entries touching any of a trader's
// accounts, newest first, with cursor pagination on sequence.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	traderID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("trader:%s:%%", traderID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the event log and the
// zero-sum invariant over projected balances.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Each envelope's prev_hash must equal the previous envelope's state_hash
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Debits add and credits subtract, so every asset sums to zero
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
