package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeTrader AccountScope = iota
	AccountScopeExchange
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Trader sub-types
	SubTypeCash AccountSubType = iota
	SubTypePendingCash

	// Exchange sub-types (entity = market product group)
	SubTypeFeePool
	SubTypeVault
	SubTypeFundingPool
	SubTypeSocializedLoss
	SubTypeInsurance

	// External sub-types (vault boundary)
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDC": 1,
		"USDT": 2,
	}
	idToAsset = map[AssetID]string{
		1: "USDC",
		2: "USDT",
	}
)

// CashAsset is the collateral asset every market product group settles in.
const CashAsset = AssetID(1)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (20 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // trader or market product group UUID
	SubType  AccountSubType
	AssetID  AssetID
}

// NewTraderAccountKey creates a key for trader accounts
func NewTraderAccountKey(trader uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeTrader,
		EntityID: trader,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExchangeAccountKey creates a key for a market product group's own accounts
func NewExchangeAccountKey(group uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeExchange,
		EntityID: group,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeTrader:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("trader:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeExchange:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("exchange:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath, used when restoring
// balances from a snapshot.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	switch {
	case len(parts) == 4 && (parts[0] == "trader" || parts[0] == "exchange"):
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse account path %q: %w", path, err)
		}
		subType, ok := subTypeFromName(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("parse account path %q: unknown sub type", path)
		}
		assetID, ok := GetAssetID(parts[3])
		if !ok {
			return AccountKey{}, fmt.Errorf("parse account path %q: unknown asset", path)
		}
		scope := AccountScopeTrader
		if parts[0] == "exchange" {
			scope = AccountScopeExchange
		}
		return AccountKey{Scope: scope, EntityID: uid, SubType: subType, AssetID: assetID}, nil

	case len(parts) == 3 && parts[0] == "external":
		subType, ok := subTypeFromName(parts[1])
		if !ok {
			return AccountKey{}, fmt.Errorf("parse account path %q: unknown sub type", path)
		}
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("parse account path %q: unknown asset", path)
		}
		return AccountKey{Scope: AccountScopeExternal, SubType: subType, AssetID: assetID}, nil
	}
	return AccountKey{}, fmt.Errorf("parse account path %q: unrecognized format", path)
}

func subTypeFromName(name string) (AccountSubType, bool) {
	switch name {
	case "cash":
		return SubTypeCash, true
	case "pending_cash":
		return SubTypePendingCash, true
	case "fee_pool":
		return SubTypeFeePool, true
	case "vault":
		return SubTypeVault, true
	case "funding_pool":
		return SubTypeFundingPool, true
	case "socialized_loss":
		return SubTypeSocializedLoss, true
	case "insurance":
		return SubTypeInsurance, true
	case "deposits":
		return SubTypeExternalDeposits, true
	case "withdrawals":
		return SubTypeExternalWithdrawals, true
	default:
		return 0, false
	}
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCash:
		return "cash"
	case SubTypePendingCash:
		return "pending_cash"
	case SubTypeFeePool:
		return "fee_pool"
	case SubTypeVault:
		return "vault"
	case SubTypeFundingPool:
		return "funding_pool"
	case SubTypeSocializedLoss:
		return "socialized_loss"
	case SubTypeInsurance:
		return "insurance"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}
