package ingestion

import (
	"DexLedger/internal/book"
	"DexLedger/internal/event"
	"DexLedger/internal/fpmath"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// instructions before sending to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "InitializeProduct":
		return parseInitializeProduct(raw.Data)
	case "InitializeCombo":
		return parseInitializeCombo(raw.Data)
	case "RemoveProduct":
		return parseRemoveProduct(raw.Data)
	case "InitializeTraderRiskGroup":
		return parseInitializeTraderRiskGroup(raw.Data)
	case "NewOrder":
		return parseNewOrder(raw.Data)
	case "CancelOrder":
		return parseCancelOrder(raw.Data)
	case "ConsumeOrderbookEvents":
		return parseConsumeOrderbookEvents(raw.Data)
	case "ClearExpiredOrderbook":
		return parseClearExpiredOrderbook(raw.Data)
	case "DepositFunds":
		return parseDepositFunds(raw.Data)
	case "WithdrawFunds":
		return parseWithdrawFunds(raw.Data)
	case "UpdateProductFunding":
		return parseUpdateProductFunding(raw.Data)
	case "UpdateTraderFunding":
		return parseUpdateTraderFunding(raw.Data)
	case "TransferFullPosition":
		return parseTransferFullPosition(raw.Data)
	case "SweepFees":
		return parseSweepFees(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers. Fractional
// quantities travel as decimal strings ("123.45") and are parsed exactly,
// never through float64.

func parseUUID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse %s: %w", field, err)
	}
	return id, nil
}

func parseFractional(field, s string) (fpmath.Fractional, error) {
	f, err := fpmath.Parse(s)
	if err != nil {
		return fpmath.Zero, fmt.Errorf("parse %s: %w", field, err)
	}
	return f, nil
}

func parseSide(s string) (book.Side, error) {
	switch s {
	case "bid":
		return book.Bid, nil
	case "ask":
		return book.Ask, nil
	default:
		return book.Bid, fmt.Errorf("unknown side: %q", s)
	}
}

func parseOrderType(s string) (book.OrderType, error) {
	switch s {
	case "limit":
		return book.Limit, nil
	case "ioc":
		return book.ImmediateOrCancel, nil
	case "fok":
		return book.FillOrKill, nil
	case "post_only":
		return book.PostOnly, nil
	default:
		return book.Limit, fmt.Errorf("unknown order type: %q", s)
	}
}

func parseSelfTradeBehavior(s string) (book.SelfTradeBehavior, error) {
	switch s {
	case "decrement_take":
		return book.DecrementTake, nil
	case "cancel_provide":
		return book.CancelProvide, nil
	case "abort":
		return book.AbortTransaction, nil
	default:
		return book.DecrementTake, fmt.Errorf("unknown self trade behavior: %q", s)
	}
}

type initializeProductJSON struct {
	InstructionID string `json:"instruction_id"`
	GroupID       string `json:"group_id"`
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	TickSize      string `json:"tick_size"`
	PriceOffset   string `json:"price_offset"`
	BaseDecimals  uint64 `json:"base_decimals"`
	Slot          uint64 `json:"slot"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseInitializeProduct(data []byte) (*event.InitializeProduct, error) {
	var j initializeProductJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InitializeProduct: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	productID, err := parseUUID("product_id", j.ProductID)
	if err != nil {
		return nil, err
	}
	tickSize, err := parseFractional("tick_size", j.TickSize)
	if err != nil {
		return nil, err
	}
	priceOffset, err := parseFractional("price_offset", j.PriceOffset)
	if err != nil {
		return nil, err
	}
	return &event.InitializeProduct{
		InstructionID: instructionID,
		Group:         groupID,
		Product:       productID,
		Name:          j.Name,
		TickSize:      tickSize,
		PriceOffset:   priceOffset,
		BaseDecimals:  j.BaseDecimals,
		Slot:          j.Slot,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type comboLegJSON struct {
	ProductID string `json:"product_id"`
	Ratio     int64  `json:"ratio"`
}

type initializeComboJSON struct {
	InstructionID string         `json:"instruction_id"`
	GroupID       string         `json:"group_id"`
	ProductID     string         `json:"product_id"`
	Name          string         `json:"name"`
	TickSize      string         `json:"tick_size"`
	PriceOffset   string         `json:"price_offset"`
	BaseDecimals  uint64         `json:"base_decimals"`
	Legs          []comboLegJSON `json:"legs"`
	Slot          uint64         `json:"slot"`
	Sequence      int64          `json:"sequence"`
	TimestampUs   int64          `json:"timestamp_us"`
}

func parseInitializeCombo(data []byte) (*event.InitializeCombo, error) {
	var j initializeComboJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InitializeCombo: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	productID, err := parseUUID("product_id", j.ProductID)
	if err != nil {
		return nil, err
	}
	tickSize, err := parseFractional("tick_size", j.TickSize)
	if err != nil {
		return nil, err
	}
	priceOffset, err := parseFractional("price_offset", j.PriceOffset)
	if err != nil {
		return nil, err
	}
	legs := make([]event.ComboLeg, 0, len(j.Legs))
	for i, leg := range j.Legs {
		legProduct, err := parseUUID(fmt.Sprintf("legs[%d].product_id", i), leg.ProductID)
		if err != nil {
			return nil, err
		}
		legs = append(legs, event.ComboLeg{Product: legProduct, Ratio: leg.Ratio})
	}
	return &event.InitializeCombo{
		InstructionID: instructionID,
		Group:         groupID,
		Product:       productID,
		Name:          j.Name,
		TickSize:      tickSize,
		PriceOffset:   priceOffset,
		BaseDecimals:  j.BaseDecimals,
		Legs:          legs,
		Slot:          j.Slot,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type removeProductJSON struct {
	InstructionID string `json:"instruction_id"`
	GroupID       string `json:"group_id"`
	ProductID     string `json:"product_id"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseRemoveProduct(data []byte) (*event.RemoveProduct, error) {
	var j removeProductJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RemoveProduct: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	productID, err := parseUUID("product_id", j.ProductID)
	if err != nil {
		return nil, err
	}
	return &event.RemoveProduct{
		InstructionID: instructionID,
		Group:         groupID,
		Product:       productID,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type initializeTraderJSON struct {
	InstructionID string `json:"instruction_id"`
	GroupID       string `json:"group_id"`
	TraderID      string `json:"trader_id"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseInitializeTraderRiskGroup(data []byte) (*event.InitializeTraderRiskGroup, error) {
	var j initializeTraderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InitializeTraderRiskGroup: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	traderID, err := parseUUID("trader_id", j.TraderID)
	if err != nil {
		return nil, err
	}
	return &event.InitializeTraderRiskGroup{
		InstructionID: instructionID,
		Group:         groupID,
		Trader:        traderID,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type newOrderJSON struct {
	InstructionID     string `json:"instruction_id"`
	GroupID           string `json:"group_id"`
	TraderID          string `json:"trader_id"`
	ProductID         string `json:"product_id"`
	Side              string `json:"side"` // "bid" or "ask"
	MaxBaseQty        string `json:"max_base_qty"`
	LimitPrice        string `json:"limit_price"`
	OrderType         string `json:"order_type"` // "limit", "ioc", "fok", "post_only"
	SelfTradeBehavior string `json:"self_trade_behavior"`
	MatchLimit        uint64 `json:"match_limit"`
	Slot              uint64 `json:"slot"`
	Sequence          int64  `json:"sequence"`
	TimestampUs       int64  `json:"timestamp_us"`
}

func parseNewOrder(data []byte) (*event.NewOrder, error) {
	var j newOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NewOrder: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	traderID, err := parseUUID("trader_id", j.TraderID)
	if err != nil {
		return nil, err
	}
	productID, err := parseUUID("product_id", j.ProductID)
	if err != nil {
		return nil, err
	}
	side, err := parseSide(j.Side)
	if err != nil {
		return nil, err
	}
	maxBaseQty, err := parseFractional("max_base_qty", j.MaxBaseQty)
	if err != nil {
		return nil, err
	}
	limitPrice, err := parseFractional("limit_price", j.LimitPrice)
	if err != nil {
		return nil, err
	}
	orderType, err := parseOrderType(j.OrderType)
	if err != nil {
		return nil, err
	}
	stb, err := parseSelfTradeBehavior(j.SelfTradeBehavior)
	if err != nil {
		return nil, err
	}
	matchLimit := j.MatchLimit
	if matchLimit == 0 {
		matchLimit = 16
	}
	return &event.NewOrder{
		InstructionID:     instructionID,
		Group:             groupID,
		Trader:            traderID,
		Product:           productID,
		Side:              side,
		MaxBaseQty:        maxBaseQty,
		LimitPrice:        limitPrice,
		OrderType:         orderType,
		SelfTradeBehavior: stb,
		MatchLimit:        matchLimit,
		Slot:              j.Slot,
		Sequence:          j.Sequence,
		Timestamp:         time.UnixMicro(j.TimestampUs),
	}, nil
}

type cancelOrderJSON struct {
	InstructionID string `json:"instruction_id"`
	GroupID       string `json:"group_id"`
	TraderID      string `json:"trader_id"`
	ProductID     string `json:"product_id"`
	InitiatorID   string `json:"initiator_id"`
	OrderIDPrice  uint64 `json:"order_id_price"`
	OrderIDSeq    uint64 `json:"order_id_seq"`
	Slot          uint64 `json:"slot"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseCancelOrder(data []byte) (*event.CancelOrder, error) {
	var j cancelOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelOrder: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	traderID, err := parseUUID("trader_id", j.TraderID)
	if err != nil {
		return nil, err
	}
	productID, err := parseUUID("product_id", j.ProductID)
	if err != nil {
		return nil, err
	}
	initiatorID := traderID
	if j.InitiatorID != "" {
		if initiatorID, err = parseUUID("initiator_id", j.InitiatorID); err != nil {
			return nil, err
		}
	}
	return &event.CancelOrder{
		InstructionID: instructionID,
		Group:         groupID,
		Trader:        traderID,
		Product:       productID,
		Initiator:     initiatorID,
		OrderID:       book.OrderID{Price: j.OrderIDPrice, Seq: j.OrderIDSeq},
		Slot:          j.Slot,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type consumeEventsJSON struct {
	InstructionID string `json:"instruction_id"`
	GroupID       string `json:"group_id"`
	ProductID     string `json:"product_id"`
	MaxIterations uint64 `json:"max_iterations"`
	RewardTarget  string `json:"reward_target"`
	Slot          uint64 `json:"slot"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseConsumeOrderbookEvents(data []byte) (*event.ConsumeOrderbookEvents, error) {
	var j consumeEventsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConsumeOrderbookEvents: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	productID, err := parseUUID("product_id", j.ProductID)
	if err != nil {
		return nil, err
	}
	rewardTarget := uuid.Nil
	if j.RewardTarget != "" {
		if rewardTarget, err = parseUUID("reward_target", j.RewardTarget); err != nil {
			return nil, err
		}
	}
	if j.MaxIterations == 0 {
		return nil, fmt.Errorf("parse ConsumeOrderbookEvents: max_iterations must be positive")
	}
	return &event.ConsumeOrderbookEvents{
		InstructionID: instructionID,
		Group:         groupID,
		Product:       productID,
		MaxIterations: j.MaxIterations,
		RewardTarget:  rewardTarget,
		Slot:          j.Slot,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type clearExpiredJSON struct {
	InstructionID     string `json:"instruction_id"`
	GroupID           string `json:"group_id"`
	ProductID         string `json:"product_id"`
	NumOrdersToCancel int    `json:"num_orders_to_cancel"`
	Slot              uint64 `json:"slot"`
	Sequence          int64  `json:"sequence"`
	TimestampUs       int64  `json:"timestamp_us"`
}

func parseClearExpiredOrderbook(data []byte) (*event.ClearExpiredOrderbook, error) {
	var j clearExpiredJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClearExpiredOrderbook: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	productID, err := parseUUID("product_id", j.ProductID)
	if err != nil {
		return nil, err
	}
	if j.NumOrdersToCancel <= 0 {
		return nil, fmt.Errorf("parse ClearExpiredOrderbook: num_orders_to_cancel must be positive")
	}
	return &event.ClearExpiredOrderbook{
		InstructionID:     instructionID,
		Group:             groupID,
		Product:           productID,
		NumOrdersToCancel: j.NumOrdersToCancel,
		Slot:              j.Slot,
		Sequence:          j.Sequence,
		Timestamp:         time.UnixMicro(j.TimestampUs),
	}, nil
}

type fundsJSON struct {
	InstructionID string `json:"instruction_id"`
	GroupID       string `json:"group_id"`
	TraderID      string `json:"trader_id"`
	Quantity      string `json:"quantity"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseDepositFunds(data []byte) (*event.DepositFunds, error) {
	var j fundsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DepositFunds: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	traderID, err := parseUUID("trader_id", j.TraderID)
	if err != nil {
		return nil, err
	}
	quantity, err := parseFractional("quantity", j.Quantity)
	if err != nil {
		return nil, err
	}
	return &event.DepositFunds{
		InstructionID: instructionID,
		Group:         groupID,
		Trader:        traderID,
		Quantity:      quantity,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseWithdrawFunds(data []byte) (*event.WithdrawFunds, error) {
	var j fundsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawFunds: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	traderID, err := parseUUID("trader_id", j.TraderID)
	if err != nil {
		return nil, err
	}
	quantity, err := parseFractional("quantity", j.Quantity)
	if err != nil {
		return nil, err
	}
	return &event.WithdrawFunds{
		InstructionID: instructionID,
		Group:         groupID,
		Trader:        traderID,
		Quantity:      quantity,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type productFundingJSON struct {
	InstructionID string `json:"instruction_id"`
	GroupID       string `json:"group_id"`
	ProductID     string `json:"product_id"`
	Amount        string `json:"amount"`
	Expired       bool   `json:"expired"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseUpdateProductFunding(data []byte) (*event.UpdateProductFunding, error) {
	var j productFundingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpdateProductFunding: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	productID, err := parseUUID("product_id", j.ProductID)
	if err != nil {
		return nil, err
	}
	amount, err := parseFractional("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.UpdateProductFunding{
		InstructionID: instructionID,
		Group:         groupID,
		Product:       productID,
		Amount:        amount,
		Expired:       j.Expired,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type traderFundingJSON struct {
	InstructionID string `json:"instruction_id"`
	GroupID       string `json:"group_id"`
	TraderID      string `json:"trader_id"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseUpdateTraderFunding(data []byte) (*event.UpdateTraderFunding, error) {
	var j traderFundingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpdateTraderFunding: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	traderID, err := parseUUID("trader_id", j.TraderID)
	if err != nil {
		return nil, err
	}
	return &event.UpdateTraderFunding{
		InstructionID: instructionID,
		Group:         groupID,
		Trader:        traderID,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type transferPositionJSON struct {
	InstructionID string `json:"instruction_id"`
	GroupID       string `json:"group_id"`
	LiquidatorID  string `json:"liquidator_id"`
	LiquidateeID  string `json:"liquidatee_id"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseTransferFullPosition(data []byte) (*event.TransferFullPosition, error) {
	var j transferPositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TransferFullPosition: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	liquidatorID, err := parseUUID("liquidator_id", j.LiquidatorID)
	if err != nil {
		return nil, err
	}
	liquidateeID, err := parseUUID("liquidatee_id", j.LiquidateeID)
	if err != nil {
		return nil, err
	}
	if liquidatorID == liquidateeID {
		return nil, fmt.Errorf("parse TransferFullPosition: liquidator and liquidatee are the same account")
	}
	return &event.TransferFullPosition{
		InstructionID: instructionID,
		Group:         groupID,
		Liquidator:    liquidatorID,
		Liquidatee:    liquidateeID,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type sweepFeesJSON struct {
	InstructionID  string `json:"instruction_id"`
	GroupID        string `json:"group_id"`
	FeeCollectorID string `json:"fee_collector_id"`
	Sequence       int64  `json:"sequence"`
	TimestampUs    int64  `json:"timestamp_us"`
}

func parseSweepFees(data []byte) (*event.SweepFees, error) {
	var j sweepFeesJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SweepFees: %w", err)
	}
	instructionID, err := parseUUID("instruction_id", j.InstructionID)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID("group_id", j.GroupID)
	if err != nil {
		return nil, err
	}
	feeCollectorID, err := parseUUID("fee_collector_id", j.FeeCollectorID)
	if err != nil {
		return nil, err
	}
	return &event.SweepFees{
		InstructionID: instructionID,
		Group:         groupID,
		FeeCollector:  feeCollectorID,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}
