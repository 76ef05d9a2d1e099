package ingestion

import (
	"encoding/json"
	"fmt"

	"DexLedger/internal/book"
	"DexLedger/internal/event"
)

// MarshalEvent is the inverse of ParseRawEvent: it renders a typed
// instruction back into its wire-format JSON. The event log stores this form
// so startup replay runs the exact bytes a producer would have sent.
func MarshalEvent(evt event.Event) ([]byte, error) {
	switch e := evt.(type) {
	case *event.InitializeProduct:
		return json.Marshal(initializeProductJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			ProductID:     e.Product.String(),
			Name:          e.Name,
			TickSize:      e.TickSize.String(),
			PriceOffset:   e.PriceOffset.String(),
			BaseDecimals:  e.BaseDecimals,
			Slot:          e.Slot,
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.InitializeCombo:
		legs := make([]comboLegJSON, 0, len(e.Legs))
		for _, leg := range e.Legs {
			legs = append(legs, comboLegJSON{ProductID: leg.Product.String(), Ratio: leg.Ratio})
		}
		return json.Marshal(initializeComboJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			ProductID:     e.Product.String(),
			Name:          e.Name,
			TickSize:      e.TickSize.String(),
			PriceOffset:   e.PriceOffset.String(),
			BaseDecimals:  e.BaseDecimals,
			Legs:          legs,
			Slot:          e.Slot,
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.RemoveProduct:
		return json.Marshal(removeProductJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			ProductID:     e.Product.String(),
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.InitializeTraderRiskGroup:
		return json.Marshal(initializeTraderJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			TraderID:      e.Trader.String(),
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.NewOrder:
		return json.Marshal(newOrderJSON{
			InstructionID:     e.InstructionID.String(),
			GroupID:           e.Group.String(),
			TraderID:          e.Trader.String(),
			ProductID:         e.Product.String(),
			Side:              sideString(e.Side),
			MaxBaseQty:        e.MaxBaseQty.String(),
			LimitPrice:        e.LimitPrice.String(),
			OrderType:         orderTypeString(e.OrderType),
			SelfTradeBehavior: selfTradeBehaviorString(e.SelfTradeBehavior),
			MatchLimit:        e.MatchLimit,
			Slot:              e.Slot,
			Sequence:          e.Sequence,
			TimestampUs:       e.Timestamp.UnixMicro(),
		})
	case *event.CancelOrder:
		return json.Marshal(cancelOrderJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			TraderID:      e.Trader.String(),
			ProductID:     e.Product.String(),
			InitiatorID:   e.Initiator.String(),
			OrderIDPrice:  e.OrderID.Price,
			OrderIDSeq:    e.OrderID.Seq,
			Slot:          e.Slot,
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.ConsumeOrderbookEvents:
		return json.Marshal(consumeEventsJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			ProductID:     e.Product.String(),
			MaxIterations: e.MaxIterations,
			RewardTarget:  e.RewardTarget.String(),
			Slot:          e.Slot,
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.ClearExpiredOrderbook:
		return json.Marshal(clearExpiredJSON{
			InstructionID:     e.InstructionID.String(),
			GroupID:           e.Group.String(),
			ProductID:         e.Product.String(),
			NumOrdersToCancel: e.NumOrdersToCancel,
			Slot:              e.Slot,
			Sequence:          e.Sequence,
			TimestampUs:       e.Timestamp.UnixMicro(),
		})
	case *event.DepositFunds:
		return json.Marshal(fundsJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			TraderID:      e.Trader.String(),
			Quantity:      e.Quantity.String(),
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.WithdrawFunds:
		return json.Marshal(fundsJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			TraderID:      e.Trader.String(),
			Quantity:      e.Quantity.String(),
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.UpdateProductFunding:
		return json.Marshal(productFundingJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			ProductID:     e.Product.String(),
			Amount:        e.Amount.String(),
			Expired:       e.Expired,
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.UpdateTraderFunding:
		return json.Marshal(traderFundingJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			TraderID:      e.Trader.String(),
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.TransferFullPosition:
		return json.Marshal(transferPositionJSON{
			InstructionID: e.InstructionID.String(),
			GroupID:       e.Group.String(),
			LiquidatorID:  e.Liquidator.String(),
			LiquidateeID:  e.Liquidatee.String(),
			Sequence:      e.Sequence,
			TimestampUs:   e.Timestamp.UnixMicro(),
		})
	case *event.SweepFees:
		return json.Marshal(sweepFeesJSON{
			InstructionID:  e.InstructionID.String(),
			GroupID:        e.Group.String(),
			FeeCollectorID: e.FeeCollector.String(),
			Sequence:       e.Sequence,
			TimestampUs:    e.Timestamp.UnixMicro(),
		})
	default:
		return nil, fmt.Errorf("marshal: unknown event type %T", evt)
	}
}

func sideString(s book.Side) string {
	if s == book.Ask {
		return "ask"
	}
	return "bid"
}

func orderTypeString(ot book.OrderType) string {
	switch ot {
	case book.ImmediateOrCancel:
		return "ioc"
	case book.FillOrKill:
		return "fok"
	case book.PostOnly:
		return "post_only"
	default:
		return "limit"
	}
}

func selfTradeBehaviorString(stb book.SelfTradeBehavior) string {
	switch stb {
	case book.CancelProvide:
		return "cancel_provide"
	case book.AbortTransaction:
		return "abort"
	default:
		return "decrement_take"
	}
}
