package ingestion_test

import (
	"DexLedger/internal/book"
	"DexLedger/internal/event"
	"DexLedger/internal/fpmath"
	"DexLedger/internal/ingestion"
	"encoding/json"
	"testing"
	"time"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseNewOrder(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id":      "550e8400-e29b-41d4-a716-446655440000",
		"group_id":            "660e8400-e29b-41d4-a716-446655440001",
		"trader_id":           "770e8400-e29b-41d4-a716-446655440002",
		"product_id":          "880e8400-e29b-41d4-a716-446655440003",
		"side":                "bid",
		"max_base_qty":        "2.5",
		"limit_price":         "101.25",
		"order_type":          "limit",
		"self_trade_behavior": "decrement_take",
		"match_limit":         uint64(32),
		"slot":                uint64(9000),
		"sequence":            int64(42),
		"timestamp_us":        int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "NewOrder")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	no, ok := evt.(*event.NewOrder)
	if !ok {
		t.Fatalf("expected *event.NewOrder, got %T", evt)
	}

	if no.Side != book.Bid {
		t.Errorf("side: got %v, want Bid", no.Side)
	}
	if want, _ := fpmath.Parse("2.5"); !no.MaxBaseQty.Eq(want) {
		t.Errorf("max_base_qty: got %s, want 2.5", no.MaxBaseQty)
	}
	if want, _ := fpmath.Parse("101.25"); !no.LimitPrice.Eq(want) {
		t.Errorf("limit_price: got %s, want 101.25", no.LimitPrice)
	}
	if no.OrderType != book.Limit {
		t.Errorf("order_type: got %v, want Limit", no.OrderType)
	}
	if no.MatchLimit != 32 {
		t.Errorf("match_limit: got %d, want 32", no.MatchLimit)
	}
	if no.SourceSequence() != 42 {
		t.Errorf("sequence: got %d, want 42", no.SourceSequence())
	}
	if no.EventType() != event.EventTypeNewOrder {
		t.Errorf("event type: got %v, want NewOrder", no.EventType())
	}
}

func TestParseNewOrder_DefaultMatchLimit(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id":      "550e8400-e29b-41d4-a716-446655440000",
		"group_id":            "660e8400-e29b-41d4-a716-446655440001",
		"trader_id":           "770e8400-e29b-41d4-a716-446655440002",
		"product_id":          "880e8400-e29b-41d4-a716-446655440003",
		"side":                "ask",
		"max_base_qty":        "1",
		"limit_price":         "100",
		"order_type":          "ioc",
		"self_trade_behavior": "cancel_provide",
		"sequence":            int64(1),
		"timestamp_us":        int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "NewOrder")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	no := evt.(*event.NewOrder)
	if no.MatchLimit == 0 {
		t.Error("match_limit should default to a positive value")
	}
	if no.OrderType != book.ImmediateOrCancel {
		t.Errorf("order_type: got %v, want ImmediateOrCancel", no.OrderType)
	}
	if no.SelfTradeBehavior != book.CancelProvide {
		t.Errorf("self_trade_behavior: got %v, want CancelProvide", no.SelfTradeBehavior)
	}
}

func TestParseCancelOrder_DefaultsInitiatorToOwner(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"group_id":       "660e8400-e29b-41d4-a716-446655440001",
		"trader_id":      "770e8400-e29b-41d4-a716-446655440002",
		"product_id":     "880e8400-e29b-41d4-a716-446655440003",
		"order_id_price": uint64(425201762304),
		"order_id_seq":   uint64(7),
		"sequence":       int64(3),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CancelOrder")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	co, ok := evt.(*event.CancelOrder)
	if !ok {
		t.Fatalf("expected *event.CancelOrder, got %T", evt)
	}
	if co.Initiator != co.Trader {
		t.Errorf("initiator should default to owner, got %s", co.Initiator)
	}
	if co.OrderID.Price != 425201762304 || co.OrderID.Seq != 7 {
		t.Errorf("order id: got %+v", co.OrderID)
	}
}

func TestParseInitializeProduct(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"group_id":       "660e8400-e29b-41d4-a716-446655440001",
		"product_id":     "880e8400-e29b-41d4-a716-446655440003",
		"name":           "BTCUSD-Z26",
		"tick_size":      "0.01",
		"price_offset":   "0",
		"base_decimals":  uint64(6),
		"slot":           uint64(100),
		"sequence":       int64(1),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "InitializeProduct")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ip, ok := evt.(*event.InitializeProduct)
	if !ok {
		t.Fatalf("expected *event.InitializeProduct, got %T", evt)
	}
	if ip.Name != "BTCUSD-Z26" {
		t.Errorf("name: got %s, want BTCUSD-Z26", ip.Name)
	}
	if want, _ := fpmath.Parse("0.01"); !ip.TickSize.Eq(want) {
		t.Errorf("tick_size: got %s, want 0.01", ip.TickSize)
	}
	if ip.BaseDecimals != 6 {
		t.Errorf("base_decimals: got %d, want 6", ip.BaseDecimals)
	}
}

func TestParseInitializeCombo(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"group_id":       "660e8400-e29b-41d4-a716-446655440001",
		"product_id":     "880e8400-e29b-41d4-a716-446655440003",
		"name":           "BTCUSD-CAL-SPREAD",
		"tick_size":      "0.01",
		"price_offset":   "1000",
		"base_decimals":  uint64(6),
		"legs": []map[string]interface{}{
			{"product_id": "110e8400-e29b-41d4-a716-446655440011", "ratio": int64(1)},
			{"product_id": "220e8400-e29b-41d4-a716-446655440022", "ratio": int64(-1)},
		},
		"slot":         uint64(100),
		"sequence":     int64(2),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "InitializeCombo")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ic, ok := evt.(*event.InitializeCombo)
	if !ok {
		t.Fatalf("expected *event.InitializeCombo, got %T", evt)
	}
	if len(ic.Legs) != 2 {
		t.Fatalf("legs: got %d, want 2", len(ic.Legs))
	}
	if ic.Legs[0].Ratio != 1 || ic.Legs[1].Ratio != -1 {
		t.Errorf("ratios: got %d, %d, want 1, -1", ic.Legs[0].Ratio, ic.Legs[1].Ratio)
	}
}

func TestParseDepositFunds(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"group_id":       "660e8400-e29b-41d4-a716-446655440001",
		"trader_id":      "770e8400-e29b-41d4-a716-446655440002",
		"quantity":       "1000.50",
		"sequence":       int64(5),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "DepositFunds")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	df, ok := evt.(*event.DepositFunds)
	if !ok {
		t.Fatalf("expected *event.DepositFunds, got %T", evt)
	}
	if want, _ := fpmath.Parse("1000.50"); !df.Quantity.Eq(want) {
		t.Errorf("quantity: got %s, want 1000.50", df.Quantity)
	}
	if df.EventType() != event.EventTypeDepositFunds {
		t.Errorf("event type: got %v, want DepositFunds", df.EventType())
	}
}

func TestParseUpdateProductFunding(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"group_id":       "660e8400-e29b-41d4-a716-446655440001",
		"product_id":     "880e8400-e29b-41d4-a716-446655440003",
		"amount":         "-0.75",
		"expired":        true,
		"sequence":       int64(9),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "UpdateProductFunding")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	uf, ok := evt.(*event.UpdateProductFunding)
	if !ok {
		t.Fatalf("expected *event.UpdateProductFunding, got %T", evt)
	}
	if want, _ := fpmath.Parse("-0.75"); !uf.Amount.Eq(want) {
		t.Errorf("amount: got %s, want -0.75", uf.Amount)
	}
	if !uf.Expired {
		t.Error("expired flag should be set")
	}
}

func TestParseTransferFullPosition_SameAccount_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"group_id":       "660e8400-e29b-41d4-a716-446655440001",
		"liquidator_id":  "770e8400-e29b-41d4-a716-446655440002",
		"liquidatee_id":  "770e8400-e29b-41d4-a716-446655440002",
		"sequence":       int64(1),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "TransferFullPosition"); err == nil {
		t.Fatal("expected error for self-liquidation")
	}
}

func TestParseConsumeOrderbookEvents_ZeroIterations_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"group_id":       "660e8400-e29b-41d4-a716-446655440001",
		"product_id":     "880e8400-e29b-41d4-a716-446655440003",
		"max_iterations": uint64(0),
		"sequence":       int64(1),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "ConsumeOrderbookEvents"); err == nil {
		t.Fatal("expected error for zero max_iterations")
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "NewOrder")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "not-a-uuid",
		"group_id":       "also-not-a-uuid",
		"trader_id":      "still-not-a-uuid",
		"quantity":       "1",
		"sequence":       int64(0),
		"timestamp_us":   int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "DepositFunds")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

func TestParseInvalidFractional_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"group_id":       "660e8400-e29b-41d4-a716-446655440001",
		"trader_id":      "770e8400-e29b-41d4-a716-446655440002",
		"quantity":       "12.3.4",
		"sequence":       int64(0),
		"timestamp_us":   int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "DepositFunds")
	if err == nil {
		t.Fatal("expected error for malformed fractional")
	}
}
