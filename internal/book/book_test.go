package book_test

import (
	"testing"

	"DexLedger/internal/book"

	"github.com/google/uuid"
)

// priceFP32 shifts a whole tick count into fp32 space.
func priceFP32(ticks uint64) uint64 { return ticks << 32 }

func trader(t *testing.T) book.CallbackInfo {
	t.Helper()
	return book.CallbackInfo{TraderID: uuid.New()}
}

func TestPostAndMatch(t *testing.T) {
	b := book.NewMemoryBook()
	maker := trader(t)
	taker := trader(t)

	sum, err := b.NewOrder(book.NewOrderParams{
		MaxBaseQty:     10,
		MaxQuoteQty:    ^uint64(0),
		LimitPriceFP32: priceFP32(100),
		Side:           book.Ask,
		OrderType:      book.Limit,
		Callback:       maker,
	})
	if err != nil {
		t.Fatalf("post ask: %v", err)
	}
	if sum.PostedOrderID == nil || sum.TotalBaseQtyPosted != 10 {
		t.Fatalf("ask should rest fully: %+v", sum)
	}
	if sum.PostedOrderID.SideOf() != book.Ask {
		t.Errorf("posted id side = %v, want ask", sum.PostedOrderID.SideOf())
	}

	sum, err = b.NewOrder(book.NewOrderParams{
		MaxBaseQty:     4,
		MaxQuoteQty:    ^uint64(0),
		LimitPriceFP32: priceFP32(100),
		Side:           book.Bid,
		OrderType:      book.Limit,
		Callback:       taker,
	})
	if err != nil {
		t.Fatalf("cross bid: %v", err)
	}
	if sum.PostedOrderID != nil {
		t.Errorf("bid fully matched, nothing should post")
	}
	if sum.TotalBaseQty != 4 || sum.TotalQuoteQty != 400 {
		t.Errorf("summary = %+v, want base 4 quote 400", sum)
	}

	events := b.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 fill", len(events))
	}
	ev := events[0]
	if ev.Kind != book.EventFill || ev.BaseSize != 4 || ev.QuoteSize != 400 {
		t.Errorf("fill = %+v", ev)
	}
	if ev.MakerCallback.TraderID != maker.TraderID || ev.TakerCallback.TraderID != taker.TraderID {
		t.Errorf("fill callbacks wrong: %+v", ev)
	}
	if ask, ok := b.BestAsk(); !ok || ask != priceFP32(100) {
		t.Errorf("remaining ask should rest at 100")
	}
	if b.RestingQty(book.Ask) != 6 {
		t.Errorf("resting ask qty = %d, want 6", b.RestingQty(book.Ask))
	}
}

func TestPriceTimePriority(t *testing.T) {
	b := book.NewMemoryBook()
	first := trader(t)
	second := trader(t)
	taker := trader(t)

	for _, m := range []struct {
		cb    book.CallbackInfo
		price uint64
	}{
		{first, 101}, {second, 100}, {second, 101},
	} {
		if _, err := b.NewOrder(book.NewOrderParams{
			MaxBaseQty:     5,
			MaxQuoteQty:    ^uint64(0),
			LimitPriceFP32: priceFP32(m.price),
			Side:           book.Ask,
			OrderType:      book.Limit,
			Callback:       m.cb,
		}); err != nil {
			t.Fatalf("post: %v", err)
		}
	}

	if _, err := b.NewOrder(book.NewOrderParams{
		MaxBaseQty:     8,
		MaxQuoteQty:    ^uint64(0),
		LimitPriceFP32: priceFP32(101),
		Side:           book.Bid,
		OrderType:      book.ImmediateOrCancel,
		Callback:       taker,
	}); err != nil {
		t.Fatalf("take: %v", err)
	}

	var fills []book.Event
	for _, ev := range b.Events() {
		if ev.Kind == book.EventFill {
			fills = append(fills, ev)
		}
	}
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}
	// Best price first (100), then time priority at 101.
	if fills[0].QuoteSize != 500 || fills[0].MakerCallback.TraderID != second.TraderID {
		t.Errorf("first fill should take the 100 level: %+v", fills[0])
	}
	if fills[1].BaseSize != 3 || fills[1].MakerCallback.TraderID != first.TraderID {
		t.Errorf("second fill should take the earlier 101 order: %+v", fills[1])
	}
}

func TestSelfTradeDecrementTake(t *testing.T) {
	b := book.NewMemoryBook()
	self := trader(t)

	if _, err := b.NewOrder(book.NewOrderParams{
		MaxBaseQty:     40,
		MaxQuoteQty:    ^uint64(0),
		LimitPriceFP32: priceFP32(100),
		Side:           book.Ask,
		OrderType:      book.Limit,
		Callback:       self,
	}); err != nil {
		t.Fatalf("post: %v", err)
	}

	sum, err := b.NewOrder(book.NewOrderParams{
		MaxBaseQty:        10,
		MaxQuoteQty:       ^uint64(0),
		LimitPriceFP32:    priceFP32(110),
		Side:              book.Bid,
		OrderType:         book.ImmediateOrCancel,
		SelfTradeBehavior: book.DecrementTake,
		Callback:          self,
	})
	if err != nil {
		t.Fatalf("decrement take: %v", err)
	}
	if sum.TotalBaseQty != 0 || sum.TotalQuoteQty != 0 {
		t.Errorf("self trade must not count as matched: %+v", sum)
	}
	if b.RestingQty(book.Ask) != 30 {
		t.Errorf("resting ask = %d, want 30", b.RestingQty(book.Ask))
	}

	events := b.Events()
	if len(events) != 1 || events[0].Kind != book.EventOut {
		t.Fatalf("want a single out event, got %+v", events)
	}
	if events[0].BaseSize != 10 || events[0].Delete {
		t.Errorf("out should report the decremented 10 without delete: %+v", events[0])
	}
}

func TestSelfTradeAbort(t *testing.T) {
	b := book.NewMemoryBook()
	self := trader(t)

	if _, err := b.NewOrder(book.NewOrderParams{
		MaxBaseQty:     5,
		MaxQuoteQty:    ^uint64(0),
		LimitPriceFP32: priceFP32(100),
		Side:           book.Ask,
		OrderType:      book.Limit,
		Callback:       self,
	}); err != nil {
		t.Fatalf("post: %v", err)
	}
	_, err := b.NewOrder(book.NewOrderParams{
		MaxBaseQty:        5,
		MaxQuoteQty:       ^uint64(0),
		LimitPriceFP32:    priceFP32(100),
		Side:              book.Bid,
		OrderType:         book.Limit,
		SelfTradeBehavior: book.AbortTransaction,
		Callback:          self,
	})
	if err == nil {
		t.Fatalf("abort behavior should error")
	}
}

func TestCancelOrder(t *testing.T) {
	b := book.NewMemoryBook()
	maker := trader(t)

	sum, err := b.NewOrder(book.NewOrderParams{
		MaxBaseQty:     7,
		MaxQuoteQty:    ^uint64(0),
		LimitPriceFP32: priceFP32(99),
		Side:           book.Bid,
		OrderType:      book.Limit,
		Callback:       maker,
	})
	if err != nil || sum.PostedOrderID == nil {
		t.Fatalf("post: %v %+v", err, sum)
	}

	cancel, err := b.CancelOrder(*sum.PostedOrderID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancel.TotalBaseQty != 7 {
		t.Errorf("cancelled qty = %d, want 7", cancel.TotalBaseQty)
	}
	if _, ok := b.BestBid(); ok {
		t.Errorf("book should be empty after cancel")
	}
	if _, err := b.CancelOrder(*sum.PostedOrderID); err == nil {
		t.Errorf("double cancel should fail")
	}
}

func TestCloneIsolation(t *testing.T) {
	b := book.NewMemoryBook()
	maker := trader(t)
	if _, err := b.NewOrder(book.NewOrderParams{
		MaxBaseQty:     3,
		MaxQuoteQty:    ^uint64(0),
		LimitPriceFP32: priceFP32(50),
		Side:           book.Ask,
		OrderType:      book.Limit,
		Callback:       maker,
	}); err != nil {
		t.Fatalf("post: %v", err)
	}

	clone := b.Clone()
	if _, err := clone.NewOrder(book.NewOrderParams{
		MaxBaseQty:     3,
		MaxQuoteQty:    ^uint64(0),
		LimitPriceFP32: priceFP32(50),
		Side:           book.Bid,
		OrderType:      book.ImmediateOrCancel,
		Callback:       trader(t),
	}); err != nil {
		t.Fatalf("clone match: %v", err)
	}

	if len(b.Events()) != 0 {
		t.Errorf("original book must be untouched by clone mutation")
	}
	if b.RestingQty(book.Ask) != 3 {
		t.Errorf("original resting qty changed")
	}
}

func TestFP32Mul(t *testing.T) {
	if got := book.FP32Mul(10, priceFP32(100)); got != 1000 {
		t.Errorf("FP32Mul(10, 100<<32) = %d, want 1000", got)
	}
	// Half a tick: 1.5 in fp32.
	half := uint64(3) << 31
	if got := book.FP32Mul(4, half); got != 6 {
		t.Errorf("FP32Mul(4, 1.5) = %d, want 6", got)
	}
}
