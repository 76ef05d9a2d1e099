package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"DexLedger/internal/book"
	"DexLedger/internal/event"
	"DexLedger/internal/ledger"
	"DexLedger/internal/observability"
	"DexLedger/internal/risk"
	"DexLedger/internal/state"
)

// Config bootstraps the clearing core with its market product group and
// group-wide trading limits.
type Config struct {
	GroupKey     uuid.UUID
	GroupName    string
	CashDecimals uint64

	// MinBaseOrderSize is the minimum order size in base lots, also the unit
	// the tick size must settle against at cash decimals when listing.
	MinBaseOrderSize uint64

	MaxMakerFeeBps int32
	MinMakerFeeBps int32
	MaxTakerFeeBps int32
	MinTakerFeeBps int32

	IdempotencyCapacity int
}

// DeterministicCore is the single-threaded instruction processor: the market
// product group, every trader account, and one orderbook per product, driven
// by the versioned event stream.
type DeterministicCore struct {
	cfg      Config
	sequence int64

	groups  map[uuid.UUID]*state.MarketProductGroup
	traders map[uuid.UUID]*state.TraderRiskGroup
	books   map[uuid.UUID]book.Book

	feeEngine  risk.FeeEngine
	riskEngine risk.RiskEngine

	hasher         *StateHasher
	balanceTracker *ledger.BalanceTracker
	journalGen     *ledger.JournalGenerator
	validator      *ledger.InvariantValidator

	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics
	log               zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Event      event.Event
	Batch      *ledger.Batch
	StateDelta []byte
}

func NewDeterministicCore(
	cfg Config,
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	feeEngine risk.FeeEngine,
	riskEngine risk.RiskEngine,
	metrics *observability.Metrics,
) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()
	validator := ledger.NewInvariantValidator(balanceTracker)
	journalGen := ledger.NewJournalGenerator(startSequence, balanceTracker)

	capacity := cfg.IdempotencyCapacity
	if capacity == 0 {
		capacity = 1_000_000
	}

	group := state.NewMarketProductGroup(cfg.GroupKey, cfg.GroupName, cfg.CashDecimals)
	group.MaxMakerFeeBps = cfg.MaxMakerFeeBps
	group.MinMakerFeeBps = cfg.MinMakerFeeBps
	group.MaxTakerFeeBps = cfg.MaxTakerFeeBps
	group.MinTakerFeeBps = cfg.MinTakerFeeBps

	return &DeterministicCore{
		cfg:               cfg,
		sequence:          startSequence,
		groups:            map[uuid.UUID]*state.MarketProductGroup{cfg.GroupKey: &group},
		traders:           make(map[uuid.UUID]*state.TraderRiskGroup),
		books:             make(map[uuid.UUID]book.Book),
		feeEngine:         feeEngine,
		riskEngine:        riskEngine,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        journalGen,
		validator:         validator,
		idempotency:       NewIdempotencyChecker(capacity, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		log:               observability.NewLogger("core"),
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent is the main processing pipeline
func (c *DeterministicCore) ProcessEvent(ctx context.Context, evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation
	partition := c.getPartition(evt)
	sourceSequence := evt.SourceSequence()

	if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
		if c.metrics != nil {
			if sourceSequence > c.sequenceValidator.GetExpectedSequence(partition) {
				c.metrics.EventSequenceGap.WithLabelValues(partition).Inc()
			} else {
				c.metrics.EventOutOfOrder.WithLabelValues(partition).Inc()
			}
		}
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Dispatch. Handlers work on copies and commit only on success,
	// so a returned error leaves the group, traders, and books untouched.
	batch, err := c.dispatchEvent(ctx, evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "rejected").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: Apply the instruction's journal batch. Instructions without
	// cash effects (listings, cancels) produce empty batches that still get
	// an envelope in the event log.
	if len(batch.Journals) > 0 {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			return fmt.Errorf("apply batch failed: %w", err)
		}
	}

	// Step 5: State digest and hash chain
	stateDigest := c.computeStateDigest(batch)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		MarketID:       evt.MarketID(),
		Timestamp:      c.getEventTimestamp(evt),
		SourceSequence: sourceSequence,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		Event:      evt,
		Batch:      batch,
		StateDelta: stateDigest,
	}
	c.sequence++

	// Step 6: Post-checks
	if err := c.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 7: Emit. Persistence gets a BLOCKING send (backpressure, no event
	// may be lost); projections get a NON-BLOCKING send and rebuild from the
	// event log if they fall behind.
	c.persistChan <- output
	select {
	case c.projectionChan <- output:
	default:
	}

	// Step 8: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// getPartition determines partition key for sequence validation
func (c *DeterministicCore) getPartition(evt event.Event) string {
	if marketID := evt.MarketID(); marketID != nil {
		return fmt.Sprintf("market:%s", *marketID)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from the event. The core
// never calls time.Now() for envelope timestamps; all time is an input.
func (c *DeterministicCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.InitializeProduct:
		return e.Timestamp
	case *event.InitializeCombo:
		return e.Timestamp
	case *event.RemoveProduct:
		return e.Timestamp
	case *event.InitializeTraderRiskGroup:
		return e.Timestamp
	case *event.NewOrder:
		return e.Timestamp
	case *event.CancelOrder:
		return e.Timestamp
	case *event.ConsumeOrderbookEvents:
		return e.Timestamp
	case *event.ClearExpiredOrderbook:
		return e.Timestamp
	case *event.DepositFunds:
		return e.Timestamp
	case *event.WithdrawFunds:
		return e.Timestamp
	case *event.UpdateProductFunding:
		return e.Timestamp
	case *event.UpdateTraderFunding:
		return e.Timestamp
	case *event.TransferFullPosition:
		return e.Timestamp
	case *event.SweepFees:
		return e.Timestamp
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T — deterministic core cannot use wall-clock time", evt))
	}
}

// computeStateDigest creates canonical bytes for state hash
func (c *DeterministicCore) computeStateDigest(batch *ledger.Batch) []byte {
	// Collect all affected accounts
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	// Sort accounts deterministically
	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64)

	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)

		digest = appendInt64LE(digest, balance)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after batch application
func (c *DeterministicCore) postCheckInvariants(evt event.Event) error {
	if e, ok := evt.(*event.SweepFees); ok {
		if err := c.validator.ValidateFeePoolNonNegative(e.Group, ledger.CashAsset); err != nil {
			return fmt.Errorf("post-check fee pool: %w", err)
		}
	}

	// Periodic zero-sum check across every ledger account.
	if c.sequence > 0 && c.sequence%1000 == 0 {
		totals := c.balanceTracker.ComputeGlobalBalance()
		for assetID, total := range totals {
			if total != 0 {
				return fmt.Errorf("post-check zero-sum: global balance non-zero for asset %d: %d (at seq %d)",
					assetID, total, c.sequence)
			}
		}
	}

	return nil
}

func (c *DeterministicCore) dispatchEvent(ctx context.Context, evt event.Event) (*ledger.Batch, error) {
	switch e := evt.(type) {
	case *event.InitializeProduct:
		return c.handleInitializeProduct(e)
	case *event.InitializeCombo:
		return c.handleInitializeCombo(e)
	case *event.RemoveProduct:
		return c.handleRemoveProduct(e)
	case *event.InitializeTraderRiskGroup:
		return c.handleInitializeTraderRiskGroup(e)
	case *event.NewOrder:
		return c.handleNewOrder(ctx, e)
	case *event.CancelOrder:
		return c.handleCancelOrder(ctx, e)
	case *event.ConsumeOrderbookEvents:
		return c.handleConsumeOrderbookEvents(ctx, e)
	case *event.ClearExpiredOrderbook:
		return c.handleClearExpiredOrderbook(e)
	case *event.DepositFunds:
		return c.handleDepositFunds(e)
	case *event.WithdrawFunds:
		return c.handleWithdrawFunds(ctx, e)
	case *event.UpdateProductFunding:
		return c.handleUpdateProductFunding(e)
	case *event.UpdateTraderFunding:
		return c.handleUpdateTraderFunding(e)
	case *event.TransferFullPosition:
		return c.handleTransferFullPosition(ctx, e)
	case *event.SweepFees:
		return c.handleSweepFees(e)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Groups          map[uuid.UUID]state.MarketProductGroup
	Traders         map[uuid.UUID]state.TraderRiskGroup
	Books           map[uuid.UUID]book.Snapshot
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state. On warm restart
// the caller loads the latest snapshot, restores, then replays events from
// snapshot.Sequence+1.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)

	for key, balance := range snap.Balances {
		c.balanceTracker.SetBalance(key, balance)
	}

	c.groups = make(map[uuid.UUID]*state.MarketProductGroup, len(snap.Groups))
	for key, g := range snap.Groups {
		group := g
		c.groups[key] = &group
	}
	c.traders = make(map[uuid.UUID]*state.TraderRiskGroup, len(snap.Traders))
	for key, t := range snap.Traders {
		trader := t
		c.traders[key] = &trader
	}
	c.books = make(map[uuid.UUID]book.Book, len(snap.Books))
	for key, s := range snap.Books {
		c.books[key] = book.RestoreMemoryBook(s)
	}

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}

	c.journalGen.SetSequence(snap.Sequence + 1)
}

// WarmLRU loads recent idempotency keys into the LRU cache so a warm restart
// avoids cold-path DB lookups for recently processed events.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.WarmLRU(keys)
}

// SetDBIdempotencyChecker attaches the Postgres dedup tier. The orchestrator
// constructs the core without it, replays the event log, then attaches it so
// replayed instructions are not rejected as duplicates of themselves.
func (c *DeterministicCore) SetDBIdempotencyChecker(dbChecker DBIdempotencyChecker) {
	c.idempotency.SetDBChecker(dbChecker)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// NextSourceSequence returns the next expected source sequence for a market
// partition. Admin-injected instructions share the broker's sequence space,
// so the core loop stamps them with this value on admission. Must only be
// called from the goroutine that owns the core.
func (c *DeterministicCore) NextSourceSequence(marketID string) int64 {
	return c.sequenceValidator.GetExpectedSequence(fmt.Sprintf("market:%s", marketID))
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	snap := &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		Groups:          make(map[uuid.UUID]state.MarketProductGroup, len(c.groups)),
		Traders:         make(map[uuid.UUID]state.TraderRiskGroup, len(c.traders)),
		Books:           make(map[uuid.UUID]book.Snapshot, len(c.books)),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.GetAllKeys(),
	}
	for key, g := range c.groups {
		snap.Groups[key] = *g
	}
	for key, t := range c.traders {
		snap.Traders[key] = *t
	}
	for key, b := range c.books {
		if mb, ok := b.(*book.MemoryBook); ok {
			snap.Books[key] = mb.Snapshot()
		}
	}
	return snap
}
