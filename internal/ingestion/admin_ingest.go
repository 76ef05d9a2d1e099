package ingestion

import (
	"DexLedger/internal/event"
	"DexLedger/internal/fpmath"
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// AdminIngestService provides manual instruction injection for operators.
// It sits behind the admin API, not the high-throughput path (use NATS for
// that). Injected instructions carry a zero source sequence; the core loop
// stamps the partition's next expected sequence when it admits them, so
// admin traffic shares the broker's sequence space. Each injection gets a
// snowflake ingest id the caller can correlate with logs.
type AdminIngestService struct {
	eventChan chan<- event.Event
	node      *snowflake.Node
}

func NewAdminIngestService(eventChan chan<- event.Event, nodeID int64) (*AdminIngestService, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &AdminIngestService{eventChan: eventChan, node: node}, nil
}

func (s *AdminIngestService) send(ctx context.Context, evt event.Event) (int64, error) {
	ingestID := s.node.Generate().Int64()
	select {
	case s.eventChan <- evt:
		return ingestID, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// InjectDeposit manually injects a DepositFunds instruction.
func (s *AdminIngestService) InjectDeposit(
	ctx context.Context,
	group, trader uuid.UUID,
	quantity fpmath.Fractional,
) (int64, error) {
	if quantity.Sign() <= 0 {
		return 0, fmt.Errorf("quantity must be positive")
	}

	return s.send(ctx, &event.DepositFunds{
		InstructionID: uuid.New(),
		Group:         group,
		Trader:        trader,
		Quantity:      quantity,
		Timestamp:     time.Now(),
	})
}

// InjectWithdrawal manually injects a WithdrawFunds instruction.
func (s *AdminIngestService) InjectWithdrawal(
	ctx context.Context,
	group, trader uuid.UUID,
	quantity fpmath.Fractional,
) (int64, error) {
	if quantity.Sign() <= 0 {
		return 0, fmt.Errorf("quantity must be positive")
	}

	return s.send(ctx, &event.WithdrawFunds{
		InstructionID: uuid.New(),
		Group:         group,
		Trader:        trader,
		Quantity:      quantity,
		Timestamp:     time.Now(),
	})
}

// InjectTraderInit manually injects an InitializeTraderRiskGroup instruction.
func (s *AdminIngestService) InjectTraderInit(
	ctx context.Context,
	group, trader uuid.UUID,
) (int64, error) {
	return s.send(ctx, &event.InitializeTraderRiskGroup{
		InstructionID: uuid.New(),
		Group:         group,
		Trader:        trader,
		Timestamp:     time.Now(),
	})
}

// InjectProductFunding manually injects an UpdateProductFunding instruction.
func (s *AdminIngestService) InjectProductFunding(
	ctx context.Context,
	group, product uuid.UUID,
	amount fpmath.Fractional,
	expired bool,
) (int64, error) {
	return s.send(ctx, &event.UpdateProductFunding{
		InstructionID: uuid.New(),
		Group:         group,
		Product:       product,
		Amount:        amount,
		Expired:       expired,
		Timestamp:     time.Now(),
	})
}

// InjectFeeSweep manually injects a SweepFees instruction.
func (s *AdminIngestService) InjectFeeSweep(
	ctx context.Context,
	group, feeCollector uuid.UUID,
) (int64, error) {
	return s.send(ctx, &event.SweepFees{
		InstructionID: uuid.New(),
		Group:         group,
		FeeCollector:  feeCollector,
		Timestamp:     time.Now(),
	})
}
