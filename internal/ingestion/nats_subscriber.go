package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds instructions
// into the deterministic core via the eventChan. JetStream is the primary
// high-throughput ingestion surface; each instruction type has its own
// subject so consumers scale independently.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the received-but-untyped instruction from NATS, ready for the
// shell to validate and convert into a typed event.Event before sending to
// the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to instruction types.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "dex.admin.product.init.>", EventType: "InitializeProduct", ConsumerName: "clearing-product-init", StreamName: "DEX_ADMIN"},
		{Subject: "dex.admin.combo.init.>", EventType: "InitializeCombo", ConsumerName: "clearing-combo-init", StreamName: "DEX_ADMIN"},
		{Subject: "dex.admin.product.remove.>", EventType: "RemoveProduct", ConsumerName: "clearing-product-remove", StreamName: "DEX_ADMIN"},
		{Subject: "dex.admin.fees.sweep.>", EventType: "SweepFees", ConsumerName: "clearing-fees-sweep", StreamName: "DEX_ADMIN"},
		{Subject: "dex.accounts.init.>", EventType: "InitializeTraderRiskGroup", ConsumerName: "clearing-account-init", StreamName: "DEX_ACCOUNTS"},
		{Subject: "dex.orders.new.>", EventType: "NewOrder", ConsumerName: "clearing-order-new", StreamName: "DEX_ORDERS"},
		{Subject: "dex.orders.cancel.>", EventType: "CancelOrder", ConsumerName: "clearing-order-cancel", StreamName: "DEX_ORDERS"},
		{Subject: "dex.crank.consume.>", EventType: "ConsumeOrderbookEvents", ConsumerName: "clearing-crank-consume", StreamName: "DEX_CRANK"},
		{Subject: "dex.crank.clear.>", EventType: "ClearExpiredOrderbook", ConsumerName: "clearing-crank-clear", StreamName: "DEX_CRANK"},
		{Subject: "dex.funds.deposit.>", EventType: "DepositFunds", ConsumerName: "clearing-deposit", StreamName: "DEX_FUNDS"},
		{Subject: "dex.funds.withdraw.>", EventType: "WithdrawFunds", ConsumerName: "clearing-withdraw", StreamName: "DEX_FUNDS"},
		{Subject: "dex.funding.product.>", EventType: "UpdateProductFunding", ConsumerName: "clearing-funding-product", StreamName: "DEX_FUNDING"},
		{Subject: "dex.funding.trader.>", EventType: "UpdateTraderFunding", ConsumerName: "clearing-funding-trader", StreamName: "DEX_FUNDING"},
		{Subject: "dex.risk.liquidate.>", EventType: "TransferFullPosition", ConsumerName: "clearing-liquidate", StreamName: "DEX_RISK"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "DEX_ADMIN",
			Subjects:  []string{"dex.admin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_ACCOUNTS",
			Subjects:  []string{"dex.accounts.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_ORDERS",
			Subjects:  []string{"dex.orders.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_CRANK",
			Subjects:  []string{"dex.crank.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_FUNDS",
			Subjects:  []string{"dex.funds.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_FUNDING",
			Subjects:  []string{"dex.funding.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_RISK",
			Subjects:  []string{"dex.risk.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
