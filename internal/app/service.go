/**
 * @description
 * This file contains the core business logic for the ledger-service. The `Service`
 * struct orchestrates client and account management, transaction recording, anomaly
 * classification and reporting, coordinating between the repository, the per-account
 * locker and the message broker.
 *
 * Key features:
 * - Every balance change goes through RecordTransaction under the account lock.
 * - Every error returned belongs to the domain error taxonomy.
 * - Publishes ledger events to RabbitMQ for downstream consumers.
 *
 * @dependencies
 * - go.uber.org/zap: Structured logging.
 * - internal/anomaly, internal/report: Pure classification and aggregation.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/anomaly"
	"github.com/solubank/ledger-service/internal/store"
	"github.com/solubank/ledger-service/pkg/rabbitmq"
)

const (
	DefaultEventsExchange     = "ledger.events"
	DefaultInactivityDays     = 30
	DefaultTopClientsLimit    = 5
	DefaultReconcileBatchSize = 100
)

// Options tunes the service. Zero values fall back to the defaults above.
type Options struct {
	Rules               anomaly.Rules
	InactivityDays      int
	LowBalanceThreshold decimal.Decimal
	TopClientsLimit     int
	AtomicRecording     bool
	EventsExchange      string
	ReconcileBatchSize  int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Rules:               anomaly.DefaultRules(),
		InactivityDays:      DefaultInactivityDays,
		LowBalanceThreshold: decimal.NewFromInt(100),
		TopClientsLimit:     DefaultTopClientsLimit,
		EventsExchange:      DefaultEventsExchange,
		ReconcileBatchSize:  DefaultReconcileBatchSize,
	}
}

// Service provides the core ledger operations.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	locker        AccountLocker
	clock         Clock
	numbers       NumberGenerator
	logger        *zap.Logger
	opts          Options
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, logger *zap.Logger, opts Options) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.Rules.HomeRegion == "" {
		opts.Rules.HomeRegion = defaults.Rules.HomeRegion
	}
	if opts.Rules.BurstWindow <= 0 {
		opts.Rules.BurstWindow = defaults.Rules.BurstWindow
	}
	if opts.Rules.LargeAmountThreshold.IsZero() {
		opts.Rules.LargeAmountThreshold = defaults.Rules.LargeAmountThreshold
	}
	if opts.InactivityDays <= 0 {
		opts.InactivityDays = defaults.InactivityDays
	}
	if opts.TopClientsLimit <= 0 {
		opts.TopClientsLimit = defaults.TopClientsLimit
	}
	if opts.EventsExchange == "" {
		opts.EventsExchange = defaults.EventsExchange
	}
	if opts.ReconcileBatchSize <= 0 {
		opts.ReconcileBatchSize = defaults.ReconcileBatchSize
	}

	return &Service{
		repo:          repo,
		eventProducer: producer,
		locker:        NewLocalAccountLocker(),
		clock:         SystemClock{},
		numbers:       UUIDNumberGenerator{},
		logger:        logger.With(zap.String("component", "ledger_service")),
		opts:          opts,
	}
}

// SetAccountLocker swaps the per-account lock implementation (e.g. Redis).
func (s *Service) SetAccountLocker(locker AccountLocker) {
	if locker != nil {
		s.locker = locker
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(clock Clock) {
	if clock != nil {
		s.clock = clock
	}
}

// SetNumberGenerator overrides account number generation.
func (s *Service) SetNumberGenerator(numbers NumberGenerator) {
	if numbers != nil {
		s.numbers = numbers
	}
}

// Rules exposes the active anomaly rules.
func (s *Service) Rules() anomaly.Rules {
	return s.opts.Rules
}

// publish sends an event and logs failures; the ledger write already succeeded.
func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) {
	if err := s.eventProducer.Publish(ctx, s.opts.EventsExchange, routingKey, body); err != nil {
		s.logger.Warn("event publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func newEventID() string {
	return uuid.NewString()
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}
