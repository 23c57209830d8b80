package service

import (
	"context"
	"errors"
	"intellearn_backend/internal/repository"
	"intellearn_backend/pkg/logger"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	sweepLockKey   = "intellearn:lock:payment-sweep"
	sweepBatchSize = 500
)

// releaseLock deletes the key only while it still holds our value.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PaymentSweeper fails manual payments left pending longer than the TTL.
// Hosted checkouts are excluded; their expiry arrives through the webhook.
type PaymentSweeper struct {
	Payments    *PaymentService
	PaymentRepo *repository.PaymentRepository
	// Redis is optional. When set, only the replica holding the lock sweeps.
	Redis *redis.Client

	mu   sync.RWMutex
	ttl  time.Duration
	cron *cron.Cron
}

func NewPaymentSweeper(payments *PaymentService, paymentRepo *repository.PaymentRepository, rdb *redis.Client, ttl time.Duration) *PaymentSweeper {
	return &PaymentSweeper{
		Payments:    payments,
		PaymentRepo: paymentRepo,
		Redis:       rdb,
		ttl:         ttl,
	}
}

// SetTTL changes the expiry at runtime. Zero disables sweeping.
func (s *PaymentSweeper) SetTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
}

func (s *PaymentSweeper) TTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttl
}

// Start schedules the sweep with a cron spec such as "@every 15m".
func (s *PaymentSweeper) Start(spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			logger.Log.Error("Payment sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	logger.Log.Info("Payment sweeper started", zap.String("schedule", spec), zap.Duration("ttl", s.TTL()))
	return nil
}

func (s *PaymentSweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep fails every stale pending payment and returns how many it failed.
func (s *PaymentSweeper) Sweep(ctx context.Context) (int, error) {
	ttl := s.TTL()
	if ttl <= 0 {
		return 0, nil
	}

	release, ok, err := s.lock(ctx, ttl)
	if err != nil || !ok {
		return 0, err
	}
	defer release()

	stale, err := s.PaymentRepo.StalePending(ctx, time.Now().Add(-ttl), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, p := range stale {
		if err := s.Payments.Fail(ctx, p.ID, "expired"); err != nil {
			logger.Log.Warn("Could not expire payment", zap.Uint("payment_id", p.ID), zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		logger.Log.Info("Expired stale payments", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *PaymentSweeper) lock(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	if s.Redis == nil {
		return func() {}, true, nil
	}

	holder, _ := os.Hostname()
	holder += ":" + time.Now().Format(time.RFC3339Nano)
	lease := 10 * time.Minute
	if ttl < lease {
		lease = ttl
	}

	ok, err := s.Redis.SetNX(ctx, sweepLockKey, holder, lease).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		logger.Log.Debug("Payment sweep skipped, lock held elsewhere")
		return nil, false, nil
	}

	return func() {
		if err := releaseLock.Run(context.Background(), s.Redis, []string{sweepLockKey}, holder).Err(); err != nil && !errors.Is(err, redis.Nil) {
			logger.Log.Warn("Could not release sweep lock", zap.Error(err))
		}
	}, true, nil
}
