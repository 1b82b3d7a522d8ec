package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/shopcart/internal/domain"
	"github.com/sony/gobreaker/v2"
)

var ErrUnavailable = errors.New("session store unavailable")

type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "session-store",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// BreakerStore fails fast with ErrUnavailable after repeated transport
// failures of the wrapped Store. Missing keys, conflicts and errors returned
// by an UpdateFunc do not count as failures.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func NewBreakerStore(next Store, settings BreakerSettings, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: isHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func isHealthy(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var de *domain.Error
	return errors.As(err, &de)
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Set(ctx, key, value, ttl)
	})
	return translate(err)
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.cb.Execute(func() ([]byte, error) {
		return b.next.Get(ctx, key)
	})
	return data, translate(err)
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return translate(err)
}

func (b *BreakerStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Update(ctx, key, ttl, fn)
	})
	return translate(err)
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
