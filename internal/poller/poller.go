package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/shopcart/internal/domain"
	"github.com/fjod/shopcart/internal/events"
	"github.com/fjod/shopcart/internal/logger"
	"github.com/segmentio/kafka-go"
)

// CartPruner drops the listed SKUs from a user's cart.
type CartPruner interface {
	RemoveItems(ctx context.Context, userID string, skus []string) (*domain.Cart, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Poller consumes checkout-completed events and removes the purchased lines
// from the buyer's cart. Lines added after the snapshot was frozen stay.
// Guest checkouts carry no user and are skipped.
type Poller struct {
	reader  messageReader
	carts   CartPruner
	logger  *slog.Logger
	backoff time.Duration
}

func NewPoller(carts CartPruner, l *slog.Logger, topic, groupID string, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(reader, carts, l)
}

func newPoller(reader messageReader, carts CartPruner, l *slog.Logger) *Poller {
	return &Poller{
		reader:  reader,
		carts:   carts,
		logger:  logger.OrDefault(l).With(slog.String("component", "cart-poller")),
		backoff: time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("error reading message", slog.Any("error", err))
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		p.handle(ctx, msg)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Error("error closing reader", slog.Any("error", err))
	}
}

func (p *Poller) handle(ctx context.Context, msg kafka.Message) {
	var evt events.CheckoutCompleted
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		p.logger.Error("error parsing message", slog.Int64("offset", msg.Offset), slog.Any("error", err))
		return
	}
	if evt.UserID == "" || len(evt.Items) == 0 {
		return
	}

	skus := make([]string, 0, len(evt.Items))
	for _, item := range evt.Items {
		skus = append(skus, item.SKU)
	}

	_, err := p.carts.RemoveItems(ctx, evt.UserID, skus)
	if err != nil && !errors.Is(err, domain.ErrCartNotFound) {
		p.logger.Error("failed to remove purchased items",
			slog.String("user_id", evt.UserID),
			slog.String("order_id", evt.OrderID),
			slog.Any("error", err),
		)
		return
	}

	p.logger.Info("purchased items removed from cart",
		slog.String("user_id", evt.UserID),
		slog.String("order_id", evt.OrderID),
		slog.Int("skus", len(skus)),
	)
}
