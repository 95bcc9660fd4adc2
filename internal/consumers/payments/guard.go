package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgredis "github.com/angelmondragon/stockmonitor/pkg/redis"
)

const defaultProcessedTTL = 7 * 24 * time.Hour

// ProcessedGuard marks consumed event IDs in redis so redeliveries are skipped.
type ProcessedGuard struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
}

func NewProcessedGuard(store pkgredis.IdempotencyStore, ttl time.Duration) (*ProcessedGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store required")
	}
	if ttl <= 0 {
		ttl = defaultProcessedTTL
	}
	return &ProcessedGuard{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports true when eventID was already marked.
func (g *ProcessedGuard) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	marked, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, err
	}
	return !marked, nil
}

func (g *ProcessedGuard) Delete(ctx context.Context, consumer, eventID string) error {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *ProcessedGuard) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	eventID = strings.TrimSpace(eventID)
	if consumer == "" || eventID == "" {
		return "", errors.New("consumer and event id are required")
	}
	return g.store.IdempotencyKey("evt:processed:"+consumer, eventID), nil
}
