package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dineflow/tableorder/internal/orders"
	"github.com/dineflow/tableorder/internal/redisx"
)

// SessionStore keeps one cart per customer session in Redis. Carts expire on
// their own; an abandoned table does not leak state.
type SessionStore struct {
	Redis *redis.Client
}

func (s *SessionStore) Get(ctx context.Context, session string) ([]orders.Line, error) {
	key := fmt.Sprintf(redisx.KeyCart, session)
	raw, err := s.Redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lines []orders.Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", session, err)
	}
	return lines, nil
}

func (s *SessionStore) Put(ctx context.Context, session string, lines []orders.Line) error {
	key := fmt.Sprintf(redisx.KeyCart, session)
	b, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, key, b, redisx.TTLCart).Err()
}

func (s *SessionStore) Clear(ctx context.Context, session string) error {
	key := fmt.Sprintf(redisx.KeyCart, session)
	return s.Redis.Del(ctx, key).Err()
}
