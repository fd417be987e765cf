package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// StateCache implements domain.StateCache: the threshold is a JSON string,
// availability a hash keyed by exchange.
type StateCache struct {
	rdb             *redis.Client
	thresholdKey    string
	availabilityKey string
}

// NewStateCache creates a StateCache backed by the given Client.
func NewStateCache(c *Client) *StateCache {
	return &StateCache{
		rdb:             c.Underlying(),
		thresholdKey:    c.Key("state", "threshold"),
		availabilityKey: c.Key("state", "availability"),
	}
}

// SetThreshold stores the threshold state.
func (s *StateCache) SetThreshold(ctx context.Context, st domain.ThresholdState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: marshal threshold: %w", err)
	}
	if err := s.rdb.Set(ctx, s.thresholdKey, b, 0).Err(); err != nil {
		return fmt.Errorf("redis: set threshold: %w", err)
	}
	return nil
}

// GetThreshold returns domain.ErrNotFound when nothing was stored.
func (s *StateCache) GetThreshold(ctx context.Context) (domain.ThresholdState, error) {
	b, err := s.rdb.Get(ctx, s.thresholdKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ThresholdState{}, fmt.Errorf("redis: get threshold: %w", domain.ErrNotFound)
		}
		return domain.ThresholdState{}, fmt.Errorf("redis: get threshold: %w", err)
	}
	var st domain.ThresholdState
	if err := json.Unmarshal(b, &st); err != nil {
		return domain.ThresholdState{}, fmt.Errorf("redis: decode threshold: %w", err)
	}
	return st, nil
}

// SetAvailability stores the state of one exchange.
func (s *StateCache) SetAvailability(ctx context.Context, st domain.AvailabilityState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: marshal availability: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.availabilityKey, st.Exchange, b).Err(); err != nil {
		return fmt.Errorf("redis: set availability %s: %w", st.Exchange, err)
	}
	return nil
}

// GetAvailability returns every stored exchange state sorted by exchange.
func (s *StateCache) GetAvailability(ctx context.Context) ([]domain.AvailabilityState, error) {
	fields, err := s.rdb.HGetAll(ctx, s.availabilityKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get availability: %w", err)
	}
	out := make([]domain.AvailabilityState, 0, len(fields))
	for exchange, raw := range fields {
		var st domain.AvailabilityState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("redis: decode availability %s: %w", exchange, err)
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out, nil
}

var _ domain.StateCache = (*StateCache)(nil)
