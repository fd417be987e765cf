package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// ThresholdKey is the settings row holding the alert threshold.
const ThresholdKey = "threshold"

// SettingsStore implements domain.SettingsStore and domain.ThresholdStore.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a new SettingsStore backed by the given pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Get retrieves a setting by key, returning domain.ErrNotFound if absent.
func (s *SettingsStore) Get(ctx context.Context, key string) (domain.Setting, error) {
	const query = `SELECT key, value, updated_at FROM settings WHERE key = $1`

	var st domain.Setting
	var raw []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&st.Key, &raw, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Setting{}, fmt.Errorf("postgres: get setting %s: %w", key, domain.ErrNotFound)
		}
		return domain.Setting{}, fmt.Errorf("postgres: get setting %s: %w", key, err)
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &st.Value); err != nil {
			return domain.Setting{}, fmt.Errorf("postgres: unmarshal setting %s: %w", key, err)
		}
	}
	return st, nil
}

// Upsert inserts or replaces a setting. Value is stored as JSONB.
func (s *SettingsStore) Upsert(ctx context.Context, st domain.Setting) error {
	raw, err := json.Marshal(st.Value)
	if err != nil {
		return fmt.Errorf("postgres: marshal setting %s: %w", st.Key, err)
	}

	const query = `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, st.Key, raw); err != nil {
		return fmt.Errorf("postgres: upsert setting %s: %w", st.Key, err)
	}
	return nil
}

// SaveThreshold implements domain.ThresholdStore.
func (s *SettingsStore) SaveThreshold(ctx context.Context, value float64) error {
	return s.Upsert(ctx, domain.Setting{
		Key:   ThresholdKey,
		Value: map[string]any{"value_require": value},
	})
}

// LoadThreshold returns the persisted threshold. ok is false when none has
// been saved yet.
func (s *SettingsStore) LoadThreshold(ctx context.Context) (value float64, ok bool, err error) {
	st, err := s.Get(ctx, ThresholdKey)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, isNum := st.Value["value_require"].(float64)
	if !isNum {
		return 0, false, fmt.Errorf("postgres: threshold setting has no numeric value_require")
	}
	return v, true, nil
}

var (
	_ domain.SettingsStore  = (*SettingsStore)(nil)
	_ domain.ThresholdStore = (*SettingsStore)(nil)
)
