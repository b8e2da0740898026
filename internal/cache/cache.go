// Package cache persists the small amount of local state that outlives a
// session: user settings, the last resolved role, the active view, and the
// cache-format version marker.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keySettings = "homebase:settings"
	keyRole     = "homebase:role"
	keyView     = "homebase:view"
	keyVersion  = "homebase:cache_version"
)

type Store struct {
	client *redis.Client
}

func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Settings returns the persisted settings, or the defaults when nothing is
// stored or the stored value no longer decodes.
func (s *Store) Settings(ctx context.Context) (Settings, error) {
	raw, err := s.client.Get(ctx, keySettings).Result()
	if err == redis.Nil {
		return DefaultSettings(), nil
	}
	if err != nil {
		return DefaultSettings(), fmt.Errorf("load settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return DefaultSettings(), nil
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.client.Set(ctx, keySettings, raw, 0).Err(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Role returns the cached role label, empty when none is stored.
func (s *Store) Role(ctx context.Context) (string, error) {
	role, err := s.client.Get(ctx, keyRole).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load role: %w", err)
	}
	return role, nil
}

func (s *Store) SaveRole(ctx context.Context, role string) error {
	if err := s.client.Set(ctx, keyRole, role, 0).Err(); err != nil {
		return fmt.Errorf("save role: %w", err)
	}
	return nil
}

func (s *Store) View(ctx context.Context) (string, error) {
	view, err := s.client.Get(ctx, keyView).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load view: %w", err)
	}
	return view, nil
}

func (s *Store) SaveView(ctx context.Context, view string) error {
	if err := s.client.Set(ctx, keyView, view, 0).Err(); err != nil {
		return fmt.Errorf("save view: %w", err)
	}
	return nil
}
