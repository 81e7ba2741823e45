package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptoscreener/internal/model"
)

const settingsRedisKey = "screener:settings"

// SettingsStore mirrors process-wide Settings into Redis so a restart
// (or a second gateway instance) can recover the last-written values
// without waiting on the SQLite round trip. The sqlite store remains
// the durable source of truth (spec §5); this is a fast-path cache,
// generalized from the teacher's config_store.go active-config mirror.
// Within this module only Load is called (by cmd/screener at startup);
// nothing calls Save, so the process never writes the Redis key itself.
type SettingsStore struct {
	rdb *goredis.Client
	log *slog.Logger
}

// NewSettingsStore creates a SettingsStore. rdb may be nil, in which
// case Load/Save are no-ops — Redis is an optional accelerator.
func NewSettingsStore(rdb *goredis.Client, log *slog.Logger) *SettingsStore {
	return &SettingsStore{rdb: rdb, log: log}
}

// Load returns the last-mirrored settings, if any.
func (s *SettingsStore) Load(ctx context.Context) (model.Settings, bool) {
	if s.rdb == nil {
		return model.Settings{}, false
	}
	data, err := s.rdb.Get(ctx, settingsRedisKey).Result()
	if err != nil {
		return model.Settings{}, false
	}
	var cfg model.Settings
	if json.Unmarshal([]byte(data), &cfg) != nil {
		return model.Settings{}, false
	}
	return cfg, true
}

// Save mirrors settings to Redis, fire-and-forget: the sqlite write is
// what makes the change durable, this is only a warm-start optimization.
func (s *SettingsStore) Save(cfg model.Settings) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rdb.Set(ctx, settingsRedisKey, data, 0).Err(); err != nil {
		s.log.Warn("failed to mirror settings to redis", "err", err)
	}
}
