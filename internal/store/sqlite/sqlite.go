// Package sqlite is the durable store's only implementation: a
// single-writer SQLite database over candles, tickers, filters and
// triggers, WAL-moded the way the teacher's internal/store/sqlite
// writer/reader pair was. Each write is a single statement; nothing is
// batched.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cryptoscreener/internal/model"
	"cryptoscreener/internal/store"
)

// Store is the SQLite-backed store.Store implementation.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if absent) the SQLite database at path, enables
// WAL mode and creates the schema if missing.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	log.Info("sqlite store ready", "path", path)
	return &Store{db: db, log: log}, nil
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT    NOT NULL,
			market     TEXT    NOT NULL,
			timestamp  INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, market, timestamp)
		);
		CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles (symbol, market, timestamp DESC);

		CREATE TABLE IF NOT EXISTS tickers (
			symbol     TEXT    NOT NULL,
			market     TEXT    NOT NULL,
			volume_24h REAL    NOT NULL,
			last_price REAL    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, market)
		);

		CREATE TABLE IF NOT EXISTS filters (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT    NOT NULL,
			type        TEXT    NOT NULL,
			enabled     INTEGER NOT NULL,
			config_json TEXT    NOT NULL,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER
		);

		CREATE TABLE IF NOT EXISTS triggers (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			filter_id    INTEGER NOT NULL,
			filter_name  TEXT    NOT NULL,
			filter_type  TEXT    NOT NULL,
			symbol       TEXT    NOT NULL,
			market       TEXT    NOT NULL,
			triggered_at INTEGER NOT NULL,
			data_json    TEXT    NOT NULL,
			notified     INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_triggers_filter_symbol ON triggers (filter_id, symbol, triggered_at DESC);
		CREATE INDEX IF NOT EXISTS idx_triggers_time ON triggers (triggered_at DESC);

		CREATE TABLE IF NOT EXISTS settings (
			id                     INTEGER PRIMARY KEY CHECK (id = 1),
			check_interval_seconds INTEGER NOT NULL,
			cooldown_minutes       INTEGER NOT NULL,
			parse_spot             INTEGER NOT NULL,
			parse_futures          INTEGER NOT NULL
		);
	`)
	return err
}

// SaveCandle upserts keyed by (symbol, market, timestamp). ON CONFLICT
// DO UPDATE makes re-applying an identical candle a no-op in effect.
func (s *Store) SaveCandle(ctx context.Context, c model.Candle) error {
	if err := c.Valid(); err != nil {
		return fmt.Errorf("sqlite: save candle: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO candles (symbol, market, timestamp, open, high, low, close, volume, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, market, timestamp) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume
	`, c.Symbol.Exchange(), string(c.Symbol.Market), c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite: save candle: %w", err)
	}
	return nil
}

// GetCandles returns up to windowMinutes most-recent closed candles for
// sym, ascending by timestamp.
func (s *Store) GetCandles(ctx context.Context, sym model.Symbol, windowMinutes int) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume FROM (
			SELECT timestamp, open, high, low, close, volume FROM candles
			WHERE symbol = ? AND market = ?
			ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC
	`, sym.Exchange(), string(sym.Market), windowMinutes)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		c := model.Candle{Symbol: sym}
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite: scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveTicker upserts keyed by (symbol, market).
func (s *Store) SaveTicker(ctx context.Context, t model.Ticker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickers (symbol, market, volume_24h, last_price, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol, market) DO UPDATE SET
			volume_24h=excluded.volume_24h, last_price=excluded.last_price, updated_at=excluded.updated_at
	`, t.Symbol.Exchange(), string(t.Symbol.Market), t.Volume24h, t.LastPrice, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: save ticker: %w", err)
	}
	return nil
}

// GetTicker returns the last-saved ticker snapshot for sym.
func (s *Store) GetTicker(ctx context.Context, sym model.Symbol) (model.Ticker, error) {
	t := model.Ticker{Symbol: sym}
	err := s.db.QueryRowContext(ctx, `
		SELECT volume_24h, last_price, updated_at FROM tickers WHERE symbol = ? AND market = ?
	`, sym.Exchange(), string(sym.Market)).Scan(&t.Volume24h, &t.LastPrice, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Ticker{}, store.ErrNotFound
	}
	if err != nil {
		return model.Ticker{}, fmt.Errorf("sqlite: get ticker: %w", err)
	}
	return t, nil
}

// SaveTrigger persists a trigger row atomically and returns its id.
func (s *Store) SaveTrigger(ctx context.Context, t model.Trigger) (int64, error) {
	data, err := json.Marshal(t.Data)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marshal trigger data: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO triggers (filter_id, filter_name, filter_type, symbol, market, triggered_at, data_json, notified)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, t.FilterID, t.FilterName, string(t.FilterType), t.Symbol.Exchange(), string(t.Symbol.Market), t.TriggeredAt, string(data))
	if err != nil {
		return 0, fmt.Errorf("sqlite: save trigger: %w", err)
	}
	return res.LastInsertId()
}

// MarkNotified flips a trigger's notified flag.
func (s *Store) MarkNotified(ctx context.Context, triggerID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE triggers SET notified = 1 WHERE id = ?`, triggerID)
	if err != nil {
		return fmt.Errorf("sqlite: mark notified: %w", err)
	}
	return nil
}

// CheckCooldown reports true iff no trigger row exists for (filterID,
// symbol) more recent than now - cooldownMinutes*60 — inclusive of the
// exact boundary (spec §8 invariant 11).
func (s *Store) CheckCooldown(ctx context.Context, filterID int64, sym model.Symbol, cooldownMinutes int, now int64) (bool, error) {
	cutoff := now - int64(cooldownMinutes)*60
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM triggers WHERE filter_id = ? AND symbol = ? AND market = ? AND triggered_at > ?
	`, filterID, sym.Exchange(), string(sym.Market), cutoff).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: check cooldown: %w", err)
	}
	return count == 0, nil
}

// CreateFilter validates and inserts a new filter row.
func (s *Store) CreateFilter(ctx context.Context, f model.Filter) (int64, error) {
	if err := f.Config.Validate(); err != nil {
		return 0, err
	}
	cfg, err := json.Marshal(f.Config)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marshal filter config: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO filters (name, type, enabled, config_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.Name, string(f.Type), boolToInt(f.Enabled), string(cfg), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: create filter: %w", err)
	}
	return res.LastInsertId()
}

// GetFilter fetches a single filter by id.
func (s *Store) GetFilter(ctx context.Context, id int64) (model.Filter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, enabled, config_json, created_at, updated_at FROM filters WHERE id = ?
	`, id)
	return scanFilter(row)
}

// ListFilters returns every filter regardless of enabled state.
func (s *Store) ListFilters(ctx context.Context) ([]model.Filter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, enabled, config_json, created_at, updated_at FROM filters ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list filters: %w", err)
	}
	defer rows.Close()
	return scanFilters(rows)
}

// ListActiveFilters returns only enabled filters — the set the
// scheduler's fan-out evaluates every minute.
func (s *Store) ListActiveFilters(ctx context.Context) ([]model.Filter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, enabled, config_json, created_at, updated_at FROM filters WHERE enabled = 1 ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list active filters: %w", err)
	}
	defer rows.Close()
	return scanFilters(rows)
}

// UpdateFilter validates and replaces a filter's fields.
func (s *Store) UpdateFilter(ctx context.Context, f model.Filter) error {
	if err := f.Config.Validate(); err != nil {
		return err
	}
	cfg, err := json.Marshal(f.Config)
	if err != nil {
		return fmt.Errorf("sqlite: marshal filter config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE filters SET name = ?, type = ?, enabled = ?, config_json = ?, updated_at = ? WHERE id = ?
	`, f.Name, string(f.Type), boolToInt(f.Enabled), string(cfg), time.Now().Unix(), f.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update filter: %w", err)
	}
	return nil
}

// DeleteFilter removes a filter by id.
func (s *Store) DeleteFilter(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM filters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete filter: %w", err)
	}
	return nil
}

// ToggleFilter flips a filter's enabled flag.
func (s *Store) ToggleFilter(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE filters SET enabled = ?, updated_at = ? WHERE id = ?`, boolToInt(enabled), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("sqlite: toggle filter: %w", err)
	}
	return nil
}

// ListTriggers queries trigger rows filtered and paginated per q.
func (s *Store) ListTriggers(ctx context.Context, q store.TriggerQuery) ([]model.Trigger, error) {
	query := `SELECT id, filter_id, filter_name, filter_type, symbol, market, triggered_at, data_json, notified FROM triggers WHERE 1=1`
	var args []any
	if q.FilterID != 0 {
		query += ` AND filter_id = ?`
		args = append(args, q.FilterID)
	}
	if q.Symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, q.Symbol)
	}
	if q.Market != "" {
		query += ` AND market = ?`
		args = append(args, string(q.Market))
	}
	if q.From != 0 {
		query += ` AND triggered_at >= ?`
		args = append(args, q.From)
	}
	if q.To != 0 {
		query += ` AND triggered_at <= ?`
		args = append(args, q.To)
	}
	query += ` ORDER BY triggered_at DESC`
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list triggers: %w", err)
	}
	defer rows.Close()

	var out []model.Trigger
	for rows.Next() {
		var t model.Trigger
		var symStr, marketStr, dataStr string
		var notified int
		if err := rows.Scan(&t.ID, &t.FilterID, &t.FilterName, &t.FilterType, &symStr, &marketStr, &t.TriggeredAt, &dataStr, &notified); err != nil {
			return nil, fmt.Errorf("sqlite: scan trigger: %w", err)
		}
		t.Symbol = model.ParseSymbol(symStr, model.Market(marketStr))
		t.Notified = notified != 0
		if err := json.Unmarshal([]byte(dataStr), &t.Data); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal trigger data: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TriggerStats aggregates today/week/month counts, by filter and by symbol.
func (s *Store) TriggerStats(ctx context.Context, now int64) (model.TriggerStats, error) {
	stats := model.TriggerStats{ByFilter: map[string]int64{}, BySymbol: map[string]int64{}}

	dayStart := now - now%86400
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM triggers WHERE triggered_at >= ?`, dayStart).Scan(&stats.Today); err != nil {
		return stats, fmt.Errorf("sqlite: trigger stats today: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM triggers WHERE triggered_at >= ?`, now-7*86400).Scan(&stats.Week); err != nil {
		return stats, fmt.Errorf("sqlite: trigger stats week: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM triggers WHERE triggered_at >= ?`, now-30*86400).Scan(&stats.Month); err != nil {
		return stats, fmt.Errorf("sqlite: trigger stats month: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT filter_name, COUNT(*) FROM triggers WHERE triggered_at >= ? GROUP BY filter_name`, now-30*86400)
	if err != nil {
		return stats, fmt.Errorf("sqlite: trigger stats by filter: %w", err)
	}
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByFilter[name] = n
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT symbol, COUNT(*) FROM triggers WHERE triggered_at >= ? GROUP BY symbol`, now-30*86400)
	if err != nil {
		return stats, fmt.Errorf("sqlite: trigger stats by symbol: %w", err)
	}
	for rows.Next() {
		var sym string
		var n int64
		if err := rows.Scan(&sym, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.BySymbol[sym] = n
	}
	rows.Close()

	return stats, nil
}

// GetSettings returns the process-wide settings row. It reports
// store.ErrNotFound on a fresh database (the row is only created by
// SaveSettings) rather than fabricating defaults here — the composition
// root owns what the first-run defaults are (spec §6 env config), this
// package only owns persistence.
func (s *Store) GetSettings(ctx context.Context) (model.Settings, error) {
	var st model.Settings
	var parseSpot, parseFutures int
	err := s.db.QueryRowContext(ctx, `
		SELECT check_interval_seconds, cooldown_minutes, parse_spot, parse_futures FROM settings WHERE id = 1
	`).Scan(&st.CheckIntervalSeconds, &st.CooldownMinutes, &parseSpot, &parseFutures)
	if err == sql.ErrNoRows {
		return model.Settings{}, store.ErrNotFound
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("sqlite: get settings: %w", err)
	}
	st.ParseSpot = parseSpot != 0
	st.ParseFutures = parseFutures != 0
	return st, nil
}

// SaveSettings upserts the single settings row.
func (s *Store) SaveSettings(ctx context.Context, st model.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, check_interval_seconds, cooldown_minutes, parse_spot, parse_futures)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			check_interval_seconds=excluded.check_interval_seconds,
			cooldown_minutes=excluded.cooldown_minutes,
			parse_spot=excluded.parse_spot,
			parse_futures=excluded.parse_futures
	`, st.CheckIntervalSeconds, st.CooldownMinutes, boolToInt(st.ParseSpot), boolToInt(st.ParseFutures))
	if err != nil {
		return fmt.Errorf("sqlite: save settings: %w", err)
	}
	return nil
}

// SweepCandles deletes candles older than keepHours.
func (s *Store) SweepCandles(ctx context.Context, keepHours int, now int64) (int64, error) {
	cutoff := now - int64(keepHours)*3600
	res, err := s.db.ExecContext(ctx, `DELETE FROM candles WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep candles: %w", err)
	}
	return res.RowsAffected()
}

// SweepTriggers deletes triggers older than keepDays.
func (s *Store) SweepTriggers(ctx context.Context, keepDays int, now int64) (int64, error) {
	cutoff := now - int64(keepDays)*86400
	res, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE triggered_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep triggers: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func scanFilter(row *sql.Row) (model.Filter, error) {
	var f model.Filter
	var cfgStr string
	var enabled int
	var updatedAt sql.NullInt64
	err := row.Scan(&f.ID, &f.Name, &f.Type, &enabled, &cfgStr, &f.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return model.Filter{}, store.ErrNotFound
	}
	if err != nil {
		return model.Filter{}, fmt.Errorf("sqlite: scan filter: %w", err)
	}
	f.Enabled = enabled != 0
	if updatedAt.Valid {
		f.UpdatedAt = updatedAt.Int64
	}
	if err := json.Unmarshal([]byte(cfgStr), &f.Config); err != nil {
		return model.Filter{}, fmt.Errorf("sqlite: unmarshal filter config: %w", err)
	}
	return f, nil
}

func scanFilters(rows *sql.Rows) ([]model.Filter, error) {
	var out []model.Filter
	for rows.Next() {
		var f model.Filter
		var cfgStr string
		var enabled int
		var updatedAt sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Name, &f.Type, &enabled, &cfgStr, &f.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan filter: %w", err)
		}
		f.Enabled = enabled != 0
		if updatedAt.Valid {
			f.UpdatedAt = updatedAt.Int64
		}
		if err := json.Unmarshal([]byte(cfgStr), &f.Config); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal filter config: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ store.Store = (*Store)(nil)
