package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"BarLedger/internal/logger"
	"BarLedger/internal/model"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const barColumns = `code, date, open, high, low, close, volume, amount, pct_chg,
	ma5, ma10, ma20, volume_ratio,
	turnover_rate, volume_ratio_basic, pe, pb, total_mv, circ_mv,
	basic_fetched, data_source, created_at, updated_at`

// supplementaryColumns are added to existing databases on open, never dropped.
var supplementaryColumns = []struct{ name, typ string }{
	{"volume_ratio_basic", "REAL"},
	{"turnover_rate", "REAL"},
	{"pe", "REAL"},
	{"pb", "REAL"},
	{"total_mv", "REAL"},
	{"circ_mv", "REAL"},
	{"basic_fetched", "INTEGER DEFAULT 0"},
}

// SQLiteStore keeps bars in a single SQLite table keyed by (code, date).
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
	log *logrus.Entry
}

// Open opens (or creates) the SQLite database and brings its schema up to date.
func Open(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets readers run while the ingest writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now, log: logger.Component("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.WithField("path", dbPath).Info("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_bars (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			code         TEXT NOT NULL,
			date         TEXT NOT NULL,
			open         REAL,
			high         REAL,
			low          REAL,
			close        REAL,
			volume       REAL,
			amount       REAL,
			pct_chg      REAL,
			ma5          REAL,
			ma10         REAL,
			ma20         REAL,
			volume_ratio REAL,
			data_source  TEXT,
			created_at   INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL,
			UNIQUE(code, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_bars_code ON daily_bars(code)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_bars_date ON daily_bars(date)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_bars_code_date ON daily_bars(code, date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", strings.Join(strings.Fields(stmt), " ")[:40], err)
		}
	}
	return s.addMissingColumns()
}

// addMissingColumns upgrades tables created before fundamentals were stored.
func (s *SQLiteStore) addMissingColumns() error {
	rows, err := s.db.Query(`PRAGMA table_info(daily_bars)`)
	if err != nil {
		return fmt.Errorf("table info: %w", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scan table info: %w", err)
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range supplementaryColumns {
		if existing[col.name] {
			continue
		}
		if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE daily_bars ADD COLUMN %s %s", col.name, col.typ)); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
		s.log.WithField("column", col.name).Info("added column")
	}
	return nil
}

// Upsert writes bars for code. Any failing row rolls back the whole batch.
func (s *SQLiteStore) Upsert(ctx context.Context, code string, bars []model.DailyBar, source string) (UpsertResult, error) {
	var res UpsertResult
	if len(bars) == 0 {
		return res, nil
	}
	if code == "" {
		return res, fmt.Errorf("%w: empty code", ErrPersistence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	res, err = s.upsertTx(ctx, tx, code, bars, source)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.WithError(rbErr).Error("rollback failed")
		}
		s.log.WithError(err).WithFields(logrus.Fields{"code": code, "rows": len(bars)}).Error("upsert rolled back")
		return UpsertResult{}, fmt.Errorf("%w: %s: %w", ErrPersistence, code, err)
	}
	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("%w: commit %s: %w", ErrPersistence, code, err)
	}
	s.log.WithFields(logrus.Fields{
		"code":     code,
		"inserted": res.Inserted,
		"updated":  res.Updated,
		"source":   source,
	}).Debug("upsert committed")
	return res, nil
}

func (s *SQLiteStore) upsertTx(ctx context.Context, tx *sql.Tx, code string, bars []model.DailyBar, source string) (UpsertResult, error) {
	var res UpsertResult
	lookup, err := tx.PrepareContext(ctx, `SELECT id FROM daily_bars WHERE code = ? AND date = ?`)
	if err != nil {
		return res, err
	}
	defer lookup.Close()
	insert, err := tx.PrepareContext(ctx, `INSERT INTO daily_bars (`+barColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return res, err
	}
	defer insert.Close()
	// COALESCE keeps the stored value whenever the incoming one is NULL.
	update, err := tx.PrepareContext(ctx, `UPDATE daily_bars SET
		open = COALESCE(?, open),
		high = COALESCE(?, high),
		low = COALESCE(?, low),
		close = COALESCE(?, close),
		volume = COALESCE(?, volume),
		amount = COALESCE(?, amount),
		pct_chg = COALESCE(?, pct_chg),
		ma5 = COALESCE(?, ma5),
		ma10 = COALESCE(?, ma10),
		ma20 = COALESCE(?, ma20),
		volume_ratio = COALESCE(?, volume_ratio),
		turnover_rate = COALESCE(?, turnover_rate),
		volume_ratio_basic = COALESCE(?, volume_ratio_basic),
		pe = COALESCE(?, pe),
		pb = COALESCE(?, pb),
		total_mv = COALESCE(?, total_mv),
		circ_mv = COALESCE(?, circ_mv),
		basic_fetched = MAX(COALESCE(basic_fetched, 0), ?),
		data_source = COALESCE(NULLIF(?, ''), data_source),
		updated_at = ?
		WHERE id = ?`)
	if err != nil {
		return res, err
	}
	defer update.Close()

	now := s.now().Unix()
	for i := range bars {
		b := &bars[i]
		if b.Date.IsZero() {
			return res, fmt.Errorf("row %d: missing date", i)
		}
		date := b.Date.Format(model.DateLayout)
		src := source
		if src == "" {
			src = b.DataSource
		}
		basic := 0
		if b.BasicFetched {
			basic = 1
		}

		var id int64
		err := lookup.QueryRowContext(ctx, code, date).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := insert.ExecContext(ctx,
				code, date, b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount, b.PctChg,
				b.MA5, b.MA10, b.MA20, b.VolumeRatio,
				b.TurnoverRate, b.VolumeRatioBasic, b.PE, b.PB, b.TotalMV, b.CircMV,
				basic, src, now, now,
			); err != nil {
				return res, fmt.Errorf("insert %s: %w", date, err)
			}
			res.Inserted++
		case err != nil:
			return res, fmt.Errorf("lookup %s: %w", date, err)
		default:
			if _, err := update.ExecContext(ctx,
				b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount, b.PctChg,
				b.MA5, b.MA10, b.MA20, b.VolumeRatio,
				b.TurnoverRate, b.VolumeRatioBasic, b.PE, b.PB, b.TotalMV, b.CircMV,
				basic, src, now, id,
			); err != nil {
				return res, fmt.Errorf("update %s: %w", date, err)
			}
			res.Updated++
		}
	}
	return res, nil
}

// Exists reports whether the row is stored. With requireBasic it must also
// carry fundamentals: the flag, or any supplementary value for rows written
// before the flag existed.
func (s *SQLiteStore) Exists(ctx context.Context, code string, date time.Time, requireBasic bool) (bool, error) {
	q := `SELECT COUNT(1) FROM daily_bars WHERE code = ? AND date = ?`
	if requireBasic {
		q += ` AND (COALESCE(basic_fetched, 0) = 1
			OR turnover_rate IS NOT NULL OR volume_ratio_basic IS NOT NULL
			OR pe IS NOT NULL OR pb IS NOT NULL
			OR total_mv IS NOT NULL OR circ_mv IS NOT NULL)`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, code, date.Format(model.DateLayout)).Scan(&n); err != nil {
		return false, fmt.Errorf("exists %s %s: %w", code, date.Format(model.DateLayout), err)
	}
	return n > 0, nil
}

// Latest returns up to limit newest bars for code, newest first.
func (s *SQLiteStore) Latest(ctx context.Context, code string, limit int) ([]model.DailyBar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+barColumns+` FROM daily_bars
		WHERE code = ? ORDER BY date DESC LIMIT ?`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", code, err)
	}
	return scanBars(rows)
}

// Range returns bars for code within [start, end], oldest first.
func (s *SQLiteStore) Range(ctx context.Context, code string, start, end time.Time) ([]model.DailyBar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+barColumns+` FROM daily_bars
		WHERE code = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		code, start.Format(model.DateLayout), end.Format(model.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", code, err)
	}
	return scanBars(rows)
}

func scanBars(rows *sql.Rows) ([]model.DailyBar, error) {
	defer rows.Close()
	var out []model.DailyBar
	for rows.Next() {
		var (
			b                    model.DailyBar
			date                 string
			basic                sql.NullInt64
			source               sql.NullString
			createdAt, updatedAt int64
		)
		if err := rows.Scan(
			&b.Code, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Amount, &b.PctChg,
			&b.MA5, &b.MA10, &b.MA20, &b.VolumeRatio,
			&b.TurnoverRate, &b.VolumeRatioBasic, &b.PE, &b.PB, &b.TotalMV, &b.CircMV,
			&basic, &source, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		d, err := model.ParseDay(date)
		if err != nil {
			return nil, fmt.Errorf("scan bar date %q: %w", date, err)
		}
		b.Date = d
		b.BasicFetched = basic.Valid && basic.Int64 == 1
		b.DataSource = source.String
		b.CreatedAt = time.Unix(createdAt, 0)
		b.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.log.Info("closing sqlite store")
	return s.db.Close()
}
