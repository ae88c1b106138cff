package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Journal 以原生 SQLite 落盘每一条进入引擎的回放事件，独立于
// 判定落库，方便排查"引擎看到了什么"。
type Journal struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Entry 是一条进站事件的审计记录。Payload 保留原始行文本。
type Entry struct {
	ID      int64  `json:"id"`
	TS      int64  `json:"ts"`
	Kind    string `json:"kind"`
	Token   int64  `json:"token"`
	Payload string `json:"payload"`
}

// Open 初始化事件流水账存储。
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, path: path}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS feed_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			kind TEXT NOT NULL,
			token INTEGER,
			payload TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_feed_events_ts_id ON feed_events(ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_feed_events_kind_ts_id ON feed_events(kind, ts DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
	}
	return nil
}

// Append 追加一条事件。失败只影响审计，不应阻塞判定链路，
// 调用方对错误记日志即可。
func (j *Journal) Append(ctx context.Context, kind string, token int64, payload string) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal 未初始化")
	}
	now := time.Now().UnixMilli()
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO feed_events (ts, kind, token, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		now, kind, token, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	return nil
}

// Recent 返回最近的事件，新的在前。
func (j *Journal) Recent(ctx context.Context, kind string, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal 未初始化")
	}
	limit = clampLimit(limit)
	query := `SELECT id, ts, kind, COALESCE(token, 0), COALESCE(payload, '') FROM feed_events`
	args := make([]any, 0, 2)
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TS, &e.Kind, &e.Token, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count 返回事件总数，审计页展示用。
func (j *Journal) Count(ctx context.Context) (int64, error) {
	if j == nil || j.db == nil {
		return 0, fmt.Errorf("journal 未初始化")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	var n int64
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feed_events`).Scan(&n)
	return n, err
}

// Close 关闭底层 DB。
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
