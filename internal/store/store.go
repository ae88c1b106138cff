package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"sigil/internal/exit"
	"sigil/internal/guard"
	"sigil/internal/market"
)

// Store 用 Gorm + SQLite 持久化评估审计与退出事件，供回放比对和
// HTTP 查询使用。写入方只有引擎 tick 循环，读取方是 ops 服务。
type Store struct {
	db *gorm.DB
}

// Open 打开（必要时创建）决策日志库。WAL + busy_timeout 允许
// HTTP 读取与 tick 写入并存，连接数压到最低避免 SQLite 锁竞争。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: 决策日志路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&EvaluationModel{}, &ExitEventModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveEvaluation 落一条评估审计。eval_id 冲突时整行覆盖，
// 回放重跑同一决策得到相同的最终状态。
func (s *Store) SaveEvaluation(ctx context.Context, res guard.Result) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store 未初始化")
	}
	if strings.TrimSpace(res.ID) == "" {
		return fmt.Errorf("store: 评估缺少 eval_id")
	}
	m := newEvaluationModel(res)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "eval_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"score", "elite", "allowed", "confidence",
				"block_reasons", "adjustments", "warnings", "checks_json",
				"evaluated_at",
			}),
		}).
		Create(&m).Error
}

// SaveExit 落一条退出事件。同一持仓只会平一次，position_id 冲突直接忽略。
func (s *Store) SaveExit(ctx context.Context, dec exit.Decision) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store 未初始化")
	}
	if strings.TrimSpace(dec.PositionID) == "" {
		return fmt.Errorf("store: 退出事件缺少 position_id")
	}
	m := ExitEventModel{
		PositionID:    dec.PositionID,
		Token:         dec.Token,
		Symbol:        dec.Symbol,
		ExitType:      string(dec.Type),
		Reason:        dec.Reason,
		TriggerPrice:  dec.TriggerPrice,
		DecidedAtUnix: dec.At.UnixMilli(),
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "position_id"}},
			DoNothing: true,
		}).
		Create(&m).Error
}

// EvaluationQuery 过滤评估列表。零值字段不参与过滤。
type EvaluationQuery struct {
	Token   int64
	Symbol  string
	Zone    string
	Allowed *bool
	SinceMs int64
	UntilMs int64
	Limit   int
	Offset  int
}

// ListEvaluations 按时间倒序分页返回评估记录。
func (s *Store) ListEvaluations(ctx context.Context, q EvaluationQuery) ([]guard.Result, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store 未初始化")
	}
	limit, offset := clampPage(q.Limit, q.Offset)
	tx := s.db.WithContext(ctx).Model(&EvaluationModel{})
	if q.Token > 0 {
		tx = tx.Where("token = ?", q.Token)
	}
	if sym := strings.TrimSpace(q.Symbol); sym != "" {
		tx = tx.Where("symbol = ?", sym)
	}
	if z := strings.TrimSpace(q.Zone); z != "" {
		tx = tx.Where("zone = ?", z)
	}
	if q.Allowed != nil {
		tx = tx.Where("allowed = ?", boolToInt(*q.Allowed))
	}
	if q.SinceMs > 0 {
		tx = tx.Where("evaluated_at >= ?", q.SinceMs)
	}
	if q.UntilMs > 0 {
		tx = tx.Where("evaluated_at <= ?", q.UntilMs)
	}
	var models []EvaluationModel
	if err := tx.Order("evaluated_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]guard.Result, 0, len(models))
	for _, m := range models {
		out = append(out, evaluationRecord(m))
	}
	return out, nil
}

// GetEvaluation 按 eval_id 取单条记录，不存在时 ok 为 false。
func (s *Store) GetEvaluation(ctx context.Context, evalID string) (guard.Result, bool, error) {
	if s == nil || s.db == nil {
		return guard.Result{}, false, fmt.Errorf("store 未初始化")
	}
	var m EvaluationModel
	err := s.db.WithContext(ctx).Where("eval_id = ?", strings.TrimSpace(evalID)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return guard.Result{}, false, nil
		}
		return guard.Result{}, false, err
	}
	return evaluationRecord(m), true, nil
}

// ExitQuery 过滤退出事件列表。
type ExitQuery struct {
	Token    int64
	Symbol   string
	ExitType string
	Limit    int
	Offset   int
}

// ListExits 按时间倒序分页返回退出事件。
func (s *Store) ListExits(ctx context.Context, q ExitQuery) ([]exit.Decision, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store 未初始化")
	}
	limit, offset := clampPage(q.Limit, q.Offset)
	tx := s.db.WithContext(ctx).Model(&ExitEventModel{})
	if q.Token > 0 {
		tx = tx.Where("token = ?", q.Token)
	}
	if sym := strings.TrimSpace(q.Symbol); sym != "" {
		tx = tx.Where("symbol = ?", sym)
	}
	if et := strings.TrimSpace(q.ExitType); et != "" {
		tx = tx.Where("exit_type = ?", et)
	}
	var models []ExitEventModel
	if err := tx.Order("decided_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]exit.Decision, 0, len(models))
	for _, m := range models {
		out = append(out, exitRecord(m))
	}
	return out, nil
}

// Summary 汇总落库的评估与退出计数，ops 首页用。
type Summary struct {
	Evaluations int64 `json:"evaluations"`
	Allowed     int64 `json:"allowed"`
	Blocked     int64 `json:"blocked"`
	Exits       int64 `json:"exits"`
}

func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	if s == nil || s.db == nil {
		return Summary{}, fmt.Errorf("store 未初始化")
	}
	var sum Summary
	db := s.db.WithContext(ctx)
	if err := db.Model(&EvaluationModel{}).Count(&sum.Evaluations).Error; err != nil {
		return Summary{}, err
	}
	if err := db.Model(&EvaluationModel{}).Where("allowed = 1").Count(&sum.Allowed).Error; err != nil {
		return Summary{}, err
	}
	sum.Blocked = sum.Evaluations - sum.Allowed
	if err := db.Model(&ExitEventModel{}).Count(&sum.Exits).Error; err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func newEvaluationModel(res guard.Result) EvaluationModel {
	return EvaluationModel{
		EvalID:          res.ID,
		Token:           res.Token,
		Symbol:          res.Symbol,
		Direction:       string(res.Direction),
		Zone:            string(res.Zone),
		Score:           res.Score,
		Elite:           boolToInt(res.Elite),
		Allowed:         boolToInt(res.Allowed),
		Confidence:      res.ConfidenceScore,
		BlockReasons:    encodeJSON(res.BlockReasons),
		Adjustments:     encodeJSON(res.Adjustments),
		Warnings:        encodeJSON(res.Warnings),
		Checks:          encodeJSON(res.Checks),
		EvaluatedAtUnix: res.EvaluatedAt.UnixMilli(),
		CreatedAtUnix:   time.Now().Unix(),
	}
}

func evaluationRecord(m EvaluationModel) guard.Result {
	res := guard.Result{
		ID:              m.EvalID,
		Token:           m.Token,
		Symbol:          m.Symbol,
		Direction:       market.Direction(m.Direction),
		Zone:            market.Zone(m.Zone),
		Score:           m.Score,
		Elite:           m.Elite == 1,
		Allowed:         m.Allowed == 1,
		ConfidenceScore: m.Confidence,
		EvaluatedAt:     time.UnixMilli(m.EvaluatedAtUnix).UTC(),
	}
	decodeJSON(m.BlockReasons, &res.BlockReasons)
	decodeJSON(m.Adjustments, &res.Adjustments)
	decodeJSON(m.Warnings, &res.Warnings)
	decodeJSON(m.Checks, &res.Checks)
	return res
}

func exitRecord(m ExitEventModel) exit.Decision {
	return exit.Decision{
		PositionID:   m.PositionID,
		Token:        m.Token,
		Symbol:       m.Symbol,
		Type:         exit.Type(m.ExitType),
		Reason:       m.Reason,
		TriggerPrice: m.TriggerPrice,
		At:           time.UnixMilli(m.DecidedAtUnix).UTC(),
	}
}

func encodeJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func decodeJSON(raw datatypes.JSON, dst interface{}) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}
